// README: Handler tests for request validation and error mapping.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"caretransit/internal/http/handlers"
	httpmiddleware "caretransit/internal/http/middleware"
	"caretransit/internal/modules/booking"
	"caretransit/internal/modules/catalog"
	"caretransit/internal/types"
)

// stubOrchestrator is a test double for the booking service. Each method
// returns the configured error; Decide records the role it saw.
type stubOrchestrator struct {
	err      error
	lastRole string
	booking  *booking.Booking
}

func (s *stubOrchestrator) Decide(_ context.Context, cmd booking.DecideCommand) error {
	s.lastRole = cmd.Role
	return s.err
}

func (s *stubOrchestrator) ListOffers(context.Context, booking.QuoteCommand) ([]catalog.ServiceOffer, error) {
	return []catalog.ServiceOffer{}, s.err
}

func (s *stubOrchestrator) SelectOffer(context.Context, booking.SelectCommand) error {
	return s.err
}

func (s *stubOrchestrator) Confirm(context.Context, booking.ConfirmCommand) (*booking.Booking, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.booking, nil
}

func (s *stubOrchestrator) Cancel(context.Context, booking.CancelCommand) error {
	return s.err
}

func (s *stubOrchestrator) Get(context.Context, types.ID) (*booking.Booking, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.booking, nil
}

func (s *stubOrchestrator) GetByAppointment(context.Context, types.ID) (*booking.Booking, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.booking, nil
}

func buildTestRouter(orch handlers.Orchestrator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(httpmiddleware.CallerRole())
	h := handlers.NewTransportHandler(orch)
	r.POST("/api/appointments/:id/transport/decision", h.Decide)
	r.POST("/api/appointments/:id/transport/select", h.SelectOffer)
	r.POST("/api/appointments/:id/transport/confirm", h.Confirm)
	bh := handlers.NewBookingHandler(orch)
	r.GET("/api/bookings/:id", bh.Get)
	r.POST("/api/bookings/:id/cancel", bh.Cancel)
	return r
}

func doRequest(r *gin.Engine, method, path string, body interface{}, role string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("X-Caller-Role", role)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDecide_InvalidDecision(t *testing.T) {
	r := buildTestRouter(&stubOrchestrator{})
	w := doRequest(r, http.MethodPost, "/api/appointments/a1/transport/decision", map[string]any{"decision": "maybe"}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestDecide_UnknownRoleRejected(t *testing.T) {
	r := buildTestRouter(&stubOrchestrator{})
	w := doRequest(r, http.MethodPost, "/api/appointments/a1/transport/decision", map[string]any{"decision": "accept"}, "driver")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestDecide_RolePassedThrough(t *testing.T) {
	stub := &stubOrchestrator{}
	r := buildTestRouter(stub)
	w := doRequest(r, http.MethodPost, "/api/appointments/a1/transport/decision", map[string]any{"decision": "accept"}, "family_member")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if stub.lastRole != "family_member" {
		t.Errorf("role = %q, want family_member", stub.lastRole)
	}
}

func TestSelect_StaleOfferMapsToConflict(t *testing.T) {
	r := buildTestRouter(&stubOrchestrator{err: booking.ErrStaleOffer})
	w := doRequest(r, http.MethodPost, "/api/appointments/a1/transport/select", map[string]any{"offer_id": "o1"}, "")
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestConfirm_ValidationMapsToBadRequest(t *testing.T) {
	r := buildTestRouter(&stubOrchestrator{err: booking.ErrValidation})
	w := doRequest(r, http.MethodPost, "/api/appointments/a1/transport/confirm", map[string]any{"passenger_phone": "x"}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestConfirm_ProviderFailureMapsToBadGateway(t *testing.T) {
	r := buildTestRouter(&stubOrchestrator{err: booking.ErrBookingFailed})
	w := doRequest(r, http.MethodPost, "/api/appointments/a1/transport/confirm", map[string]any{"passenger_phone": "555-0199"}, "")
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}

func TestGetBooking_NotFound(t *testing.T) {
	r := buildTestRouter(&stubOrchestrator{err: booking.ErrNotFound})
	w := doRequest(r, http.MethodGet, "/api/bookings/b404", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestCancel_AfterPickupMapsToConflict(t *testing.T) {
	r := buildTestRouter(&stubOrchestrator{err: booking.ErrInvalidTransition})
	w := doRequest(r, http.MethodPost, "/api/bookings/b1/cancel", nil, "elderly-patient")
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}
