// README: Transport orchestration handlers (decision, offers, selection, confirmation).
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"caretransit/internal/http/middleware"
	"caretransit/internal/modules/booking"
	"caretransit/internal/modules/catalog"
	"caretransit/internal/types"
)

// Orchestrator is the slice of the booking service the HTTP layer uses.
type Orchestrator interface {
	Decide(ctx context.Context, cmd booking.DecideCommand) error
	ListOffers(ctx context.Context, cmd booking.QuoteCommand) ([]catalog.ServiceOffer, error)
	SelectOffer(ctx context.Context, cmd booking.SelectCommand) error
	Confirm(ctx context.Context, cmd booking.ConfirmCommand) (*booking.Booking, error)
	Cancel(ctx context.Context, cmd booking.CancelCommand) error
	Get(ctx context.Context, id types.ID) (*booking.Booking, error)
	GetByAppointment(ctx context.Context, appointmentID types.ID) (*booking.Booking, error)
}

type TransportHandler struct {
	orch Orchestrator
}

func NewTransportHandler(orch Orchestrator) *TransportHandler {
	return &TransportHandler{orch: orch}
}

type decisionReq struct {
	Decision string `json:"decision"`
}

func (h *TransportHandler) Decide(c *gin.Context) {
	id := c.Param("id")
	var req decisionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Decision != "accept" && req.Decision != "decline" {
		writeError(c, http.StatusBadRequest, "decision must be accept or decline")
		return
	}
	err := h.orch.Decide(c.Request.Context(), booking.DecideCommand{
		AppointmentID: types.ID(id),
		Accept:        req.Decision == "accept",
		Role:          middleware.RoleFrom(c),
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"appointment_id": id, "decision": req.Decision})
}

type offersReq struct {
	PickupLat      float64 `json:"pickup_lat"`
	PickupLng      float64 `json:"pickup_lng"`
	PickupAddress  string  `json:"pickup_address"`
	DropoffLat     float64 `json:"dropoff_lat"`
	DropoffLng     float64 `json:"dropoff_lng"`
	DropoffAddress string  `json:"dropoff_address"`
}

func (h *TransportHandler) ListOffers(c *gin.Context) {
	id := c.Param("id")
	var req offersReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	offers, err := h.orch.ListOffers(c.Request.Context(), booking.QuoteCommand{
		AppointmentID: types.ID(id),
		Pickup: types.Location{
			Point:   types.Point{Lat: req.PickupLat, Lng: req.PickupLng},
			Address: req.PickupAddress,
		},
		Dropoff: types.Location{
			Point:   types.Point{Lat: req.DropoffLat, Lng: req.DropoffLng},
			Address: req.DropoffAddress,
		},
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"appointment_id": id, "offers": offers})
}

type selectReq struct {
	OfferID string `json:"offer_id"`
}

func (h *TransportHandler) SelectOffer(c *gin.Context) {
	id := c.Param("id")
	var req selectReq
	if err := c.ShouldBindJSON(&req); err != nil || req.OfferID == "" {
		writeError(c, http.StatusBadRequest, "missing offer_id")
		return
	}
	err := h.orch.SelectOffer(c.Request.Context(), booking.SelectCommand{
		AppointmentID: types.ID(id),
		OfferID:       req.OfferID,
		Role:          middleware.RoleFrom(c),
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"appointment_id": id, "offer_id": req.OfferID})
}

type confirmReq struct {
	PassengerName  string `json:"passenger_name"`
	PassengerPhone string `json:"passenger_phone"`
}

func (h *TransportHandler) Confirm(c *gin.Context) {
	id := c.Param("id")
	var req confirmReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	b, err := h.orch.Confirm(c.Request.Context(), booking.ConfirmCommand{
		AppointmentID:  types.ID(id),
		PassengerName:  req.PassengerName,
		PassengerPhone: req.PassengerPhone,
		Role:           middleware.RoleFrom(c),
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, bookingView(b))
}

func (h *TransportHandler) GetByAppointment(c *gin.Context) {
	b, err := h.orch.GetByAppointment(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, bookingView(b))
}
