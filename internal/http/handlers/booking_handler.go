// README: Booking read and cancellation handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"caretransit/internal/http/middleware"
	"caretransit/internal/modules/booking"
	"caretransit/internal/types"
)

type BookingHandler struct {
	orch Orchestrator
}

func NewBookingHandler(orch Orchestrator) *BookingHandler {
	return &BookingHandler{orch: orch}
}

func (h *BookingHandler) Get(c *gin.Context) {
	b, err := h.orch.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, bookingView(b))
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	var req cancelReq
	_ = c.ShouldBindJSON(&req)
	err := h.orch.Cancel(c.Request.Context(), booking.CancelCommand{
		BookingID: types.ID(c.Param("id")),
		Role:      middleware.RoleFrom(c),
		Reason:    req.Reason,
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"booking_id": c.Param("id"), "status": booking.StatusCancelled})
}

func bookingView(b *booking.Booking) gin.H {
	return gin.H{
		"booking_id":            b.ID,
		"appointment_id":        b.AppointmentID,
		"status":                b.Status,
		"offer":                 gin.H{"id": b.Offer.OfferID, "display_name": b.Offer.DisplayName, "fare_minor": b.Offer.FareMinor, "eta_minutes": b.Offer.EtaMinutes},
		"pickup_address":        b.Pickup.Address,
		"dropoff_address":       b.Dropoff.Address,
		"driver_name":           b.DriverName,
		"driver_phone":          b.DriverPhone,
		"vehicle_id":            b.VehicleID,
		"created_at":            b.CreatedAt,
		"last_status_change_at": b.LastStatusChangeAt,
	}
}
