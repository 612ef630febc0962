// README: Live-tracking handlers (start, stop, snapshot, discard).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"caretransit/internal/modules/tracking"
	"caretransit/internal/types"
)

type TrackingHandler struct {
	supervisor *tracking.Supervisor
}

func NewTrackingHandler(supervisor *tracking.Supervisor) *TrackingHandler {
	return &TrackingHandler{supervisor: supervisor}
}

func (h *TrackingHandler) Start(c *gin.Context) {
	id := types.ID(c.Param("id"))
	handle, err := h.supervisor.Start(c.Request.Context(), id)
	if err == tracking.ErrBookingFinished {
		writeError(c, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sessionView(h.supervisor.CurrentState(handle)))
}

func (h *TrackingHandler) Stop(c *gin.Context) {
	handle, ok := h.supervisor.Lookup(types.ID(c.Param("id")))
	if !ok {
		writeError(c, http.StatusNotFound, tracking.ErrNoSession.Error())
		return
	}
	h.supervisor.Stop(handle)
	writeJSON(c, http.StatusOK, sessionView(h.supervisor.CurrentState(handle)))
}

func (h *TrackingHandler) State(c *gin.Context) {
	handle, ok := h.supervisor.Lookup(types.ID(c.Param("id")))
	if !ok {
		writeError(c, http.StatusNotFound, tracking.ErrNoSession.Error())
		return
	}
	writeJSON(c, http.StatusOK, sessionView(h.supervisor.CurrentState(handle)))
}

func (h *TrackingHandler) Discard(c *gin.Context) {
	handle, ok := h.supervisor.Lookup(types.ID(c.Param("id")))
	if !ok {
		writeError(c, http.StatusNotFound, tracking.ErrNoSession.Error())
		return
	}
	h.supervisor.Discard(handle)
	c.Status(http.StatusNoContent)
}

func sessionView(s tracking.Session) gin.H {
	view := gin.H{
		"booking_id":                s.BookingID,
		"poll_interval_seconds":     int(s.PollInterval.Seconds()),
		"consecutive_poll_failures": s.ConsecutivePollFailures,
		"is_stale":                  s.IsStale,
		"ended":                     s.Ended,
		"distance_remaining_meters": s.DistanceRemainingMeters,
	}
	if s.LastKnownLocation != nil {
		view["last_known_location"] = gin.H{
			"lat":             s.LastKnownLocation.Lat,
			"lng":             s.LastKnownLocation.Lng,
			"heading_degrees": s.LastKnownLocation.HeadingDegrees,
			"speed_kph":       s.LastKnownLocation.SpeedKph,
			"observed_at":     s.LastKnownLocation.ObservedAt,
		}
		view["last_known_eta_at"] = s.LastKnownEtaAt
	}
	return view
}
