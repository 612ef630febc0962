// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"caretransit/internal/http/handlers"
	"caretransit/internal/http/middleware"
	"caretransit/internal/modules/tracking"
)

type RouterDeps struct {
	Orchestrator handlers.Orchestrator
	Supervisor   *tracking.Supervisor
	Log          *zap.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log))
	r.Use(middleware.Logging(deps.Log))
	r.Use(middleware.CallerRole())

	transportHandler := handlers.NewTransportHandler(deps.Orchestrator)
	r.POST("/api/appointments/:id/transport/decision", transportHandler.Decide)
	r.POST("/api/appointments/:id/transport/offers", transportHandler.ListOffers)
	r.POST("/api/appointments/:id/transport/select", transportHandler.SelectOffer)
	r.POST("/api/appointments/:id/transport/confirm", transportHandler.Confirm)
	r.GET("/api/appointments/:id/transport/booking", transportHandler.GetByAppointment)

	bookingHandler := handlers.NewBookingHandler(deps.Orchestrator)
	r.GET("/api/bookings/:id", bookingHandler.Get)
	r.POST("/api/bookings/:id/cancel", bookingHandler.Cancel)

	trackingHandler := handlers.NewTrackingHandler(deps.Supervisor)
	r.POST("/api/bookings/:id/tracking/start", trackingHandler.Start)
	r.POST("/api/bookings/:id/tracking/stop", trackingHandler.Stop)
	r.GET("/api/bookings/:id/tracking", trackingHandler.State)
	r.DELETE("/api/bookings/:id/tracking", trackingHandler.Discard)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
