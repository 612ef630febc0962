// README: Entry point; loads config, wires services, starts the HTTP server and tracking supervisor.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"caretransit/internal/ai"
	"caretransit/internal/config"
	httptransport "caretransit/internal/http"
	"caretransit/internal/infra"
	"caretransit/internal/maps"
	"caretransit/internal/modules/appointment"
	"caretransit/internal/modules/booking"
	"caretransit/internal/modules/catalog"
	"caretransit/internal/modules/directory"
	"caretransit/internal/modules/notify"
	"caretransit/internal/modules/tracking"
	"caretransit/internal/provider"
	"caretransit/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := infra.NewLogger()
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("db init", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	gateway := provider.NewClient(cfg.Provider)

	var routes catalog.RouteEstimator
	if cfg.Maps.APIKey != "" {
		routeSvc, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			logger.Fatal("maps init", zap.Error(err))
		}
		routes = routeSvc
	}
	catalogSvc := catalog.NewService(gateway, routes, logger)

	var summarizer notify.Summarizer
	if cfg.AI.GeminiKey != "" {
		recap, err := ai.NewGeminiRecap(ctx, cfg.AI.GeminiKey)
		if err != nil {
			logger.Fatal("gemini init", zap.Error(err))
		}
		defer recap.Close()
		summarizer = recap
	}

	apptStore := appointment.NewStore(dbPool)
	directoryStore := directory.NewStore(dbPool)
	notifySvc := notify.NewService(directoryStore, notify.NewPostgresSink(dbPool), summarizer, logger)

	bookingStore := booking.NewPostgresStore(dbPool)
	flowStore := booking.NewRedisFlowStore(redisClient)
	bookingSvc := booking.NewService(bookingStore, flowStore, catalogSvc, gateway, apptStore, notifySvc, logger)

	supervisor := tracking.NewSupervisor(cfg.Tracking, gateway, bookingSvc, logger)
	bookingSvc.BindTracking(func(bookingID types.ID) {
		if _, err := supervisor.Start(context.Background(), bookingID); err != nil {
			logger.Warn("tracking start failed", zap.String("booking_id", string(bookingID)), zap.Error(err))
		}
	})

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Orchestrator: bookingSvc,
		Supervisor:   supervisor,
		Log:          logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server", zap.Error(err))
	}
}
