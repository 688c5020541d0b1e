// cmd/server/main.go - volunteer coordination server
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"volunteer-coordination/internal/assignment"
	"volunteer-coordination/internal/bootstrap"
	"volunteer-coordination/internal/config"
	"volunteer-coordination/internal/events"
	"volunteer-coordination/internal/handlers"
	"volunteer-coordination/internal/history"
	"volunteer-coordination/internal/logger"
	"volunteer-coordination/internal/matching"
	"volunteer-coordination/internal/middleware"
	"volunteer-coordination/internal/notify"
	"volunteer-coordination/internal/websocket"
	"volunteer-coordination/pkg/auth"
	"volunteer-coordination/pkg/validator"

	"github.com/gin-gonic/gin"
)

var (
	appVersion = "1.0.0"
	gitCommit  = "unknown"
)

func main() {
	if err := run(); err != nil {
		logger.Logger.Fatal().Err(err).Msg("Server stopped with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(logger.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})
	log := logger.WithComponent("server")
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	validator.UseWithGin()

	log.Info().
		Str("version", appVersion).
		Str("commit", gitCommit).
		Str("env", cfg.Environment).
		Str("storage", cfg.StorageDriver).
		Msg("Starting volunteer coordination server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg, logger.WithComponent("storage"))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing store")
		}
	}()

	hub := websocket.NewHub(logger.Logger, originChecker(cfg.AllowedOrigins))
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	sinks := []notify.Sink{notify.NewHubSink(hub)}
	if cfg.FirebaseKey != "" {
		sinks = append(sinks, notify.NewFCMSink(cfg.FCMEndpoint, cfg.FirebaseKey, cfg.PushTimeout, store, logger.Logger))
	} else {
		log.Info().Msg("FIREBASE_KEY not set, device push disabled")
	}

	dispatcher := notify.NewDispatcher(store, notify.Config{
		BroadcastConcurrency: cfg.BroadcastConcurrency,
		PushTimeout:          cfg.PushTimeout,
		Logger:               logger.Logger,
	}, sinks...)
	recorder := history.NewRecorder(store, logger.Logger)

	bus := events.NewBus(events.Config{
		MaxRetries: cfg.SideEffectMaxRetries,
		Logger:     logger.Logger,
	})
	bus.Subscribe("notify", dispatcher.HandleEvent)
	bus.Subscribe("history", recorder.HandleEvent)

	service := assignment.NewService(store, bus, assignment.Config{
		MaxRetries: cfg.AssignMaxRetries,
		Logger:     logger.Logger,
	})

	var limiter *middleware.RateLimiter
	if cfg.RateLimitEnabled {
		limiter = middleware.NewRateLimiter(ctx, cfg.RateLimitRequests, cfg.RateLimitWindow)
	}

	router := handlers.NewRouter(handlers.Deps{
		Store:          store,
		JWTManager:     auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration),
		Service:        service,
		Ranker:         matching.NewRanker(store, store),
		Dispatcher:     dispatcher,
		Recorder:       recorder,
		Hub:            hub,
		Logger:         logger.WithComponent("http"),
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimiter:    limiter,
		Version:        appVersion,
	})

	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop taking requests first so nothing publishes while the bus drains.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Server forced to shutdown")
	}
	if err := bus.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Domain event queues not fully drained")
	}
	stopHub()

	log.Info().Msg("Server exited")
	return nil
}

func originChecker(allowed []string) func(string) bool {
	if slices.Contains(allowed, "*") {
		return nil
	}
	return func(origin string) bool {
		return origin == "" || slices.Contains(allowed, origin)
	}
}
