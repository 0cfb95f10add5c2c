package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fakhrymubarak/weather-forecast-viewer/internal/config"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/controller"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/handler"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/location"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/middleware"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/redis"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/service"
	"github.com/gorilla/handlers"
)

func main() {
	if err := run(); err != nil {
		config.GetLogger().Errorw("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logger := config.GetLogger()
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := service.Dependencies{}
	var publisher *redis.StatePublisher
	if redis.Enabled() {
		if err := redis.Ping(ctx); err != nil {
			logger.Warnw("redis ping failed", "addr", config.GetRedisAddr(), "error", err)
		}
		publisher = redis.NewStatePublisherFromConfig()
		deps.Notifier = publisher
	} else {
		deps.Notifier = location.NotifierFunc(func(msg string) {
			logger.Infow("notice", "message", msg)
		})
	}

	forecast := service.NewForecastController(deps)
	if err := forecast.Start(); err != nil {
		return fmt.Errorf("start forecast controller: %w", err)
	}
	defer forecast.Dispose()

	if publisher != nil {
		go publisher.Run(ctx, forecast)
	}

	limiter := middleware.NewRefreshRateLimiter()
	limiter.StartCleanup(ctx, time.Minute)

	server := &http.Server{
		Addr:              ":" + config.GetServerPort(),
		Handler:           newHTTPHandler(forecast, limiter),
		ReadHeaderTimeout: config.GetServerTimeout("read_header_timeout", 15*time.Second),
		ReadTimeout:       config.GetServerTimeout("read_timeout", 15*time.Second),
		WriteTimeout:      config.GetServerTimeout("write_timeout", 10*time.Second),
		IdleTimeout:       config.GetServerTimeout("idle_timeout", 30*time.Second),
	}
	return startServer(server)
}

func newHTTPHandler(forecast *controller.Controller, limiter *middleware.RateLimiter) http.Handler {
	r := handler.NewRouter(handler.NewForecastHandler(forecast), limiter.Middleware)

	var h http.Handler = r
	h = handlers.RecoveryHandler()(h)
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
	)(h)
	return handlers.LoggingHandler(os.Stdout, h)
}

func startServer(server *http.Server) error {
	logger := config.GetLogger()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	serverError := make(chan error, 1)
	go func() {
		logger.Infow("forecast viewer listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverError <- err
		}
	}()

	select {
	case err := <-serverError:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Infow("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			_ = server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Infow("server stopped gracefully")
	}
	return nil
}
