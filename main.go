package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smec-portal/internal/app"
	"smec-portal/internal/auth"
	"smec-portal/internal/config"
	"smec-portal/internal/logger"
	"smec-portal/internal/portal_api"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logger.NewLogger(cfg.Log.Dir, cfg.Log.Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Info("APP", "Starting SMEC portal initialization")
	if envErr != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	ctx := context.Background()
	core, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("APP", fmt.Sprintf("Failed to initialize: %v", err))
	}
	defer core.Close()

	handler := &portal_api.Handler{
		Auth:      core.API,
		Purchaser: core.API,
		Sessions:  core.Sessions,
		Catalog:   core.Catalog,
		Dashboard: core.Dashboard,
		Passes:    core.Passes,
		Cue:       core.Cue,
		Lock:      core.Lock,
		Forms:     portal_api.NewFormRegistry(),
		Routes:    auth.Routes{Login: cfg.Server.LoginRoute, Home: cfg.Server.HomeRoute},
		Admin:     auth.Routes{Login: cfg.Server.AdminLogin, Home: cfg.Server.HomeRoute},
		Logger:    logger,
	}
	defer handler.Forms.Close()
	defer core.Dashboard.Close()

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	handler.RegisterRoutes(r)
	logger.Info("ROUTER", "Portal routes registered under /api and /admin")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 SMEC portal running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Portal started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ SMEC portal shutdown complete")
	}
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, fmt.Sprintf("%d", ww.Status()), time.Since(start).String())
		})
	}
}
