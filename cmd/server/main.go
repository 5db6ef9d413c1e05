package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"secops-service/internal/factory"
	"secops-service/internal/handler"
)

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		// Logger may not be initialized; fail plainly.
		panic(err)
	}
	defer f.Close()

	cfg := f.Config()
	logger := f.Logger()

	router := setupRouter(f)

	server := &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Server started successfully",
			zap.String("environment", cfg.Environment),
			zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	waitForShutdown(f, server)
}

// setupRouter creates the HTTP router with all handlers using Chi
func setupRouter(f *factory.Factory) http.Handler {
	logger := f.Logger()
	logs := handler.NewLogHandler(f.Pipeline(), logger)
	alerts := handler.NewAlertHandler(f.SOCEngine(), logger)
	incidents := handler.NewIncidentHandler(f.IncidentManager(), logger)
	hunts := handler.NewHuntHandler(f.HuntWorkflow(), logger)
	return handler.NewRouter(logs, alerts, incidents, hunts, f.Registry(), logger)
}

func waitForShutdown(f *factory.Factory, server *http.Server) {
	logger := f.Logger()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	} else {
		logger.Info("Server shutdown completed")
	}

	if err := f.Close(); err != nil {
		logger.Error("Factory shutdown failed", zap.Error(err))
	}
}
