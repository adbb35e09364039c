package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"badgehub/internal/appinfo"
	"badgehub/internal/config"
	"badgehub/internal/handlers/web"
	"badgehub/internal/response"
	"badgehub/internal/router"
	"badgehub/internal/services"

	"go.uber.org/zap"
)

func main() {
	// Configuration comes first so it can shape the logger
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting BadgeHub application",
		zap.String("version", appinfo.GetVersion()),
		zap.String("environment", appinfo.GetEnvironment()),
		zap.String("port", cfg.Server.Port),
		zap.String("relay_mode", cfg.Relays.Mode),
		zap.Strings("relays", cfg.Relays.URLs),
	)

	// Relay source
	source := cfg.Relays.NewSource(logger)

	// Initialize services
	serviceCollection, err := services.NewServiceCollection(cfg, source, logger)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := serviceCollection.Start(ctx); err != nil {
		logger.Fatal("Failed to start services", zap.Error(err))
	}

	// Response builder for API controllers
	responseConfig := response.DefaultConfig()
	responseConfig.APIVersion = "v1"
	responseConfig.MaskInternalErrors = cfg.IsProduction()
	responseBuilder := response.NewBuilder(responseConfig, logger)
	logger.Info("Response builder initialized",
		zap.String("api_version", responseConfig.APIVersion),
		zap.Bool("mask_internal_errors", responseConfig.MaskInternalErrors),
	)

	// Live updates
	hub := web.NewHub(serviceCollection, cfg.Server.AllowedOrigins, logger)
	if err := hub.Start(); err != nil {
		logger.Fatal("Failed to start live hub", zap.Error(err))
	}

	handler := router.SetupRouter(serviceCollection, hub, responseBuilder, logger)

	// HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown setup
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server",
			zap.String("address", server.Addr),
			zap.String("environment", cfg.Server.Environment),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Application started successfully",
		zap.String("url", fmt.Sprintf("http://localhost:%s", cfg.Server.Port)),
		zap.String("health_check", "/health"),
		zap.String("metrics", "/metrics"),
		zap.String("live", "/ws"),
	)

	<-quit
	logger.Info("Shutting down application...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	} else {
		logger.Info("Server shutdown completed")
	}

	if err := hub.Close(); err != nil {
		logger.Error("Failed to close live hub", zap.Error(err))
	}
	logger.Info("Live hub closed", zap.Int("clients", hub.Clients()))

	if err := serviceCollection.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down services", zap.Error(err))
	}

	logger.Info("Application shutdown completed")
}

// initLogger builds a JSON logger for the "json" format and a console
// logger otherwise, at the configured level.
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zc.Level = level

	logger, err := zc.Build(zap.Fields(zap.String("service", appinfo.Name)))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}
