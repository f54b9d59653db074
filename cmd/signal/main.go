package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"desklink/internal/core/services"
	httphandlers "desklink/internal/handlers/http"
	"desklink/internal/infrastructure/directory"
	"desklink/internal/infrastructure/middleware"
	"desklink/internal/infrastructure/monitoring"
	"desklink/internal/infrastructure/reliability"
	signalinfra "desklink/internal/infrastructure/signal"
	"desklink/pkg/circuitbreaker"
	"desklink/pkg/config"
	"desklink/pkg/logger"
	"desklink/pkg/retry"
	"desklink/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/signal.yaml",
		"./configs/signal.yaml",
		"/etc/desklink/signal.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	if cfg.Tracing.Enabled {
		tp, err := tracing.Init(tracing.Config{
			Enabled:     true,
			ServiceName: cfg.Tracing.ServiceName + "-signal",
			JaegerURL:   cfg.Tracing.JaegerURL,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			log.Fatalw("failed to initialize tracing", "error", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			tp.Shutdown(shutdownCtx)
		}()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Session directory: redis-backed when enabled, in-memory otherwise
	factory, err := directory.NewFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create directory factory", "error", err)
	}
	defer factory.Close()

	sessionDirectory := factory.CreateDirectory()
	var wrapper *reliability.DirectoryWrapper
	if cfg.Redis.Enabled {
		wrapper = reliability.NewDirectoryWrapper(
			sessionDirectory,
			retry.DefaultConfig(),
			circuitbreaker.DefaultConfig(),
			log,
		)
		sessionDirectory = wrapper
		defer wrapper.Stop()
	}

	tokens := services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JoinTokenTTL)
	roster := services.NewRoster(sessionDirectory, log)

	relay := signalinfra.NewRelay(tokens, roster, sessionDirectory, log)
	relay.SetPingInterval(cfg.Signal.PingInterval)
	relay.SetReadTimeout(cfg.Signal.PongTimeout)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))

	router.GET("/ws", middleware.NewWSUpgradeRateLimitMiddleware(cfg), gin.WrapF(relay.HandleWebSocket))
	router.GET("/health", gin.WrapF(relay.HealthCheck))

	// Join token minting for development and small deployments; larger
	// ones put this behind their own auth front.
	tokenHandler := httphandlers.NewTokenHandler(tokens)
	tokenHandler.SetupRoutes(router)

	health := monitoring.NewHealthChecker()
	health.AddCheck("directory", func(ctx context.Context) (bool, error) {
		if err := factory.HealthCheck(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, 30*time.Second, 2*time.Second)
	router.GET("/healthz", health.Handler())
	health.StartBackgroundChecks(runCtx)

	router.GET("/status", func(c *gin.Context) {
		resp := gin.H{
			"status": "running",
			"uptime": time.Since(startTime).String(),
		}
		if wrapper != nil {
			resp["breaker"] = wrapper.BreakerStats()
		}
		c.JSON(http.StatusOK, resp)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:    cfg.Signal.Address,
		Handler: router,
		// No read/write timeouts: websocket connections stay open.
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting desklink signal relay", "address", cfg.Signal.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("relay server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	log.Info("shutting down desklink signal relay...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Signal.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during relay shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing relay server", "error", closeErr)
		}
	}

	log.Info("desklink signal relay stopped")
}
