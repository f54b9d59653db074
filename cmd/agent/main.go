package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"desklink/internal/core/domain"
	"desklink/internal/core/services"
	httphandlers "desklink/internal/handlers/http"
	"desklink/internal/infrastructure/control"
	"desklink/internal/infrastructure/directory"
	"desklink/internal/infrastructure/media"
	"desklink/internal/infrastructure/middleware"
	"desklink/internal/infrastructure/monitoring"
	signalinfra "desklink/internal/infrastructure/signal"
	webrtcinfra "desklink/internal/infrastructure/webrtc"
	"desklink/pkg/config"
	"desklink/pkg/distributed"
	"desklink/pkg/logger"
	"desklink/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/agent.yaml",
		"./configs/agent.yaml",
		"/etc/desklink/agent.yaml",
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

	sessionID := domain.SessionID(cfg.Agent.SessionID)
	role := domain.Role(cfg.Agent.Role)
	localID := domain.ParticipantID(cfg.Agent.ParticipantID)
	if localID == "" {
		localID = domain.ParticipantID("part_" + uuid.New().String())
		log.Infow("generated participant id", "participant_id", localID)
	}

	// Initialize tracing
	if cfg.Tracing.Enabled {
		tp, err := tracing.Init(tracing.Config{
			Enabled:     true,
			ServiceName: cfg.Tracing.ServiceName + "-agent",
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

	collector := monitoring.NewCollector()
	registry := services.NewSessionRegistry(sessionID)

	// Input adapter: native helper when reachable, emulated otherwise.
	selector := control.NewSelector(cfg.Control.NativeSocket, cfg.Control.ProbeTimeout, log)
	defer selector.Close()
	if selector.ActiveAdapter() == "emulated" && cfg.Control.NativeSocket != "" {
		collector.AdapterFellBack()
	}

	// Signaling connection to the relay
	bus := signalinfra.NewClient(signalinfra.ClientConfig{
		URL:   cfg.Agent.SignalURL,
		Token: cfg.Agent.JoinToken,
	}, log)
	defer bus.Close()

	var iceServers []string
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, s.URLs...)
	}

	manager := webrtcinfra.NewManager(webrtcinfra.Config{
		ICEServers:    iceServers,
		PortMin:       cfg.WebRTC.PortRange.Min,
		PortMax:       cfg.WebRTC.PortRange.Max,
		InitialPreset: domain.PresetName(cfg.Bitrate.InitialPreset),
		AutoAdjust:    cfg.Bitrate.AutoAdjust,
		ClockRate:     cfg.Media.ClockRate,
	}, localID, sessionID, role, bus, log)

	// Hosts carry the screen capture tracks and the encoder socket;
	// controllers negotiate receive-only.
	var capture *media.Capture
	if role == domain.RoleHost {
		capture, err = media.NewCapture(cfg.Media.RTPListenAddress, cfg.Media.PayloadType, log)
		if err != nil {
			log.Fatalw("failed to create media capture", "error", err)
		}
		manager.SetMediaSource(&webrtcinfra.MediaSource{
			Video: capture.VideoTrack(),
			Audio: capture.AudioTrack(),
		})
		manager.SetEncoderControl(media.NewEncoderClient(cfg.Media.EncoderSocket, log))

		if err := capture.Start(runCtx); err != nil {
			log.Fatalw("failed to start media capture", "error", err)
		}
		defer capture.Stop()
	}

	// Core services around the link table
	monitor := services.NewQualityMonitor(manager, cfg.Quality.SampleInterval, cfg.Quality.WindowSize, log)
	bitrate := services.NewBitrateController(manager, cfg.Bitrate.Cooldown, log)
	transfers := services.NewTransferService(manager, cfg.Transfer.TTL, cfg.Transfer.SweepInterval, cfg.Transfer.DownloadDir, log)
	router := services.NewControlRouter(
		selector,
		transfers,
		cfg.Control.Enabled,
		cfg.Control.ClipboardEnabled,
		int(cfg.Control.PointerEventsPerSecond),
		cfg.Control.PointerEventBurst,
		log,
	)
	connections := services.NewConnectionService(manager, monitor, bitrate, transfers, log)

	monitor.OnUpdate(func(metrics domain.QualityMetrics) {
		collector.QualityScored(metrics)
		registry.QualityScored(metrics.RemoteID, metrics.Score)
		bitrate.HandleQuality(runCtx, metrics)
	})
	monitor.OnCategoryChange(func(change domain.QualityChange) {
		manager.NoteIndicator(change.RemoteID, domain.IndicatorForCategory(change.Current))
	})

	bitrate.OnPresetChange(func(change domain.PresetChange) {
		collector.PresetChanged(change)
		registry.PresetChanged()
	})

	manager.OnLinkStateChange(func(change domain.LinkStateChange) {
		collector.LinkTransition(change)
		registry.LinkStateMoved(change.Previous, change.Current)

		if change.Previous == domain.LinkStateNew {
			collector.LinkOpened()
			registry.LinkOpened()
		}

		switch change.Current {
		case domain.LinkStateConnected:
			if snap, err := manager.Link(change.RemoteID); err == nil && !snap.ConnectedAt.IsZero() {
				collector.LinkConnected(snap.ConnectedAt.Sub(snap.CreatedAt))
			}
			monitor.Track(runCtx, change.RemoteID)
			if err := bitrate.Track(change.RemoteID, domain.PresetName(cfg.Bitrate.InitialPreset), cfg.Bitrate.AutoAdjust); err != nil {
				log.Warnw("bitrate tracking failed", "remote_id", change.RemoteID, "error", err)
			}
		case domain.LinkStateDisconnected, domain.LinkStateFailed, domain.LinkStateClosed:
			monitor.Untrack(change.RemoteID)
			bitrate.Untrack(change.RemoteID)
			router.DropRemote(change.RemoteID)
			collector.LinkForgotten(change.RemoteID)
			collector.LinkRemoved()
			registry.LinkRemoved(change.RemoteID, change.Current)
		}
	})

	manager.OnFrame(func(from domain.ParticipantID, frame []byte) {
		if err := router.HandleFrame(runCtx, from, frame); err != nil {
			collector.FrameDropped()
			registry.FrameDropped()
			return
		}
		registry.FrameRouted()
	})

	transfers.OnFileReceived(func(file domain.ReceivedFile) {
		collector.TransferBytes(file.Meta.Size)
		collector.TransferFinished("completed")
		registry.TransferCompleted(file.Meta.Size)
		log.Infow("file received",
			"transfer_id", file.Meta.ID,
			"name", file.Meta.Name,
			"bytes", file.Meta.Size,
			"path", file.Path,
		)
	})

	// Controllers dial the host as soon as presence announces it.
	if role == domain.RoleController {
		manager.OnPresence(func(event domain.PresenceEvent) {
			if event.Status != domain.PresenceJoined || event.Participant.Role != domain.RoleHost {
				return
			}
			log.Infow("host appeared, connecting", "remote_id", event.Participant.ID)
			if err := manager.Connect(runCtx, event.Participant.ID); err != nil {
				log.Warnw("auto-connect failed", "remote_id", event.Participant.ID, "error", err)
			}
		})
	}

	transfers.StartSweeper(runCtx)

	busErr := make(chan error, 1)
	go func() { busErr <- bus.Run(runCtx) }()
	go manager.Run(runCtx)

	// Session host claim: with redis enabled, only one host per session.
	if cfg.Redis.Enabled && role == domain.RoleHost {
		factory, err := directory.NewFactory(cfg, log)
		if err != nil {
			log.Fatalw("failed to create directory factory", "error", err)
		}
		defer factory.Close()

		if client := factory.RedisClient(); client != nil {
			hostLock := distributed.NewDistributedLock(
				client,
				"desklink:session:"+string(sessionID)+":host",
				cfg.Redis.SessionTTL,
			)
			lockCtx, lockCancel := context.WithTimeout(runCtx, 5*time.Second)
			err := hostLock.Lock(lockCtx)
			lockCancel()
			if err != nil {
				log.Fatalw("another host already claims this session", "session_id", sessionID, "error", err)
			}
			defer hostLock.Unlock(context.Background())

			go func() {
				select {
				case <-hostLock.Lost():
					log.Errorw("host claim lost, shutting down", "session_id", sessionID)
					cancel()
				case <-runCtx.Done():
				}
			}()
		}
	}

	// Local API
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	api := gin.New()
	api.Use(middleware.RecoveryMiddleware(log))
	api.Use(middleware.ErrorHandlerMiddleware(log))
	api.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		api.Use(middleware.TracingMiddleware())
	}
	api.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		collector.APIRequest(c.Request.Method, c.FullPath(), strconv.Itoa(c.Writer.Status()), time.Since(start))
	})
	if cfg.API.AuthEnabled {
		tokens := services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JoinTokenTTL)
		api.Use(middleware.AuthMiddleware(tokens))
	}

	linkHandler := httphandlers.NewLinkHandler(connections, router, selector)
	linkHandler.SetupRoutes(api)

	health := monitoring.NewHealthChecker()
	health.AddCheck("event_loop", func(ctx context.Context) (bool, error) {
		manager.Links()
		return true, nil
	}, 30*time.Second, 2*time.Second)
	if capture != nil {
		health.AddCheck("media_ingest", func(ctx context.Context) (bool, error) {
			return capture.Running(), nil
		}, 30*time.Second, 2*time.Second)
	}
	api.GET("/healthz", health.Handler())
	health.StartBackgroundChecks(runCtx)

	api.GET("/status", func(c *gin.Context) {
		snapshot := registry.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"session_id":          snapshot.SessionID,
			"participant_id":      localID,
			"role":                role,
			"adapter":             selector.ActiveAdapter(),
			"connected_links":     snapshot.ConnectedLinks,
			"frames_routed":       snapshot.FramesRouted,
			"frames_dropped":      snapshot.FramesDropped,
			"transfers_completed": snapshot.TransfersCompleted,
			"uptime":              time.Since(startTime).String(),
		})
	})

	if cfg.Monitoring.PrometheusEnabled {
		api.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.API.Address,
		Handler:      api,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting desklink agent",
			"api_address", cfg.API.Address,
			"session_id", sessionID,
			"participant_id", localID,
			"role", role,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("API server failed", "error", err)
	case err := <-busErr:
		if err != nil && err != context.Canceled {
			log.Errorw("signaling connection ended", "error", err)
		}
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	case <-runCtx.Done():
	}

	log.Info("shutting down desklink agent...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during API shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing API server", "error", closeErr)
		}
	}

	manager.Close()
	log.Info("desklink agent stopped")
}
