package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Agent struct {
		SessionID     string `yaml:"session_id"`
		ParticipantID string `yaml:"participant_id"`
		Role          string `yaml:"role"` // "host" or "controller"
		SignalURL     string `yaml:"signal_url"`
		JoinToken     string `yaml:"join_token"`
	} `yaml:"agent"`

	API struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AuthEnabled     bool          `yaml:"auth_enabled"`
	} `yaml:"api"`

	Signal struct {
		Address         string        `yaml:"address"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		RequireToken    bool          `yaml:"require_token"`
	} `yaml:"signal"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		PortRange struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
	} `yaml:"webrtc"`

	Quality struct {
		SampleInterval time.Duration `yaml:"sample_interval"`
		WindowSize     int           `yaml:"window_size"`
	} `yaml:"quality"`

	Bitrate struct {
		AutoAdjust    bool          `yaml:"auto_adjust"`
		InitialPreset string        `yaml:"initial_preset"`
		Cooldown      time.Duration `yaml:"cooldown"`
	} `yaml:"bitrate"`

	Control struct {
		Enabled                bool          `yaml:"enabled"`
		ClipboardEnabled       bool          `yaml:"clipboard_enabled"`
		NativeSocket           string        `yaml:"native_socket"`
		ProbeTimeout           time.Duration `yaml:"probe_timeout"`
		PointerEventsPerSecond float64       `yaml:"pointer_events_per_second"`
		PointerEventBurst      int           `yaml:"pointer_event_burst"`
	} `yaml:"control"`

	Transfer struct {
		TTL           time.Duration `yaml:"ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
		DownloadDir   string        `yaml:"download_dir"`
	} `yaml:"transfer"`

	Media struct {
		RTPListenAddress string `yaml:"rtp_listen_address"`
		EncoderSocket    string `yaml:"encoder_socket"`
		PayloadType      uint8  `yaml:"payload_type"`
		ClockRate        uint32 `yaml:"clock_rate"`
	} `yaml:"media"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled    bool          `yaml:"enabled"`
		Address    string        `yaml:"address"`
		Password   string        `yaml:"password"`
		DB         int           `yaml:"db"`
		PoolSize   int           `yaml:"pool_size"`
		SessionTTL time.Duration `yaml:"session_ttl"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		JoinTokenTTL   time.Duration `yaml:"join_token_ttl"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int     `yaml:"connections_per_minute"`
			MessagesPerSecond    float64 `yaml:"messages_per_second"`
			Burst                int     `yaml:"burst"`
			MaxMessageSizeBytes  int64   `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		ServiceName string  `yaml:"service_name"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Agent
	if c.Agent.Role != "host" && c.Agent.Role != "controller" {
		return fmt.Errorf("agent.role must be \"host\" or \"controller\"")
	}
	if c.Agent.SessionID == "" {
		return fmt.Errorf("agent.session_id must not be empty")
	}
	if c.Agent.SignalURL == "" {
		return fmt.Errorf("agent.signal_url must not be empty")
	}

	// API
	if c.API.Address == "" {
		return fmt.Errorf("api.address must not be empty")
	}
	if c.API.ReadTimeout <= 0 {
		return fmt.Errorf("api.read_timeout must be > 0")
	}
	if c.API.WriteTimeout <= 0 {
		return fmt.Errorf("api.write_timeout must be > 0")
	}
	if c.API.ShutdownTimeout <= 0 {
		return fmt.Errorf("api.shutdown_timeout must be > 0")
	}

	// Signal
	if c.Signal.Address == "" {
		return fmt.Errorf("signal.address must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= 0 {
		return fmt.Errorf("signal.pong_timeout must be > 0")
	}
	if c.Signal.ShutdownTimeout <= 0 {
		return fmt.Errorf("signal.shutdown_timeout must be > 0")
	}

	// WebRTC
	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}

	// Quality
	if c.Quality.SampleInterval <= 0 {
		return fmt.Errorf("quality.sample_interval must be > 0")
	}
	if c.Quality.WindowSize <= 0 {
		return fmt.Errorf("quality.window_size must be > 0")
	}

	// Bitrate
	if c.Bitrate.Cooldown <= 0 {
		return fmt.Errorf("bitrate.cooldown must be > 0")
	}
	if c.Bitrate.InitialPreset == "" {
		return fmt.Errorf("bitrate.initial_preset must not be empty")
	}

	// Control
	if c.Control.ProbeTimeout <= 0 {
		return fmt.Errorf("control.probe_timeout must be > 0")
	}
	if c.Control.PointerEventsPerSecond <= 0 {
		return fmt.Errorf("control.pointer_events_per_second must be > 0")
	}
	if c.Control.PointerEventBurst <= 0 {
		return fmt.Errorf("control.pointer_event_burst must be > 0")
	}

	// Transfer
	if c.Transfer.TTL <= 0 {
		return fmt.Errorf("transfer.ttl must be > 0")
	}
	if c.Transfer.SweepInterval <= 0 {
		return fmt.Errorf("transfer.sweep_interval must be > 0")
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.SessionTTL <= 0 {
			return fmt.Errorf("redis.session_ttl must be > 0 when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.JoinTokenTTL <= 0 {
		return fmt.Errorf("auth.join_token_ttl must be > 0")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0 when rate limiting is enabled")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in [0,1]")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Default values
	cfg.Agent.SessionID = "dev-session"
	cfg.Agent.Role = "host"
	cfg.Agent.SignalURL = "ws://localhost:8081/ws"

	cfg.API.Address = ":8080"
	cfg.API.ReadTimeout = 30 * time.Second
	cfg.API.WriteTimeout = 30 * time.Second
	cfg.API.ShutdownTimeout = 30 * time.Second
	cfg.API.AuthEnabled = false

	cfg.Signal.Address = ":8081"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.ShutdownTimeout = 30 * time.Second
	cfg.Signal.RequireToken = false

	cfg.Quality.SampleInterval = time.Second
	cfg.Quality.WindowSize = 10

	cfg.Bitrate.AutoAdjust = true
	cfg.Bitrate.InitialPreset = "high"
	cfg.Bitrate.Cooldown = 5 * time.Second

	cfg.Control.Enabled = true
	cfg.Control.ClipboardEnabled = true
	cfg.Control.NativeSocket = "/run/desklink/input.sock"
	cfg.Control.ProbeTimeout = 500 * time.Millisecond
	cfg.Control.PointerEventsPerSecond = 240
	cfg.Control.PointerEventBurst = 480

	cfg.Transfer.TTL = 2 * time.Minute
	cfg.Transfer.SweepInterval = 30 * time.Second
	cfg.Transfer.DownloadDir = ""

	cfg.Media.RTPListenAddress = "127.0.0.1:5004"
	cfg.Media.EncoderSocket = "/run/desklink/encoder.sock"
	cfg.Media.PayloadType = 96
	cfg.Media.ClockRate = 90000

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.SessionTTL = 5 * time.Minute

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.JoinTokenTTL = 12 * time.Hour
	cfg.Auth.AllowedOrigins = []string{"*"}

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 100
	cfg.RateLimiting.WebSocket.Burst = 200
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 256 * 1024

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.ServiceName = "desklink"
	cfg.Tracing.SampleRate = 0.1

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if sid := os.Getenv("DESKLINK_SESSION_ID"); sid != "" {
		c.Agent.SessionID = sid
	}
	if pid := os.Getenv("DESKLINK_PARTICIPANT_ID"); pid != "" {
		c.Agent.ParticipantID = pid
	}
	if role := os.Getenv("DESKLINK_ROLE"); role != "" {
		c.Agent.Role = role
	}
	if url := os.Getenv("DESKLINK_SIGNAL_URL"); url != "" {
		c.Agent.SignalURL = url
	}
	if tok := os.Getenv("DESKLINK_JOIN_TOKEN"); tok != "" {
		c.Agent.JoinToken = tok
	}
	if addr := os.Getenv("DESKLINK_API_ADDRESS"); addr != "" {
		c.API.Address = addr
	}
	if addr := os.Getenv("DESKLINK_SIGNAL_ADDRESS"); addr != "" {
		c.Signal.Address = addr
	}
	if level := os.Getenv("DESKLINK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("DESKLINK_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if sock := os.Getenv("DESKLINK_NATIVE_SOCKET"); sock != "" {
		c.Control.NativeSocket = sock
	}
	if addr := os.Getenv("DESKLINK_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
}
