package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 10
	cfg.RateLimiting.HTTP.Burst = 20
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 50
	cfg.RateLimiting.WebSocket.Burst = 100
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 65536
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected default config to validate, got error: %v", err)
	}
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	// Zero out rate limiting values to ensure they are ignored when disabled.
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 0
	cfg.RateLimiting.WebSocket.Burst = 0
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when rate limiting disabled, got error: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name: "role must be host or controller",
			mutate: func(c *Config) {
				c.Agent.Role = "spectator"
			},
		},
		{
			name: "session id must not be empty",
			mutate: func(c *Config) {
				c.Agent.SessionID = ""
			},
		},
		{
			name: "signal url must not be empty",
			mutate: func(c *Config) {
				c.Agent.SignalURL = ""
			},
		},
		{
			name: "quality sample interval must be > 0",
			mutate: func(c *Config) {
				c.Quality.SampleInterval = 0
			},
		},
		{
			name: "quality window must be > 0",
			mutate: func(c *Config) {
				c.Quality.WindowSize = 0
			},
		},
		{
			name: "bitrate cooldown must be > 0",
			mutate: func(c *Config) {
				c.Bitrate.Cooldown = 0
			},
		},
		{
			name: "bitrate initial preset must not be empty",
			mutate: func(c *Config) {
				c.Bitrate.InitialPreset = ""
			},
		},
		{
			name: "control probe timeout must be > 0",
			mutate: func(c *Config) {
				c.Control.ProbeTimeout = 0
			},
		},
		{
			name: "pointer rate must be > 0",
			mutate: func(c *Config) {
				c.Control.PointerEventsPerSecond = 0
			},
		},
		{
			name: "transfer ttl must be > 0",
			mutate: func(c *Config) {
				c.Transfer.TTL = 0
			},
		},
		{
			name: "port range needs both ends",
			mutate: func(c *Config) {
				c.WebRTC.PortRange.Min = 50000
				c.WebRTC.PortRange.Max = 0
			},
		},
		{
			name: "port range min < max",
			mutate: func(c *Config) {
				c.WebRTC.PortRange.Min = 50010
				c.WebRTC.PortRange.Max = 50000
			},
		},
		{
			name: "http rps must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.HTTP.RequestsPerSecond = 0
			},
		},
		{
			name: "ws connections per minute must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.WebSocket.ConnectionsPerMinute = 0
			},
		},
		{
			name: "ws messages per second must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.WebSocket.MessagesPerSecond = 0
			},
		},
		{
			name: "tracing needs jaeger url",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.JaegerURL = ""
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			// ensure timing fields are valid to isolate the mutated field
			cfg.API.ReadTimeout = time.Second
			cfg.API.WriteTimeout = time.Second
			cfg.Signal.PingInterval = time.Second
			cfg.Signal.PongTimeout = time.Second
			tc.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load with missing file: %v", err)
	}
	if cfg.Quality.SampleInterval != time.Second {
		t.Errorf("expected default sample interval 1s, got %v", cfg.Quality.SampleInterval)
	}
	if cfg.Bitrate.InitialPreset != "high" {
		t.Errorf("expected default initial preset high, got %q", cfg.Bitrate.InitialPreset)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
agent:
  session_id: team-42
  role: controller
  signal_url: ws://relay:8081/ws
bitrate:
  initial_preset: medium
control:
  native_socket: /tmp/input.sock
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.SessionID != "team-42" {
		t.Errorf("session_id = %q, want team-42", cfg.Agent.SessionID)
	}
	if cfg.Agent.Role != "controller" {
		t.Errorf("role = %q, want controller", cfg.Agent.Role)
	}
	if cfg.Bitrate.InitialPreset != "medium" {
		t.Errorf("initial_preset = %q, want medium", cfg.Bitrate.InitialPreset)
	}
	if cfg.Control.NativeSocket != "/tmp/input.sock" {
		t.Errorf("native_socket = %q, want /tmp/input.sock", cfg.Control.NativeSocket)
	}
	// untouched sections keep defaults
	if cfg.Signal.PingInterval != 30*time.Second {
		t.Errorf("ping_interval = %v, want default 30s", cfg.Signal.PingInterval)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DESKLINK_ROLE", "controller")
	t.Setenv("DESKLINK_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.Role != "controller" {
		t.Errorf("role = %q, want controller from env", cfg.Agent.Role)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug from env", cfg.Logging.Level)
	}
}
