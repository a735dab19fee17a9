package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got: %v", err)
	}
	if cfg.Simulation.TickInterval != 2*time.Second {
		t.Fatalf("unexpected tick interval %v", cfg.Simulation.TickInterval)
	}
	if len(cfg.Auth.Users) != 2 {
		t.Fatalf("expected 2 demo users, got %d", len(cfg.Auth.Users))
	}
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

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
			name: "http rps must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.Enabled = true
				c.RateLimiting.HTTP.RequestsPerSecond = 0
			},
		},
		{
			name: "http burst must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.Enabled = true
				c.RateLimiting.HTTP.Burst = 0
			},
		},
		{
			name: "tick interval must be > 0",
			mutate: func(c *Config) {
				c.Simulation.TickInterval = 0
			},
		},
		{
			name: "unknown storage backend",
			mutate: func(c *Config) {
				c.Storage.Backend = "postgres"
			},
		},
		{
			name: "file backend needs a path",
			mutate: func(c *Config) {
				c.Storage.Backend = "file"
				c.Storage.File.Path = ""
			},
		},
		{
			name: "user quota below one",
			mutate: func(c *Config) {
				c.Auth.Users[0].MaxStreams = 0
			},
		},
		{
			name: "duplicated user id",
			mutate: func(c *Config) {
				c.Auth.Users[1].ID = c.Auth.Users[0].ID
			},
		},
		{
			name: "unknown tier",
			mutate: func(c *Config) {
				c.Auth.Users[0].Tier = "gold"
			},
		},
		{
			name: "nats without url",
			mutate: func(c *Config) {
				c.Events.NATS.Enabled = true
				c.Events.NATS.URL = ""
			},
		},
		{
			name: "sample rate out of range",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 1.5
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.Backend != "memory" {
		t.Fatalf("expected memory backend, got %q", cfg.Storage.Backend)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
simulation:
  tick_interval: 500ms
storage:
  backend: file
  file:
    path: /tmp/streams.json
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BINTUNET_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Simulation.TickInterval != 500*time.Millisecond {
		t.Fatalf("expected 500ms tick, got %v", cfg.Simulation.TickInterval)
	}
	if cfg.Storage.File.Path != "/tmp/streams.json" {
		t.Fatalf("unexpected file path %q", cfg.Storage.File.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected env override, got %q", cfg.Logging.Level)
	}
	// untouched sections keep their defaults
	if cfg.Simulation.BootDelay != 3*time.Second {
		t.Fatalf("expected default boot delay, got %v", cfg.Simulation.BootDelay)
	}
}
