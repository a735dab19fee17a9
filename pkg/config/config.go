package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// UserConfig describes one account known to the identity provider.
type UserConfig struct {
	ID         string `yaml:"id"`
	Email      string `yaml:"email"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	AccessCode string `yaml:"access_code"`
	Tier       string `yaml:"tier"`
	Credits    int    `yaml:"credits"`
	MaxStreams int    `yaml:"max_streams"`
}

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Simulation struct {
		TickInterval        time.Duration `yaml:"tick_interval"`
		BootDelay           time.Duration `yaml:"boot_delay"`
		TeardownDelay       time.Duration `yaml:"teardown_delay"`
		DroppedFrameWarning int           `yaml:"dropped_frame_warning"`
		Seed                uint64        `yaml:"seed"` // 0 = seeded from the wall clock
	} `yaml:"simulation"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
		LoginLatency   time.Duration `yaml:"login_latency"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		Users          []UserConfig  `yaml:"users"`
	} `yaml:"auth"`

	Storage struct {
		Backend string `yaml:"backend"` // memory | file | redis | dynamodb

		File struct {
			Path string `yaml:"path"`
		} `yaml:"file"`

		Redis struct {
			Address  string `yaml:"address"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			PoolSize int    `yaml:"pool_size"`
			Key      string `yaml:"key"`
		} `yaml:"redis"`

		DynamoDB struct {
			Region   string `yaml:"region"`
			Table    string `yaml:"table"`
			Endpoint string `yaml:"endpoint"`
		} `yaml:"dynamodb"`
	} `yaml:"storage"`

	Events struct {
		RedisPubSub struct {
			Enabled bool   `yaml:"enabled"`
			Channel string `yaml:"channel"`
		} `yaml:"redis_pubsub"`

		NATS struct {
			Enabled       bool   `yaml:"enabled"`
			URL           string `yaml:"url"`
			SubjectPrefix string `yaml:"subject_prefix"`
		} `yaml:"nats"`
	} `yaml:"events"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`
	} `yaml:"rate_limiting"`
}

// UsesRedis reports whether any configured component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.Storage.Backend == "redis" || c.Events.RedisPubSub.Enabled
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Simulation
	if c.Simulation.TickInterval <= 0 {
		return fmt.Errorf("simulation.tick_interval must be > 0")
	}
	if c.Simulation.BootDelay < 0 {
		return fmt.Errorf("simulation.boot_delay must be >= 0")
	}
	if c.Simulation.TeardownDelay < 0 {
		return fmt.Errorf("simulation.teardown_delay must be >= 0")
	}
	if c.Simulation.DroppedFrameWarning < 0 {
		return fmt.Errorf("simulation.dropped_frame_warning must be >= 0")
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}
	if c.Auth.LoginLatency < 0 {
		return fmt.Errorf("auth.login_latency must be >= 0")
	}
	seen := make(map[string]bool)
	for i, u := range c.Auth.Users {
		if u.ID == "" {
			return fmt.Errorf("auth.users[%d].id must not be empty", i)
		}
		if seen[u.ID] {
			return fmt.Errorf("auth.users[%d].id %q is duplicated", i, u.ID)
		}
		seen[u.ID] = true
		if u.Email == "" && u.Username == "" {
			return fmt.Errorf("auth.users[%d] needs an email or a username", i)
		}
		if u.MaxStreams < 1 {
			return fmt.Errorf("auth.users[%d].max_streams must be >= 1", i)
		}
		switch u.Tier {
		case "free", "premium", "pro":
		default:
			return fmt.Errorf("auth.users[%d].tier must be one of free, premium, pro", i)
		}
	}

	// Storage
	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.File.Path == "" {
			return fmt.Errorf("storage.file.path must not be empty when storage.backend=file")
		}
	case "redis":
		if c.Storage.Redis.Key == "" {
			return fmt.Errorf("storage.redis.key must not be empty when storage.backend=redis")
		}
	case "dynamodb":
		if c.Storage.DynamoDB.Table == "" {
			return fmt.Errorf("storage.dynamodb.table must not be empty when storage.backend=dynamodb")
		}
		if c.Storage.DynamoDB.Region == "" {
			return fmt.Errorf("storage.dynamodb.region must not be empty when storage.backend=dynamodb")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, file, redis, dynamodb")
	}

	// Redis
	if c.UsesRedis() {
		if c.Storage.Redis.Address == "" {
			return fmt.Errorf("storage.redis.address must not be empty when redis is in use")
		}
		if c.Storage.Redis.PoolSize <= 0 {
			return fmt.Errorf("storage.redis.pool_size must be > 0 when redis is in use")
		}
	}

	// Events
	if c.Events.RedisPubSub.Enabled && c.Events.RedisPubSub.Channel == "" {
		return fmt.Errorf("events.redis_pubsub.channel must not be empty when enabled")
	}
	if c.Events.NATS.Enabled {
		if c.Events.NATS.URL == "" {
			return fmt.Errorf("events.nats.url must not be empty when enabled")
		}
		if c.Events.NATS.SubjectPrefix == "" {
			return fmt.Errorf("events.nats.subject_prefix must not be empty when enabled")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing is enabled")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
			// fall back to defaults
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
			}
		}
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

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Simulation.TickInterval = 2 * time.Second
	cfg.Simulation.BootDelay = 3 * time.Second
	cfg.Simulation.TeardownDelay = 2 * time.Second
	cfg.Simulation.DroppedFrameWarning = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 24 * time.Hour
	cfg.Auth.LoginLatency = time.Second
	cfg.Auth.AllowedOrigins = []string{"*"}
	cfg.Auth.Users = DefaultUsers()

	cfg.Storage.Backend = "memory"
	cfg.Storage.File.Path = "data/bintunet_streams.json"
	cfg.Storage.Redis.Address = "localhost:6379"
	cfg.Storage.Redis.PoolSize = 10
	cfg.Storage.Redis.Key = "bintunet:streams"
	cfg.Storage.DynamoDB.Region = "us-east-1"
	cfg.Storage.DynamoDB.Table = "bintunet_streams"

	cfg.Events.RedisPubSub.Channel = "bintunet:events"
	cfg.Events.NATS.URL = "nats://localhost:4222"
	cfg.Events.NATS.SubjectPrefix = "bintunet.streams"

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.ServiceName = "bintunet"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	return cfg
}

// DefaultUsers returns the two demo accounts.
func DefaultUsers() []UserConfig {
	return []UserConfig{
		{
			ID:         "1",
			Email:      "demo@bintunet.com",
			Username:   "demo",
			Password:   "password",
			AccessCode: "DEMO123",
			Tier:       "premium",
			Credits:    150,
			MaxStreams: 2,
		},
		{
			ID:         "2",
			Email:      "user@example.com",
			Username:   "user1",
			Password:   "test123",
			AccessCode: "USER456",
			Tier:       "free",
			Credits:    10,
			MaxStreams: 2,
		},
	}
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("BINTUNET_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("BINTUNET_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("BINTUNET_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if backend := os.Getenv("BINTUNET_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = strings.ToLower(backend)
	}
	if addr := os.Getenv("BINTUNET_REDIS_ADDRESS"); addr != "" {
		c.Storage.Redis.Address = addr
	}
	if url := os.Getenv("BINTUNET_NATS_URL"); url != "" {
		c.Events.NATS.URL = url
		c.Events.NATS.Enabled = true
	}
}
