package config

import (
	"fmt"
	"os"
	"time"

	"mimo_cam/client/internal/discovery"
	"mimo_cam/client/internal/media"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TransportConfig tunes the socket to the coordination server.
type TransportConfig struct {
	URL              string        `yaml:"url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BackoffMax       time.Duration `yaml:"backoff_max"`
	BackoffJitter    time.Duration `yaml:"backoff_jitter"`
	MaxRetries       int           `yaml:"max_retries"`
}

// MediaConfig selects and tunes the media backend.
type MediaConfig struct {
	// Backend is "pion" or "sim".
	Backend            string           `yaml:"backend"`
	NegotiationTimeout time.Duration    `yaml:"negotiation_timeout"`
	Pion               media.PionConfig `yaml:"pion"`
}

// IdentityConfig controls generated identities.
type IdentityConfig struct {
	Prefix     string `yaml:"prefix"`
	CameraName string `yaml:"camera_name"`
}

// Config holds the application configuration.
type Config struct {
	Role      string           `yaml:"role"`
	Transport TransportConfig  `yaml:"transport"`
	Discovery discovery.Config `yaml:"discovery"`
	Media     MediaConfig      `yaml:"media"`
	Identity  IdentityConfig   `yaml:"identity"`
	LogLevel  string           `yaml:"log_level"`
}

// Load reads configuration from a .env file (if present), an optional
// YAML file, and environment variables. Environment variables take
// precedence over file values.
func Load(path string) (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	cfg := &Config{
		Role:     "viewer",
		LogLevel: "info",
		Media: MediaConfig{
			Backend:            "pion",
			NegotiationTimeout: 15 * time.Second,
		},
		Identity: IdentityConfig{
			Prefix:     "MIMO",
			CameraName: "Camera",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MIMO_SERVER_URL"); v != "" {
		cfg.Transport.URL = v
	}
	if v := os.Getenv("MIMO_ROLE"); v != "" {
		cfg.Role = v
	}
	if v := os.Getenv("MIMO_CAMERA_NAME"); v != "" {
		cfg.Identity.CameraName = v
	}
	if v := os.Getenv("MIMO_MEDIA_BACKEND"); v != "" {
		cfg.Media.Backend = v
	}
	if v := os.Getenv("MIMO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
