package web

import (
	"time"

	"github.com/listing-matcher/internal/config"
)

// Config represents the web server configuration
type Config struct {
	Server   ServerConfig  `json:"server"`
	Auth     AuthConfig    `json:"auth"`
	Features FeatureConfig `json:"features"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port               int           `json:"port"`
	Host               string        `json:"host"`
	CORSAllowedOrigins []string      `json:"cors_allowed_origins"`
	ShutdownTimeout    time.Duration `json:"shutdown_timeout"`
	RateLimitRPS       float64       `json:"rate_limit_rps"`
	RateLimitBurst     int           `json:"rate_limit_burst"`
}

// AuthConfig contains authentication settings. An empty key disables authentication.
type AuthConfig struct {
	APIKey string `json:"-"`
}

// FeatureConfig contains feature toggles
type FeatureConfig struct {
	ExportEnabled bool `json:"export_enabled"`
	AutoRetrain   bool `json:"auto_retrain"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               8080,
			Host:               "0.0.0.0",
			CORSAllowedOrigins: []string{"*"},
			ShutdownTimeout:    30 * time.Second,
			RateLimitBurst:     20,
		},
		Features: FeatureConfig{
			ExportEnabled: true,
			AutoRetrain:   true,
		},
	}
}

// ConfigFrom derives the web configuration from the process configuration
func ConfigFrom(cfg *config.Config) *Config {
	c := DefaultConfig()
	c.Server.Host = cfg.WebHost
	c.Server.Port = cfg.WebPort
	c.Server.CORSAllowedOrigins = cfg.CORSAllowedOriginsList()
	c.Server.RateLimitRPS = cfg.RateLimitRPS
	c.Server.RateLimitBurst = cfg.RateLimitBurst
	c.Auth.APIKey = cfg.APIKey
	c.Features.AutoRetrain = cfg.AutoRetrain
	c.Features.ExportEnabled = cfg.ExportEnabled
	return c
}
