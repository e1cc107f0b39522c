// Package config provides storefront client configuration loaded from the environment
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings holds all client configuration
type Settings struct {
	// Backend API
	APIBaseURL string        `env:"STOREFRONT_API_BASE_URL,required"`
	APITimeout time.Duration `env:"STOREFRONT_API_TIMEOUT" envDefault:"5s"`

	// Collection stores
	FetchCooldown time.Duration `env:"STOREFRONT_FETCH_COOLDOWN" envDefault:"1s"`
	ErrorTTL      time.Duration `env:"STOREFRONT_ERROR_TTL" envDefault:"5s"`

	// Order tracking
	ReturnLookupConcurrency int `env:"STOREFRONT_RETURN_LOOKUP_CONCURRENCY" envDefault:"4"`

	// Logging / metrics
	ServiceName string `env:"STOREFRONT_SERVICE_NAME" envDefault:"storefront"`
	LogLevel    string `env:"STOREFRONT_LOG_LEVEL" envDefault:"INFO"`
	MetricsAddr string `env:"STOREFRONT_METRICS_ADDR"`

	// Bearer token used by the diagnostic CLI only
	Token string `env:"STOREFRONT_TOKEN"`
}

// Load parses Settings from environment variables and validates them
func Load() (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFrom parses Settings from an explicit variable map instead of the process env
func LoadFrom(vars map[string]string) (*Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Default returns settings pointing at baseURL with default tunables
func Default(baseURL string) *Settings {
	return &Settings{
		APIBaseURL:              baseURL,
		APITimeout:              5 * time.Second,
		FetchCooldown:           time.Second,
		ErrorTTL:                5 * time.Second,
		ReturnLookupConcurrency: 4,
		ServiceName:             "storefront",
		LogLevel:                "INFO",
	}
}

// Validate checks settings for consistency
func (s *Settings) Validate() error {
	u, err := url.Parse(s.APIBaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid STOREFRONT_API_BASE_URL %q", s.APIBaseURL)
	}
	s.APIBaseURL = strings.TrimSuffix(s.APIBaseURL, "/")

	if s.APITimeout <= 0 {
		return fmt.Errorf("STOREFRONT_API_TIMEOUT must be positive, got %s", s.APITimeout)
	}
	if s.FetchCooldown < 0 {
		return fmt.Errorf("STOREFRONT_FETCH_COOLDOWN must not be negative, got %s", s.FetchCooldown)
	}
	if s.ErrorTTL < 0 {
		return fmt.Errorf("STOREFRONT_ERROR_TTL must not be negative, got %s", s.ErrorTTL)
	}
	if s.ReturnLookupConcurrency <= 0 {
		s.ReturnLookupConcurrency = 1
	}
	return nil
}
