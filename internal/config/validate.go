package config

import (
	"errors"
	"fmt"
	"slices"

	"visit-recorder/pkg/validator"
)

var (
	backends       = []string{"sqlite", "mysql", "postgres", "memory"}
	collectMethods = []string{"post", "query"}
)

// Validate rejects settings the recorder cannot start with
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if !slices.Contains(backends, c.Storage.Backend) {
		errs = append(errs, fmt.Errorf("storage.backend must be one of %v, got %q", backends, c.Storage.Backend))
	}
	if c.Storage.DSN == "" && c.Storage.Backend != "memory" {
		errs = append(errs, errors.New("storage.dsn is required"))
	}
	if err := validator.ValidateEndpoint(c.App.CollectorEndpoint); err != nil {
		errs = append(errs, fmt.Errorf("app.collector_endpoint: %w", err))
	}
	if c.App.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("app.max_body_bytes must be positive"))
	}
	if c.Redis.Enabled && c.App.RateLimitEnabled && c.App.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("app.rate_limit_per_minute must be positive"))
	}

	return errors.Join(errs...)
}

// Validate rejects an unusable beacon configuration
func (c *CollectorConfig) Validate() error {
	var errs []error

	if err := validator.ValidateURL(c.Destination); err != nil {
		errs = append(errs, fmt.Errorf("beacon.destination: %w", err))
	}
	if !slices.Contains(collectMethods, c.Method) {
		errs = append(errs, fmt.Errorf("beacon.method must be one of %v, got %q", collectMethods, c.Method))
	}
	if c.IncludeIPLookup {
		if err := validator.ValidateURL(c.IPLookupURL); err != nil {
			errs = append(errs, fmt.Errorf("beacon.ip_lookup_url: %w", err))
		}
	}
	if c.Interval < 0 {
		errs = append(errs, fmt.Errorf("beacon.interval must not be negative, got %s", c.Interval))
	}

	return errors.Join(errs...)
}
