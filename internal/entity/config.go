package entity

import (
	"fmt"
	"time"
)

// LinkToggles selects which link categories the extractor keeps.
type LinkToggles struct {
	Static   bool `json:"static" mapstructure:"static"`
	Dynamic  bool `json:"dynamic" mapstructure:"dynamic"`
	Resource bool `json:"resource" mapstructure:"resource"`
	External bool `json:"external" mapstructure:"external"`
}

// DefaultLinkToggles enables static anchor extraction only.
func DefaultLinkToggles() LinkToggles {
	return LinkToggles{Static: true}
}

// Config is the per-run crawl configuration.
type Config struct {
	MaxCrawlDepth         int           `json:"max_crawl_depth" mapstructure:"max_crawl_depth"`
	MaxPagesToCrawl       int           `json:"max_pages_to_crawl" mapstructure:"max_pages_to_crawl"`
	MaxLinksToValidate    int           `json:"max_links_to_validate" mapstructure:"max_links_to_validate"`
	Toggles               LinkToggles   `json:"link_extraction" mapstructure:"link_extraction"`
	RequestTimeout        time.Duration `json:"request_timeout" mapstructure:"request_timeout"`
	MaxConcurrentRequests int           `json:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`
	RetryAttempts         int           `json:"retry_attempts" mapstructure:"retry_attempts"`
	UserAgent             string        `json:"user_agent" mapstructure:"user_agent"`
	WallClockCeiling      time.Duration `json:"wall_clock_ceiling" mapstructure:"wall_clock_ceiling"`
}

// DefaultConfig returns the baseline crawl settings,
// suitable as a base that env/viper layers override.
func DefaultConfig() Config {
	return Config{
		MaxCrawlDepth:         2,
		MaxPagesToCrawl:       100,
		MaxLinksToValidate:    200,
		Toggles:               DefaultLinkToggles(),
		RequestTimeout:        10 * time.Second,
		MaxConcurrentRequests: 10,
		RetryAttempts:         3,
		UserAgent:             "WebsiteAnalysisEngine/1.0",
		WallClockCeiling:      10 * time.Minute,
	}
}

// Validate enforces the enumerated ranges and cross-field
// constraint, returning every violation rather than only the first.
func (c Config) Validate() error {
	var errs []string

	if c.MaxCrawlDepth < 1 || c.MaxCrawlDepth > 5 {
		errs = append(errs, fmt.Sprintf("max_crawl_depth must be in [1,5], got %d", c.MaxCrawlDepth))
	}
	if c.MaxPagesToCrawl < 10 || c.MaxPagesToCrawl > 1000 {
		errs = append(errs, fmt.Sprintf("max_pages_to_crawl must be in [10,1000], got %d", c.MaxPagesToCrawl))
	}
	if c.MaxLinksToValidate < 10 || c.MaxLinksToValidate > 2000 {
		errs = append(errs, fmt.Sprintf("max_links_to_validate must be in [10,2000], got %d", c.MaxLinksToValidate))
	}
	if c.MaxLinksToValidate < 2*c.MaxPagesToCrawl {
		errs = append(errs, fmt.Sprintf("max_links_to_validate (%d) must be >= 2x max_pages_to_crawl (%d)", c.MaxLinksToValidate, c.MaxPagesToCrawl))
	}
	if c.MaxConcurrentRequests < 1 {
		errs = append(errs, "max_concurrent_requests must be >= 1")
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, "request_timeout must be positive")
	}

	if len(errs) == 0 {
		return nil
	}
	return &ConfigValidationError{Violations: errs}
}

// ConfigValidationError lists every violated constraint in one Config.
type ConfigValidationError struct {
	Violations []string
}

func (e *ConfigValidationError) Error() string {
	msg := "invalid config:"
	for _, v := range e.Violations {
		msg += " " + v + ";"
	}
	return msg
}
