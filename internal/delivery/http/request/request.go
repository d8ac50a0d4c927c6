package request

import (
	"time"

	"github.com/user/webanalysis-engine/internal/entity"
)

// StartRunRequest triggers a new analysis run.
type StartRunRequest struct {
	ApplicationID string           `json:"application_id"`
	URL           string           `json:"url"`
	Force         bool             `json:"force"`
	Config        *ConfigOverrides `json:"config,omitempty"`
}

// ConfigOverrides is the per-request slice of the run config; nil fields
// keep the server-side defaults. request_timeout is in seconds.
type ConfigOverrides struct {
	MaxCrawlDepth         *int                `json:"max_crawl_depth,omitempty"`
	MaxPagesToCrawl       *int                `json:"max_pages_to_crawl,omitempty"`
	MaxLinksToValidate    *int                `json:"max_links_to_validate,omitempty"`
	LinkExtraction        *entity.LinkToggles `json:"link_extraction,omitempty"`
	RequestTimeoutSeconds *int                `json:"request_timeout,omitempty"`
	MaxConcurrentRequests *int                `json:"max_concurrent_requests,omitempty"`
	RetryAttempts         *int                `json:"retry_attempts,omitempty"`
	UserAgent             *string             `json:"user_agent,omitempty"`
}

// Apply layers the overrides over base and returns the result.
func (o *ConfigOverrides) Apply(base entity.Config) entity.Config {
	if o == nil {
		return base
	}
	if o.MaxCrawlDepth != nil {
		base.MaxCrawlDepth = *o.MaxCrawlDepth
	}
	if o.MaxPagesToCrawl != nil {
		base.MaxPagesToCrawl = *o.MaxPagesToCrawl
	}
	if o.MaxLinksToValidate != nil {
		base.MaxLinksToValidate = *o.MaxLinksToValidate
	}
	if o.LinkExtraction != nil {
		base.Toggles = *o.LinkExtraction
	}
	if o.RequestTimeoutSeconds != nil {
		base.RequestTimeout = time.Duration(*o.RequestTimeoutSeconds) * time.Second
	}
	if o.MaxConcurrentRequests != nil {
		base.MaxConcurrentRequests = *o.MaxConcurrentRequests
	}
	if o.RetryAttempts != nil {
		base.RetryAttempts = *o.RetryAttempts
	}
	if o.UserAgent != nil {
		base.UserAgent = *o.UserAgent
	}
	return base
}
