// Package config loads the per-run crawl configuration defaults: a
// layered view of built-in defaults, an optional config file, and
// environment variables. Process-level settings (ports, DSNs) live in
// pkg/config; this package only covers the richer run-config surface.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/user/webanalysis-engine/internal/entity"
)

// LoadRunDefaults returns the run Config that new runs start from before
// per-request overrides are applied. Lookup order: environment variables
// (prefix RUN_), then an optional runconfig.yaml, then the built-in
// defaults. Durations accept Go duration strings ("10s", "5m").
func LoadRunDefaults() (entity.Config, error) {
	base := entity.DefaultConfig()

	v := viper.New()
	v.SetConfigName("runconfig")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/webanalysis")

	v.SetDefault("max_crawl_depth", base.MaxCrawlDepth)
	v.SetDefault("max_pages_to_crawl", base.MaxPagesToCrawl)
	v.SetDefault("max_links_to_validate", base.MaxLinksToValidate)
	v.SetDefault("link_extraction.static", base.Toggles.Static)
	v.SetDefault("link_extraction.dynamic", base.Toggles.Dynamic)
	v.SetDefault("link_extraction.resource", base.Toggles.Resource)
	v.SetDefault("link_extraction.external", base.Toggles.External)
	v.SetDefault("request_timeout", base.RequestTimeout.String())
	v.SetDefault("max_concurrent_requests", base.MaxConcurrentRequests)
	v.SetDefault("retry_attempts", base.RetryAttempts)
	v.SetDefault("user_agent", base.UserAgent)
	v.SetDefault("wall_clock_ceiling", base.WallClockCeiling.String())

	v.SetEnvPrefix("RUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return entity.Config{}, err
		}
	}

	var cfg entity.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return entity.Config{}, err
	}
	return cfg, nil
}
