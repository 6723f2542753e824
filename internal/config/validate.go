package config

import (
	"errors"
	"fmt"
	"strings"
)

var knownProviders = map[string]struct{}{
	"openai":    {},
	"anthropic": {},
	"claude":    {},
	"gemini":    {},
	"stub":      {},
}

var knownSizes = map[int]struct{}{256: {}, 512: {}, 768: {}, 1024: {}}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateSweep(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if len(c.Analysis.Providers) == 0 {
		return errors.New("analysis.providers must list at least one provider")
	}
	for _, provider := range c.Analysis.Providers {
		if _, ok := knownProviders[provider]; !ok {
			return fmt.Errorf("analysis.providers: unknown provider %q (expected openai, anthropic, gemini)", provider)
		}
	}
	if _, ok := knownSizes[c.Analysis.Size]; !ok {
		return fmt.Errorf("analysis.size must be one of 256, 512, 768, 1024 (got %d)", c.Analysis.Size)
	}
	if c.Analysis.MaxConcurrent <= 0 {
		return errors.New("analysis.max_concurrent must be positive")
	}
	if c.Analysis.RequestsPerMinute <= 0 {
		return errors.New("analysis.requests_per_minute must be positive")
	}
	if c.Analysis.RequestTimeout <= 0 {
		return errors.New("analysis.request_timeout must be positive (seconds)")
	}
	if c.Analysis.RetryMaxAttempts <= 0 {
		return errors.New("analysis.retry_max_attempts must be positive")
	}
	if c.Analysis.RetryBaseDelay <= 0 {
		return errors.New("analysis.retry_base_delay_ms must be positive")
	}
	if c.Analysis.RetryMaxDelay < c.Analysis.RetryBaseDelay {
		return errors.New("analysis.retry_max_delay_ms must be at least retry_base_delay_ms")
	}
	if c.Analysis.RetryJitter < 0 || c.Analysis.RetryJitter > 1 {
		return errors.New("analysis.retry_jitter must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateSweep() error {
	for name, value := range map[string]float64{
		"sweep.thresh_delete":   c.Sweep.ThreshDelete,
		"sweep.thresh_unsure":   c.Sweep.ThreshUnsure,
		"sweep.thresh_low_keep": c.Sweep.ThreshLowKeep,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.MaxAgeDays < 0 {
		return errors.New("cache.max_age_days must not be negative")
	}
	if c.Cache.MaxEntries < 0 {
		return errors.New("cache.max_entries must not be negative")
	}
	return nil
}

func (c *Config) validateLog() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json (got %q)", c.Log.Format)
	}
	return nil
}

// RequireProviderKey checks that the named provider has an API key configured.
// The stub provider needs no key.
func (c *Config) RequireProviderKey(name string) error {
	if strings.EqualFold(name, "stub") {
		return nil
	}
	provider, ok := c.ProviderConfig(name)
	if !ok {
		return fmt.Errorf("unknown provider %q", name)
	}
	if strings.TrimSpace(provider.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/snapsift/config.toml"
		}
		return fmt.Errorf("%s api key is required. Set the provider env var or edit %s (create with 'snapsift config init')", name, defaultPath)
	}
	return nil
}
