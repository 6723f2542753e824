package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"snapsift/internal/analysiscache"
	"snapsift/internal/config"
	"snapsift/internal/logging"
	"snapsift/internal/retry"
	"snapsift/internal/vision"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// ensureLogger builds the shared logger. CLI runs log to the log file so
// terminal output stays reserved for command results; without a log
// directory the logger falls back to stderr.
func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.loggerOnce.Do(func() {
		var outputs []string
		if strings.TrimSpace(cfg.Paths.LogDir) != "" {
			outputs = append(outputs, filepath.Join(cfg.Paths.LogDir, "snapsift.log"))
		}
		logger, err := logging.New(logging.Options{
			Level:       cfg.Log.Level,
			Format:      cfg.Log.Format,
			OutputPaths: outputs,
		})
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) openCache() (*analysiscache.Cache, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return analysiscache.Open(cfg.Paths.CacheFile, logger)
}

// buildClients constructs one vision client per provider name, defaulting
// to the configured provider list.
func (c *commandContext) buildClients(providers []string) ([]vision.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		providers = cfg.Analysis.Providers
	}
	clients := make([]vision.Client, 0, len(providers))
	for _, name := range providers {
		if err := cfg.RequireProviderKey(name); err != nil {
			return nil, err
		}
		providerCfg, _ := cfg.ProviderConfig(name)
		client, err := vision.New(name, providerCfg, vision.Options{
			Timeout: requestTimeout(cfg),
		})
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, nil
}

// primaryModel resolves the model name that cache lookups and sweeps key
// on: the named provider's model, or the first configured provider's.
func (c *commandContext) primaryModel(provider string) (string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(provider)
	if name == "" {
		if len(cfg.Analysis.Providers) == 0 {
			return "", fmt.Errorf("no providers configured")
		}
		name = cfg.Analysis.Providers[0]
	}
	if strings.EqualFold(name, "stub") {
		return "stub", nil
	}
	providerCfg, ok := cfg.ProviderConfig(name)
	if !ok {
		return "", fmt.Errorf("unknown provider %q", name)
	}
	return providerCfg.Model, nil
}

// retryPolicy maps config delays (milliseconds) onto a retry policy. A
// configured jitter of zero means no jitter, which the policy spells as a
// negative value.
func retryPolicy(cfg *config.Config) retry.Policy {
	jitter := cfg.Analysis.RetryJitter
	if jitter == 0 {
		jitter = -1
	}
	return retry.Policy{
		MaxAttempts: cfg.Analysis.RetryMaxAttempts,
		BaseDelay:   time.Duration(cfg.Analysis.RetryBaseDelay) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Analysis.RetryMaxDelay) * time.Millisecond,
		Jitter:      jitter,
	}
}

func requestTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Analysis.RequestTimeout) * time.Second
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
