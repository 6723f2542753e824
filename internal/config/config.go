package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and file locations plus the viewer bind address.
type Paths struct {
	ImagesRoot string `toml:"images_root"`
	CacheFile  string `toml:"cache_file"`
	SweepRoot  string `toml:"sweep_root"`
	LogDir     string `toml:"log_dir"`
	ViewerBind string `toml:"viewer_bind"`
}

// Analysis contains the orchestration settings for vision API calls.
type Analysis struct {
	Providers         []string `toml:"providers"`
	Size              int      `toml:"size"`
	MaxConcurrent     int      `toml:"max_concurrent"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
	RequestTimeout    int      `toml:"request_timeout"`
	RetryMaxAttempts  int      `toml:"retry_max_attempts"`
	RetryBaseDelay    int      `toml:"retry_base_delay_ms"`
	RetryMaxDelay     int      `toml:"retry_max_delay_ms"`
	RetryJitter       float64  `toml:"retry_jitter"`
}

// Provider contains per-provider API settings. The API key may also come
// from the provider's conventional environment variable.
type Provider struct {
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
}

// Sweep contains the bucket-selection thresholds for two-phase cleanup.
type Sweep struct {
	ThreshDelete  float64 `toml:"thresh_delete"`
	ThreshUnsure  float64 `toml:"thresh_unsure"`
	ThreshLowKeep float64 `toml:"thresh_low_keep"`
}

// Cache contains retention bounds applied by `snapsift cache cleanup`.
type Cache struct {
	MaxAgeDays int `toml:"max_age_days"`
	MaxEntries int `toml:"max_entries"`
}

// Log contains logging configuration.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Scan contains directory scan tuning.
type Scan struct {
	NearDupDistance int `toml:"near_dup_distance"`
}

// Config is the root configuration structure.
type Config struct {
	Paths     Paths    `toml:"paths"`
	Analysis  Analysis `toml:"analysis"`
	OpenAI    Provider `toml:"openai"`
	Anthropic Provider `toml:"anthropic"`
	Gemini    Provider `toml:"gemini"`
	Sweep     Sweep    `toml:"sweep"`
	Cache     Cache    `toml:"cache"`
	Scan      Scan     `toml:"scan"`
	Log       Log      `toml:"log"`
}

// DefaultConfigPath returns the expanded default config file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/snapsift/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and API keys resolved from the
// environment where the file leaves them blank.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("snapsift.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{
		&c.Paths.ImagesRoot,
		&c.Paths.CacheFile,
		&c.Paths.SweepRoot,
		&c.Paths.LogDir,
	} {
		if strings.TrimSpace(*field) == "" {
			continue
		}
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}

	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Anthropic.APIKey == "" {
		c.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	normalized := make([]string, 0, len(c.Analysis.Providers))
	for _, provider := range c.Analysis.Providers {
		trimmed := strings.ToLower(strings.TrimSpace(provider))
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	c.Analysis.Providers = normalized

	return nil
}

// EnsureDirectories creates the directories snapsift writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir, c.Paths.SweepRoot}
	if cacheDir := filepath.Dir(c.Paths.CacheFile); cacheDir != "." && cacheDir != "" {
		dirs = append(dirs, cacheDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ProviderConfig returns the settings block for a named provider.
func (c *Config) ProviderConfig(name string) (Provider, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		return c.OpenAI, true
	case "anthropic", "claude":
		return c.Anthropic, true
	case "gemini":
		return c.Gemini, true
	default:
		return Provider{}, false
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
