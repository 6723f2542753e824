package config

const (
	defaultCacheFile         = "~/.cache/snapsift/analysis_cache.json"
	defaultSweepRoot         = "~/.local/share/snapsift/sweep"
	defaultLogDir            = "~/.local/share/snapsift/logs"
	defaultViewerBind        = "127.0.0.1:3000"
	defaultSize              = 512
	defaultMaxConcurrent     = 10
	defaultRequestsPerMinute = 60
	defaultRequestTimeout    = 30
	defaultRetryMaxAttempts  = 3
	defaultRetryBaseDelayMS  = 1000
	defaultRetryMaxDelayMS   = 30000
	defaultRetryJitter       = 0.25
	defaultOpenAIModel       = "gpt-4o-mini"
	defaultOpenAIBaseURL     = "https://api.openai.com/v1/chat/completions"
	defaultAnthropicModel    = "claude-3-haiku-20240307"
	defaultAnthropicBaseURL  = "https://api.anthropic.com/v1/messages"
	defaultGeminiModel       = "gemini-1.5-flash"
	defaultGeminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultThreshDelete      = 0.60
	defaultThreshUnsure      = 0.50
	defaultThreshLowKeep     = 0.75
	defaultCacheMaxAgeDays   = 30
	defaultCacheMaxEntries   = 10000
	defaultNearDupDistance   = 8
	defaultLogLevel          = "info"
	defaultLogFormat         = "console"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheFile:  defaultCacheFile,
			SweepRoot:  defaultSweepRoot,
			LogDir:     defaultLogDir,
			ViewerBind: defaultViewerBind,
		},
		Analysis: Analysis{
			Providers:         []string{"gemini"},
			Size:              defaultSize,
			MaxConcurrent:     defaultMaxConcurrent,
			RequestsPerMinute: defaultRequestsPerMinute,
			RequestTimeout:    defaultRequestTimeout,
			RetryMaxAttempts:  defaultRetryMaxAttempts,
			RetryBaseDelay:    defaultRetryBaseDelayMS,
			RetryMaxDelay:     defaultRetryMaxDelayMS,
			RetryJitter:       defaultRetryJitter,
		},
		OpenAI: Provider{
			Model:   defaultOpenAIModel,
			BaseURL: defaultOpenAIBaseURL,
		},
		Anthropic: Provider{
			Model:   defaultAnthropicModel,
			BaseURL: defaultAnthropicBaseURL,
		},
		Gemini: Provider{
			Model:   defaultGeminiModel,
			BaseURL: defaultGeminiBaseURL,
		},
		Sweep: Sweep{
			ThreshDelete:  defaultThreshDelete,
			ThreshUnsure:  defaultThreshUnsure,
			ThreshLowKeep: defaultThreshLowKeep,
		},
		Cache: Cache{
			MaxAgeDays: defaultCacheMaxAgeDays,
			MaxEntries: defaultCacheMaxEntries,
		},
		Scan: Scan{
			NearDupDistance: defaultNearDupDistance,
		},
		Log: Log{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
