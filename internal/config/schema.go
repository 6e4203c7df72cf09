package config

// Config holds scrivener configuration.
// Stored at: ./config.yaml or ~/.scrivener/config.yaml
type Config struct {
	OutDir     string                 `mapstructure:"out_dir" yaml:"out_dir"`
	LogLevel   string                 `mapstructure:"log_level" yaml:"log_level"`
	Source     SourceCfg              `mapstructure:"source" yaml:"source"`
	Extract    ExtractCfg             `mapstructure:"extract" yaml:"extract"`
	Transcribe TranscribeCfg          `mapstructure:"transcribe" yaml:"transcribe"`
	Providers  map[string]ProviderCfg `mapstructure:"providers" yaml:"providers"`
}

// SourceCfg configures the browser page source. URL templates take the book
// ID through a single %s.
type SourceCfg struct {
	LoginURL  string `mapstructure:"login_url" yaml:"login_url"`
	ReaderURL string `mapstructure:"reader_url" yaml:"reader_url"`
	InfoURL   string `mapstructure:"info_url" yaml:"info_url"`
	MetaURL   string `mapstructure:"meta_url" yaml:"meta_url"`

	Email    string `mapstructure:"email" yaml:"email"`       // supports ${ENV_VAR}
	Password string `mapstructure:"password" yaml:"password"` // supports ${ENV_VAR}

	Selectors SelectorsCfg `mapstructure:"selectors" yaml:"selectors"`

	Headless                bool   `mapstructure:"headless" yaml:"headless"`
	UserAgent               string `mapstructure:"user_agent" yaml:"user_agent"`
	OperationTimeoutSeconds int    `mapstructure:"operation_timeout_seconds" yaml:"operation_timeout_seconds"`
	LoadTimeoutSeconds      int    `mapstructure:"load_timeout_seconds" yaml:"load_timeout_seconds"`
}

// SelectorsCfg holds the CSS selectors of the reader UI.
type SelectorsCfg struct {
	Email      string `mapstructure:"email" yaml:"email"`
	Password   string `mapstructure:"password" yaml:"password"`
	Submit     string `mapstructure:"submit" yaml:"submit"`
	Content    string `mapstructure:"content" yaml:"content"`
	Position   string `mapstructure:"position" yaml:"position"`
	Next       string `mapstructure:"next" yaml:"next"`
	TOCOpen    string `mapstructure:"toc_open" yaml:"toc_open"`
	TOCItem    string `mapstructure:"toc_item" yaml:"toc_item"`
	TOCTitle   string `mapstructure:"toc_title" yaml:"toc_title"`
	TOCLabel   string `mapstructure:"toc_label" yaml:"toc_label"`
	GoToOpen   string `mapstructure:"goto_open" yaml:"goto_open"`
	GoToInput  string `mapstructure:"goto_input" yaml:"goto_input"`
	GoToSubmit string `mapstructure:"goto_submit" yaml:"goto_submit"`
}

// ExtractCfg tunes page advancing.
type ExtractCfg struct {
	PollIntervalMS int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	MaxPolls       int `mapstructure:"max_polls" yaml:"max_polls"`
	ReissueEvery   int `mapstructure:"reissue_every" yaml:"reissue_every"`
}

// TranscribeCfg tunes the transcription pipeline.
type TranscribeCfg struct {
	Provider         string  `mapstructure:"provider" yaml:"provider"` // key into providers
	Concurrency      int     `mapstructure:"concurrency" yaml:"concurrency"`
	MaxRetries       int     `mapstructure:"max_retries" yaml:"max_retries"`
	BaseDelayMS      int     `mapstructure:"base_delay_ms" yaml:"base_delay_ms"`
	MaxDelayMS       int     `mapstructure:"max_delay_ms" yaml:"max_delay_ms"`
	RetryTemperature float64 `mapstructure:"retry_temperature" yaml:"retry_temperature"`
	RefusalThreshold int     `mapstructure:"refusal_threshold" yaml:"refusal_threshold"`
	FollowDebounceMS int     `mapstructure:"follow_debounce_ms" yaml:"follow_debounce_ms"`
}

// ProviderCfg configures a vision model provider.
type ProviderCfg struct {
	Type           string  `mapstructure:"type" yaml:"type"` // "openai", "gemini"
	Model          string  `mapstructure:"model" yaml:"model"`
	APIKey         string  `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR}
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxTokens      int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultConfig returns configuration with sensible defaults. Reader URLs and
// selectors depend on the reading service and have no defaults.
func DefaultConfig() *Config {
	return &Config{
		OutDir:   "out",
		LogLevel: "info",
		Source: SourceCfg{
			Email:                   "${SCRIVENER_EMAIL}",
			Password:                "${SCRIVENER_PASSWORD}",
			Headless:                true,
			UserAgent:               "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			OperationTimeoutSeconds: 30,
			LoadTimeoutSeconds:      90,
		},
		Extract: ExtractCfg{
			PollIntervalMS: 500,
			MaxPolls:       20,
			ReissueEvery:   5,
		},
		Transcribe: TranscribeCfg{
			Provider:         "openai",
			Concurrency:      16,
			MaxRetries:       20,
			BaseDelayMS:      1000,
			MaxDelayMS:       30000,
			RetryTemperature: 0.5,
			RefusalThreshold: 2,
			FollowDebounceMS: 2000,
		},
		Providers: map[string]ProviderCfg{
			"openai": {
				Type:           "openai",
				Model:          "gpt-4o",
				APIKey:         "${OPENAI_API_KEY}",
				TimeoutSeconds: 120,
				RateLimit:      8.0,
				Enabled:        true,
			},
			"gemini": {
				Type:           "gemini",
				Model:          "gemini-2.5-flash",
				APIKey:         "${GEMINI_API_KEY}",
				TimeoutSeconds: 120,
				RateLimit:      4.0,
				Enabled:        true,
			},
		},
	}
}

// GetProvider returns a provider config by name.
func (c *Config) GetProvider(name string) (ProviderCfg, bool) {
	cfg, ok := c.Providers[name]
	return cfg, ok
}

// EnabledProviders returns all enabled providers.
func (c *Config) EnabledProviders() map[string]ProviderCfg {
	result := make(map[string]ProviderCfg)
	for name, cfg := range c.Providers {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
