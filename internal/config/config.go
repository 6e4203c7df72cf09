package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/scrivener/internal/recognizer"
	"github.com/jackzampolin/scrivener/internal/source"
)

// EnvPrefix prefixes environment overrides, e.g. SCRIVENER_OUT_DIR.
const EnvPrefix = "SCRIVENER"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	if err := setDefaults(v, DefaultConfig()); err != nil {
		return err
	}

	// Environment variables with SCRIVENER_ prefix; nested keys use
	// underscores, e.g. SCRIVENER_TRANSCRIBE_CONCURRENCY.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.scrivener")
	}

	// The config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults registers every leaf of cfg as a dotted viper default, so a
// config file that sets one nested key keeps the defaults of its siblings.
func setDefaults(v *viper.Viper, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal defaults: %w", err)
	}
	var tree map[interface{}]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to read defaults: %w", err)
	}
	walkDefaults(v, "", tree)
	return nil
}

func walkDefaults(v *viper.Viper, prefix string, node map[interface{}]interface{}) {
	for k, val := range node {
		key := fmt.Sprint(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if child, ok := val.(map[interface{}]interface{}); ok {
			walkDefaults(v, key, child)
			continue
		}
		v.SetDefault(key, val)
	}
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the file the configuration was read from, if any.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. A file that fails to
// parse leaves the previous configuration in place.
func (cm *Manager) WatchConfig(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			logger.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		logger.Info("config reloaded", "file", e.Name)
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// ProviderConfigs converts the providers section for recognizer.Registry,
// resolving ${ENV_VAR} references in API keys.
func (c *Config) ProviderConfigs() map[string]recognizer.ProviderConfig {
	out := make(map[string]recognizer.ProviderConfig, len(c.Providers))
	for name, p := range c.Providers {
		out[name] = recognizer.ProviderConfig{
			Type:      p.Type,
			Model:     p.Model,
			APIKey:    ResolveEnvVars(p.APIKey),
			BaseURL:   p.BaseURL,
			Timeout:   time.Duration(p.TimeoutSeconds) * time.Second,
			MaxTokens: p.MaxTokens,
			RateLimit: p.RateLimit,
			Enabled:   p.Enabled,
		}
	}
	return out
}

// BrowserConfig builds the page source settings for one book, resolving
// ${ENV_VAR} references in credentials.
func (c *Config) BrowserConfig(bookID string, logger *slog.Logger) source.BrowserConfig {
	s := c.Source
	return source.BrowserConfig{
		BookID:    bookID,
		LoginURL:  s.LoginURL,
		ReaderURL: s.ReaderURL,
		InfoURL:   s.InfoURL,
		MetaURL:   s.MetaURL,

		Email:    ResolveEnvVars(s.Email),
		Password: ResolveEnvVars(s.Password),

		EmailSelector:    s.Selectors.Email,
		PasswordSelector: s.Selectors.Password,
		SubmitSelector:   s.Selectors.Submit,

		ContentSelector:  s.Selectors.Content,
		PositionSelector: s.Selectors.Position,
		NextSelector:     s.Selectors.Next,

		TOCOpenSelector:  s.Selectors.TOCOpen,
		TOCItemSelector:  s.Selectors.TOCItem,
		TOCTitleSelector: s.Selectors.TOCTitle,
		TOCLabelSelector: s.Selectors.TOCLabel,

		GoToOpenSelector:   s.Selectors.GoToOpen,
		GoToInputSelector:  s.Selectors.GoToInput,
		GoToSubmitSelector: s.Selectors.GoToSubmit,

		Headless:         s.Headless,
		UserAgent:        s.UserAgent,
		OperationTimeout: time.Duration(s.OperationTimeoutSeconds) * time.Second,
		LoadTimeout:      time.Duration(s.LoadTimeoutSeconds) * time.Second,

		Logger: logger,
	}
}

// Duration converts a millisecond setting.
func Duration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// WriteDefault writes the default configuration to the specified path. An
// existing file is left alone unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Scrivener configuration
# Secrets use ${ENV_VAR} syntax to reference environment variables:
#   export SCRIVENER_EMAIL=... SCRIVENER_PASSWORD=... OPENAI_API_KEY=... GEMINI_API_KEY=...
# source.reader_url, source.info_url and source.meta_url take the book ID through %s.

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
