package recognizer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ProviderConfig describes one configured recognizer with its API key resolved.
type ProviderConfig struct {
	Type      string // "openai", "gemini"
	Model     string
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
	RateLimit float64 // requests per second, 0 for unlimited
	Enabled   bool
}

// Registry holds the recognizers built from configuration and swaps them when
// the configuration changes.
type Registry struct {
	mu          sync.RWMutex
	recognizers map[string]Recognizer
	configs     map[string]ProviderConfig
	logger      *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		recognizers: make(map[string]Recognizer),
		configs:     make(map[string]ProviderConfig),
		logger:      logger,
	}
}

// Register adds a recognizer by name, replacing any existing one.
func (r *Registry) Register(name string, rec Recognizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizers[name] = rec
	delete(r.configs, name)
}

// Get returns a recognizer by name.
func (r *Registry) Get(name string) (Recognizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.recognizers[name]
	if !ok {
		return nil, fmt.Errorf("recognizer not found: %s", name)
	}
	return rec, nil
}

// List returns registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.recognizers))
	for name := range r.recognizers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reload brings the registry in line with cfg. Providers that are disabled or
// have no API key are removed; changed ones are rebuilt; unchanged ones are kept.
func (r *Registry) Reload(ctx context.Context, cfg map[string]ProviderConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool, len(cfg))
	var firstErr error
	for name, pc := range cfg {
		if !pc.Enabled || pc.APIKey == "" {
			continue
		}
		want[name] = true

		prev, exists := r.configs[name]
		if exists && prev == pc {
			continue
		}
		rec, err := New(ctx, pc)
		if err != nil {
			r.logger.Warn("failed to build recognizer", "name", name, "type", pc.Type, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("recognizer %s: %w", name, err)
			}
			continue
		}
		r.recognizers[name] = rec
		r.configs[name] = pc
		if exists {
			r.logger.Info("updated recognizer", "name", name, "type", pc.Type, "model", pc.Model)
		} else {
			r.logger.Info("registered recognizer", "name", name, "type", pc.Type, "model", pc.Model)
		}
	}

	for name := range r.configs {
		if !want[name] {
			delete(r.recognizers, name)
			delete(r.configs, name)
			r.logger.Info("unregistered recognizer", "name", name)
		}
	}
	return firstErr
}

// New builds a recognizer from a provider config, rate limited if configured.
func New(ctx context.Context, pc ProviderConfig) (Recognizer, error) {
	var rec Recognizer
	switch pc.Type {
	case OpenAIName:
		rec = NewOpenAI(OpenAIConfig{
			APIKey:    pc.APIKey,
			Model:     pc.Model,
			BaseURL:   pc.BaseURL,
			MaxTokens: pc.MaxTokens,
			Timeout:   pc.Timeout,
		})
	case GeminiName:
		g, err := NewGemini(ctx, GeminiConfig{
			APIKey:  pc.APIKey,
			Model:   pc.Model,
			BaseURL: pc.BaseURL,
			Timeout: pc.Timeout,
		})
		if err != nil {
			return nil, err
		}
		rec = g
	default:
		return nil, fmt.Errorf("unknown recognizer type: %q", pc.Type)
	}

	if pc.RateLimit > 0 {
		rec = Limited(rec, NewRateLimiter(pc.RateLimit))
	}
	return rec, nil
}
