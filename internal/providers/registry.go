package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
)

// Model backend types.
const (
	TypeOpenAI = "openai" // any OpenAI-compatible chat endpoint (vLLM, TGI, hosted)
	TypeGemini = "gemini"
	TypeMock   = "mock"
)

// ModelConfig describes how to build the model for one serving method.
type ModelConfig struct {
	Type              string
	BaseURL           string
	Model             string
	APIKey            string // Resolved API key
	RequestsPerMinute int
	Enabled           bool
}

// RegistryConfig maps serving methods to model configs.
type RegistryConfig struct {
	Models map[string]ModelConfig
}

// Registry maps a serving method to its model. Models are built on first
// use and kept until a reload changes their config.
type Registry struct {
	mu      sync.Mutex
	configs map[string]ModelConfig
	models  map[string]Model
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		configs: make(map[string]ModelConfig),
		models:  make(map[string]Model),
		logger:  slog.Default(),
	}
}

// NewRegistryFromConfig creates a registry that lazily builds the enabled
// models in cfg.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Reload(cfg)
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register installs an already built model for method.
func (r *Registry) Register(method string, m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[method] = m
	if _, ok := r.configs[method]; !ok {
		r.configs[method] = ModelConfig{Type: "static", Model: m.Name(), Enabled: true}
	}
	r.logger.Info("registered model", "method", method, "model", m.Name())
}

// Get returns the model for method, building it on first use.
func (r *Registry) Get(ctx context.Context, method string) (Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.models[method]; ok {
		return m, nil
	}
	cfg, ok := r.configs[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}

	m, err := createModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init %s model: %w", method, err)
	}
	r.models[method] = m
	r.logger.Info("initialized model", "method", method, "type", cfg.Type, "model", m.Name())
	return m, nil
}

// Has reports whether method is configured.
func (r *Registry) Has(method string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.configs[method]
	return ok
}

// Methods returns all configured methods, sorted.
func (r *Registry) Methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.configs)
}

// Initialized returns the methods whose model has been built, sorted.
func (r *Registry) Initialized() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.models)
}

// Reload replaces the configured methods. Built models whose config is
// unchanged are kept; the rest are closed and rebuilt on next use.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]ModelConfig)
	for method, mc := range cfg.Models {
		if mc.Enabled {
			next[method] = mc
		}
	}

	for method, m := range r.models {
		old, hadOld := r.configs[method]
		cur, ok := next[method]
		if hadOld && old.Type == "static" && !ok {
			// Registered directly; keep unless the config now claims the method.
			next[method] = old
			continue
		}
		if !ok || cur != old {
			closeModel(m, r.logger)
			delete(r.models, method)
			r.logger.Info("dropped model", "method", method)
		}
	}
	r.configs = next
}

// Close releases every built model.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for method, m := range r.models {
		if c, ok := m.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", method, err))
			}
		}
		delete(r.models, method)
	}
	return errors.Join(errs...)
}

func createModel(ctx context.Context, cfg ModelConfig) (Model, error) {
	switch cfg.Type {
	case TypeOpenAI, "":
		return NewOpenAIModel(OpenAIConfig{
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			APIKey:            cfg.APIKey,
			RequestsPerMinute: cfg.RequestsPerMinute,
		}), nil
	case TypeGemini:
		return NewGeminiModel(ctx, GeminiConfig{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			RequestsPerMinute: cfg.RequestsPerMinute,
		})
	case TypeMock:
		return NewMockModel(""), nil
	default:
		return nil, fmt.Errorf("unsupported model type: %s", cfg.Type)
	}
}

func closeModel(m Model, logger *slog.Logger) {
	if c, ok := m.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn("failed to close model", "model", m.Name(), "error", err)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
