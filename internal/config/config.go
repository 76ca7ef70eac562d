// Package config loads chandra settings from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/LastGentlman/chandra/internal/ingest"
	"github.com/LastGentlman/chandra/internal/providers"
)

// EnvPrefix prefixes every environment override, e.g.
// CHANDRA_INFERENCE_MAX_OUTPUT_TOKENS.
const EnvPrefix = "CHANDRA"

// legacyEnv maps short environment names kept for existing deployments.
var legacyEnv = map[string]string{
	"server.api_key":          "CHANDRA_API_KEY",
	"server.require_api_key":  "CHANDRA_REQUIRE_API_KEY",
	"server.allowed_origins":  "CHANDRA_ALLOWED_ORIGINS",
	"server.max_upload_mb":    "MAX_UPLOAD_MB",
	"ingest.max_image_pixels": "MAX_IMAGE_PIXELS",
	"inference.max_retries":   "MAX_VLLM_RETRIES",
}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

// NewManager creates a new config manager and loads initial config.
// cfgFile may be empty to search ./config.yaml and $HOME/.chandra/config.yaml.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
		logger:    slog.Default(),
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

// SetLogger sets the logger used for reload messages.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	for _, e := range DefaultEntries() {
		v.SetDefault(e.Key, e.Value)
	}

	// Environment variables with CHANDRA_ prefix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.chandra")
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFile returns the file the config was read from, if any.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. Invalid edits are
// logged and the previous config is kept.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cm.reload(e.Name)
	})
	cm.v.WatchConfig()
}

func (cm *Manager) reload(source string) {
	cfg, err := cm.load()
	if err != nil {
		cm.mu.RLock()
		logger := cm.logger
		cm.mu.RUnlock()
		logger.Warn("ignoring invalid config change", "file", source, "error", err)
		return
	}

	cm.mu.Lock()
	cm.config = cfg
	callbacks := make([]func(*Config), len(cm.callbacks))
	copy(callbacks, cm.callbacks)
	logger := cm.logger
	cm.mu.Unlock()

	logger.Info("config reloaded", "file", source)
	for _, fn := range callbacks {
		fn(cfg)
	}
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ResolvedAPIKey returns the server API key with env references expanded.
func (c *Config) ResolvedAPIKey() string {
	return ResolveEnvVars(c.Server.APIKey)
}

// ToRegistryConfig converts the config to a format suitable for
// providers.Registry. It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		Models: make(map[string]providers.ModelConfig),
	}
	for method, m := range c.Models {
		cfg.Models[method] = providers.ModelConfig{
			Type:              m.Type,
			BaseURL:           m.BaseURL,
			Model:             m.Model,
			APIKey:            ResolveEnvVars(m.APIKey),
			RequestsPerMinute: m.RateLimit,
			Enabled:           m.Enabled,
		}
	}
	return cfg
}

// LoadOptions returns the ingest options for pageRange.
func (c *Config) LoadOptions(pageRange string) ingest.LoadOptions {
	return ingest.LoadOptions{
		PageRange:      pageRange,
		ImageDPI:       c.Ingest.ImageDPI,
		MinImageDim:    c.Ingest.MinImageDim,
		MinPDFImageDim: c.Ingest.MinPDFImageDim,
		MaxImagePixels: c.Ingest.MaxImagePixels,
	}
}

// UploadPolicy returns the accepted upload types.
func (c *Config) UploadPolicy() ingest.UploadPolicy {
	return ingest.UploadPolicy{
		Extensions: c.Ingest.AllowedExtensions,
		MIMETypes:  c.Ingest.AllowedMIMETypes,
	}
}

// Validate checks that numeric settings are usable.
func (c *Config) Validate() error {
	var errs []error
	positive := map[string]int{
		"inference.max_output_tokens": c.Inference.MaxOutputTokens,
		"inference.bbox_scale":        c.Inference.BBoxScale,
		"inference.max_retries":       c.Inference.MaxRetries,
		"inference.page_concurrency":  c.Inference.PageConcurrency,
		"ingest.image_dpi":            c.Ingest.ImageDPI,
		"server.max_upload_mb":        c.Server.MaxUploadMB,
	}
	for _, key := range Keys() {
		if v, ok := positive[key]; ok && v <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidOption, key, v))
		}
	}
	return errors.Join(errs...)
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Chandra configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Any key can be overridden with CHANDRA_<SECTION>_<KEY>, e.g. CHANDRA_INFERENCE_BBOX_SCALE=1024

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
