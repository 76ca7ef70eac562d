package config

import (
	"time"

	"github.com/LastGentlman/chandra/internal/providers"
)

// Config holds chandra configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`
	Inference     InferenceConfig     `mapstructure:"inference" yaml:"inference"`
	Ingest        IngestConfig        `mapstructure:"ingest" yaml:"ingest"`
	DefaultMethod string              `mapstructure:"default_method" yaml:"default_method"`
	Models        map[string]ModelCfg `mapstructure:"models" yaml:"models"`
	CallLog       CallLogConfig       `mapstructure:"call_log" yaml:"call_log"`
	VLLM          VLLMConfig          `mapstructure:"vllm_container" yaml:"vllm_container"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
	// APIKey is checked when RequireAPIKey is set (supports ${ENV_VAR} syntax).
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`
	RequireAPIKey  bool   `mapstructure:"require_api_key" yaml:"require_api_key"`
	AllowedOrigins string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	MaxUploadMB    int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
}

// MaxUploadBytes returns the upload limit in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) * 1024 * 1024
}

// InferenceConfig configures generation.
type InferenceConfig struct {
	MaxOutputTokens int           `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	BBoxScale       int           `mapstructure:"bbox_scale" yaml:"bbox_scale"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	RetryMaxDelay   time.Duration `mapstructure:"retry_max_delay" yaml:"retry_max_delay"`
	PageConcurrency int           `mapstructure:"page_concurrency" yaml:"page_concurrency"`
}

// IngestConfig configures file loading.
type IngestConfig struct {
	ImageDPI          int      `mapstructure:"image_dpi" yaml:"image_dpi"`
	MinImageDim       int      `mapstructure:"min_image_dim" yaml:"min_image_dim"`
	MinPDFImageDim    int      `mapstructure:"min_pdf_image_dim" yaml:"min_pdf_image_dim"`
	MaxImagePixels    int      `mapstructure:"max_image_pixels" yaml:"max_image_pixels"`
	AllowedExtensions []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions"`
	AllowedMIMETypes  []string `mapstructure:"allowed_mime_types" yaml:"allowed_mime_types"`
}

// ModelCfg configures the model behind one method.
type ModelCfg struct {
	Type      string `mapstructure:"type" yaml:"type"`         // "openai", "gemini", "mock"
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"` // OpenAI-compatible endpoint
	Model     string `mapstructure:"model" yaml:"model"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	RateLimit int    `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per minute, 0 = unlimited
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
}

// CallLogConfig configures the inference call log.
type CallLogConfig struct {
	// DSN is a Postgres connection string; empty disables the log.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// VLLMConfig holds vLLM container configuration.
type VLLMConfig struct {
	// ContainerName is the Docker container name (default: chandra-vllm)
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: vllm/vllm-openai:latest)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 8000)
	Port string `mapstructure:"port" yaml:"port"`
	// Checkpoint is the model weights to serve.
	Checkpoint string `mapstructure:"checkpoint" yaml:"checkpoint"`
	// ServedModelName is the name clients request.
	ServedModelName string `mapstructure:"served_model_name" yaml:"served_model_name"`
	// GPUs is a comma separated device list, e.g. "0" or "0,1".
	GPUs string `mapstructure:"gpus" yaml:"gpus"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           "8080",
			APIKey:         "${CHANDRA_API_KEY}",
			RequireAPIKey:  false,
			AllowedOrigins: "*",
			MaxUploadMB:    25,
		},
		Inference: InferenceConfig{
			MaxOutputTokens: 12384,
			BBoxScale:       1024,
			MaxRetries:      6,
			RetryBaseDelay:  time.Second,
			RetryMaxDelay:   30 * time.Second,
			PageConcurrency: 1,
		},
		Ingest: IngestConfig{
			ImageDPI:       192,
			MinImageDim:    1536,
			MinPDFImageDim: 1024,
			MaxImagePixels: 80_000_000,
			AllowedExtensions: []string{
				".pdf", ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".webp", ".heic", ".heif",
			},
			AllowedMIMETypes: []string{
				"application/pdf", "image/png", "image/jpeg", "image/tiff", "image/bmp",
				"image/webp", "image/heic", "image/heif",
			},
		},
		DefaultMethod: providers.MethodVLLM,
		Models: map[string]ModelCfg{
			providers.MethodVLLM: {
				Type:    providers.TypeOpenAI,
				BaseURL: "http://localhost:8000/v1",
				Model:   "chandra",
				APIKey:  "EMPTY",
				Enabled: true,
			},
			providers.MethodHF: {
				Type:    providers.TypeOpenAI,
				BaseURL: "http://localhost:8080/v1",
				Model:   "datalab-to/chandra",
				APIKey:  "${HF_TOKEN}",
				Enabled: false,
			},
			providers.MethodGemini: {
				Type:      providers.TypeGemini,
				Model:     "gemini-1.5-pro",
				APIKey:    "${GEMINI_API_KEY}",
				RateLimit: 60,
				Enabled:   false,
			},
		},
		VLLM: VLLMConfig{
			ContainerName:   "chandra-vllm",
			Image:           "vllm/vllm-openai:latest",
			Port:            "8000",
			Checkpoint:      "datalab-to/chandra",
			ServedModelName: "chandra",
			GPUs:            "0",
		},
	}
}

// GetModel returns a model config by method.
func (c *Config) GetModel(method string) (ModelCfg, bool) {
	cfg, ok := c.Models[method]
	return cfg, ok
}

// EnabledModels returns all enabled model configs.
func (c *Config) EnabledModels() map[string]ModelCfg {
	result := make(map[string]ModelCfg)
	for name, cfg := range c.Models {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
