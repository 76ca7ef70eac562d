package config

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// Entry is one documented configuration key.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

// DefaultEntries returns the documented configuration keys with their
// defaults. They seed viper so every key can be overridden from the
// environment.
func DefaultEntries() []Entry {
	d := DefaultConfig()
	return []Entry{
		// ===================
		// Server
		// ===================
		{Key: "server.host", Value: d.Server.Host, Description: "Address the API listens on"},
		{Key: "server.port", Value: d.Server.Port, Description: "Port the API listens on"},
		{Key: "server.api_key", Value: d.Server.APIKey, Description: "API key clients must send (uses environment variable)"},
		{Key: "server.require_api_key", Value: d.Server.RequireAPIKey, Description: "Reject requests without a valid API key"},
		{Key: "server.allowed_origins", Value: d.Server.AllowedOrigins, Description: "Access-Control-Allow-Origin value"},
		{Key: "server.max_upload_mb", Value: d.Server.MaxUploadMB, Description: "Maximum upload size in megabytes"},

		// ===================
		// Inference
		// ===================
		{Key: "inference.max_output_tokens", Value: d.Inference.MaxOutputTokens, Description: "Generation budget per page"},
		{Key: "inference.bbox_scale", Value: d.Inference.BBoxScale, Description: "Grid size raw model boxes are expressed on"},
		{Key: "inference.max_retries", Value: d.Inference.MaxRetries, Description: "Maximum attempts per page on transient failures"},
		{Key: "inference.retry_base_delay", Value: d.Inference.RetryBaseDelay, Description: "First retry delay; doubles per attempt"},
		{Key: "inference.retry_max_delay", Value: d.Inference.RetryMaxDelay, Description: "Upper bound for a single retry delay"},
		{Key: "inference.page_concurrency", Value: d.Inference.PageConcurrency, Description: "Pages generated at once per request"},

		// ===================
		// Ingest
		// ===================
		{Key: "ingest.image_dpi", Value: d.Ingest.ImageDPI, Description: "PDF render resolution"},
		{Key: "ingest.min_image_dim", Value: d.Ingest.MinImageDim, Description: "Images are upscaled until their longest side reaches this"},
		{Key: "ingest.min_pdf_image_dim", Value: d.Ingest.MinPDFImageDim, Description: "Rendered PDF pages are upscaled until their longest side reaches this"},
		{Key: "ingest.max_image_pixels", Value: d.Ingest.MaxImagePixels, Description: "Images with more pixels are rejected"},
		{Key: "ingest.allowed_extensions", Value: d.Ingest.AllowedExtensions, Description: "Accepted upload file extensions"},
		{Key: "ingest.allowed_mime_types", Value: d.Ingest.AllowedMIMETypes, Description: "Accepted upload content types"},

		// ===================
		// Models
		// ===================
		{Key: "default_method", Value: d.DefaultMethod, Description: "Method used when a request names none"},
		{Key: "models", Value: d.Models, Description: "Model backend per method (vllm, hf, gemini)"},

		// ===================
		// Call log
		// ===================
		{Key: "call_log.dsn", Value: d.CallLog.DSN, Description: "Postgres DSN for the inference call log (empty disables)"},

		// ===================
		// vLLM container
		// ===================
		{Key: "vllm_container.container_name", Value: d.VLLM.ContainerName, Description: "Docker container name"},
		{Key: "vllm_container.image", Value: d.VLLM.Image, Description: "Docker image"},
		{Key: "vllm_container.port", Value: d.VLLM.Port, Description: "Host port for the OpenAI-compatible API"},
		{Key: "vllm_container.checkpoint", Value: d.VLLM.Checkpoint, Description: "Model weights to serve"},
		{Key: "vllm_container.served_model_name", Value: d.VLLM.ServedModelName, Description: "Model name clients request"},
		{Key: "vllm_container.gpus", Value: d.VLLM.GPUs, Description: "GPU device ids, comma separated"},
	}
}

// GetDefault returns the default entry for a config key.
// Returns ErrNoDefault if no default exists for the key.
func GetDefault(key string) (Entry, error) {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return entry, nil
		}
	}
	return Entry{}, fmt.Errorf("%w for key %q", ErrNoDefault, key)
}

// Keys returns every documented key, sorted.
func Keys() []string {
	entries := DefaultEntries()
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	sort.Strings(keys)
	return keys
}
