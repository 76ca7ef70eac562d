package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/LastGentlman/chandra/internal/api"
	"github.com/LastGentlman/chandra/internal/ocr"
	"github.com/LastGentlman/chandra/internal/svcctx"
	"github.com/LastGentlman/chandra/internal/vllm"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	// VLLM is set when the server manages the vLLM container.
	VLLM *vllm.DockerManager
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&StatusEndpoint{VLLM: cfg.VLLM},

		// OCR endpoints
		&OCREndpoint{},
		&OCRImageEndpoint{},

		// Call log
		&ListLLMCallsEndpoint{},
		&LLMCallStatsEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{},
		&SwaggerUIEndpoint{},
	}
}

// serviceFrom builds the OCR service from the request's services.
func serviceFrom(r *http.Request) *ocr.Service {
	ctx := r.Context()
	return &ocr.Service{
		Registry: svcctx.RegistryFrom(ctx),
		Config:   svcctx.ConfigFrom(ctx),
		Logger:   svcctx.LoggerFrom(ctx),
		Recorder: svcctx.RecorderFrom(ctx),
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeProcessError maps a processing error to 400 or 500.
func writeProcessError(w http.ResponseWriter, r *http.Request, err error) {
	if ocr.IsClientError(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	svcctx.LoggerFrom(r.Context()).Error("ocr request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}
