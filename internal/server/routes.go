package server

import (
	"encoding/json"
	"net/http"

	"github.com/LastGentlman/chandra/internal/vllm"
)

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	s.endpointRegistry.RegisterRoutes(mux, s.requireAPIKey)
	mux.HandleFunc("GET /ready", s.handleReady)
}

// ReadyResponse is the response for the readiness endpoint.
type ReadyResponse struct {
	Status string `json:"status"`
	Method string `json:"method"`
	VLLM   string `json:"vllm,omitempty"`
}

// handleReady returns OK only if the default method is configured and, when
// the server manages vLLM, its container is running.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	method := s.configMgr.Get().DefaultMethod
	resp := ReadyResponse{Status: "ok", Method: method}

	if !s.registry.Has(method) {
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	if s.vllmManager != nil {
		status, err := s.vllmManager.Status(r.Context())
		if err != nil || status != vllm.StatusRunning {
			resp.Status = "degraded"
			resp.VLLM = string(status)
			if err != nil {
				resp.VLLM = "error"
			}
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.VLLM = string(status)
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
