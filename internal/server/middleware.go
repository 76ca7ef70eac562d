package server

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"slices"
	"strings"

	"github.com/LastGentlman/chandra/internal/api"
)

// maxFormMemory matches the OCR endpoint so the form is parsed only once.
const maxFormMemory = 32 << 20

// limitBody caps every request body at server.max_upload_mb.
func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limit := s.configMgr.Get().Server.MaxUploadBytes(); limit > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

// cors adds CORS headers and answers preflight requests.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed := s.configMgr.Get().Server.AllowedOrigins
		if origin := allowOrigin(allowed, r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")

		if r.Method == http.MethodOptions {
			writeJSON(w, http.StatusOK, struct{}{})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when it is not allowed. allowed is "*" or a comma separated list.
func allowOrigin(allowed, origin string) string {
	allowed = strings.TrimSpace(allowed)
	if allowed == "" || allowed == "*" {
		return "*"
	}
	if origin == "" {
		return ""
	}
	list := strings.Split(allowed, ",")
	for i := range list {
		list[i] = strings.TrimSpace(list[i])
	}
	if slices.Contains(list, origin) {
		return origin
	}
	return ""
}

// requireAPIKey rejects requests without the configured key. It is a no-op
// unless server.require_api_key is set and a key is configured.
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := s.configMgr.Get()
		expected := cfg.ResolvedAPIKey()
		if !cfg.Server.RequireAPIKey || expected == "" {
			next(w, r)
			return
		}

		provided := requestAPIKey(r)
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid or missing API key"})
			return
		}
		next(w, r)
	}
}

// requestAPIKey finds the client's key in the Authorization header, the
// query string, the multipart form or the JSON body, in that order. The
// body is restored for the handler.
func requestAPIKey(r *http.Request) string {
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return auth
	}
	if key := r.URL.Query().Get(api.APIKeyField); key != "" {
		return key
	}
	if r.Body == nil {
		return ""
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return ""
		}
		if values := r.MultipartForm.Value[api.APIKeyField]; len(values) > 0 {
			return values[0]
		}
	case "application/json":
		body, err := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return ""
		}
		var payload struct {
			APIKey string `json:"api_key"`
		}
		if json.Unmarshal(body, &payload) == nil {
			return payload.APIKey
		}
	}
	return ""
}
