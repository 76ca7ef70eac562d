package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Registry holds all registered endpoints.
type Registry struct {
	endpoints []Endpoint
}

// NewRegistry creates a new endpoint registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an endpoint to the registry.
func (r *Registry) Register(ep Endpoint) {
	r.endpoints = append(r.endpoints, ep)
}

// RegisterRoutes registers all endpoint HTTP routes with the given mux.
// authMiddleware wraps handlers that require an API key.
func (r *Registry) RegisterRoutes(mux *http.ServeMux, authMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	for _, ep := range r.endpoints {
		method, path, handler := ep.Route()
		if ep.RequiresAuth() {
			handler = authMiddleware(handler)
		}
		mux.HandleFunc(method+" "+path, handler)
	}
}

// BuildCommands returns a cobra.Command tree for all registered endpoints.
// getClient is called at runtime to build the API client.
func (r *Registry) BuildCommands(getClient func() *Client) *cobra.Command {
	apiCmd := &cobra.Command{
		Use:   "api",
		Short: "Commands that call the running server",
		Long: `API commands call the running chandra server via HTTP.

These commands require a running server (chandra serve).
Use --server to specify a custom server URL and --api-key when the
server requires one.

Examples:
  chandra api health                  # Check server health
  chandra api status                  # Show configured methods
  chandra api ocr scan.pdf            # OCR a file
  chandra api ocr-image page.png      # OCR one image as base64`,
	}

	for _, ep := range r.endpoints {
		if cmd := ep.Command(getClient); cmd != nil {
			apiCmd.AddCommand(cmd)
		}
	}

	return apiCmd
}

// Endpoints returns all registered endpoints.
func (r *Registry) Endpoints() []Endpoint {
	return r.endpoints
}
