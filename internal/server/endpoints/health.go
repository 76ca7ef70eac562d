package endpoints

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/LastGentlman/chandra/internal/api"
	"github.com/LastGentlman/chandra/internal/svcctx"
	"github.com/LastGentlman/chandra/internal/vllm"
)

// ServiceName identifies this API in health responses.
const ServiceName = "chandra-ocr-api"

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// HealthEndpoint handles GET /api/health.
type HealthEndpoint struct{}

var _ api.Endpoint = (*HealthEndpoint)(nil)

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/health", e.handler
}

func (e *HealthEndpoint) RequiresAuth() bool { return false }

// handler godoc
//
//	@Summary		Health check
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/api/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Service: ServiceName})
}

func (e *HealthEndpoint) Command(getClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp HealthResponse
			if err := getClient().Get(cmd.Context(), "/api/health", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server        string      `json:"server"`
	DefaultMethod string      `json:"default_method"`
	Methods       []string    `json:"methods"`
	Initialized   []string    `json:"initialized"`
	VLLM          *VLLMStatus `json:"vllm,omitempty"`
}

// VLLMStatus shows the managed vLLM container.
type VLLMStatus struct {
	Container string `json:"container"`
	URL       string `json:"url"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct {
	// VLLM is set by server since it's not in Services
	VLLM *vllm.DockerManager
}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) RequiresAuth() bool { return true }

// handler godoc
//
//	@Summary		Server status
//	@Description	Configured and initialized OCR methods
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/status [get]
func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{
		Server:        "running",
		DefaultMethod: svcctx.ConfigFrom(ctx).DefaultMethod,
		Methods:       []string{},
		Initialized:   []string{},
	}

	if registry := svcctx.RegistryFrom(ctx); registry != nil {
		resp.Methods = registry.Methods()
		resp.Initialized = registry.Initialized()
	}

	if e.VLLM != nil {
		resp.VLLM = &VLLMStatus{URL: e.VLLM.BaseURL()}
		status, err := e.VLLM.Status(ctx)
		if err != nil {
			resp.VLLM.Container = "error"
		} else {
			resp.VLLM.Container = string(status)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp StatusResponse
			if err := getClient().Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			if api.GetOutputFormat() == api.OutputFormatJSON {
				return api.Output(resp)
			}
			fmt.Printf("Server:         %s\n", resp.Server)
			fmt.Printf("Default method: %s\n", resp.DefaultMethod)
			fmt.Printf("Methods:        %s\n", strings.Join(resp.Methods, ", "))
			fmt.Printf("Initialized:    %s\n", strings.Join(resp.Initialized, ", "))
			if resp.VLLM != nil {
				fmt.Printf("vLLM:           %s (%s)\n", resp.VLLM.Container, resp.VLLM.URL)
			}
			return nil
		},
	}
}
