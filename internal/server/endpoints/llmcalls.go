package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/LastGentlman/chandra/internal/api"
	"github.com/LastGentlman/chandra/internal/llmcall"
	"github.com/LastGentlman/chandra/internal/svcctx"
)

// LLMCallsResponse contains a list of recorded model calls.
type LLMCallsResponse struct {
	Calls []llmcall.Call `json:"calls"`
	Total int            `json:"total"`
}

// ListLLMCallsEndpoint handles GET /api/llmcalls.
type ListLLMCallsEndpoint struct{}

func (e *ListLLMCallsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/llmcalls", e.handler
}

func (e *ListLLMCallsEndpoint) RequiresAuth() bool { return true }

// handler godoc
//
//	@Summary		List model calls
//	@Description	Get the inference call log with optional filters
//	@Tags			llmcalls
//	@Produce		json
//	@Param			request_id	query		string	false	"Filter by request ID"
//	@Param			method		query		string	false	"Filter by method"
//	@Param			success		query		bool	false	"Filter by success status (true or false)"
//	@Param			limit		query		int		false	"Max results (default 100)"
//	@Param			after		query		string	false	"Filter calls after this RFC3339 timestamp"
//	@Success		200			{object}	LLMCallsResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/llmcalls [get]
func (e *ListLLMCallsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.CallLogFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "call log not configured")
		return
	}

	filter, err := parseCallFilter(r, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	calls, err := store.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if calls == nil {
		calls = []llmcall.Call{}
	}
	writeJSON(w, http.StatusOK, LLMCallsResponse{Calls: calls, Total: len(calls)})
}

// parseCallFilter reads the call log filters from the query string.
// defaultLimit applies when no positive limit is given.
func parseCallFilter(r *http.Request, defaultLimit int) (llmcall.QueryFilter, error) {
	q := r.URL.Query()
	filter := llmcall.QueryFilter{
		RequestID: q.Get("request_id"),
		Method:    q.Get("method"),
	}

	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, fmt.Errorf("invalid success filter: %q must be true or false", v)
		}
		filter.Success = &b
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return filter, fmt.Errorf("invalid limit: %q must be an integer", v)
		}
		filter.Limit = limit
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}

	if v := q.Get("after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid after time: %q must be RFC3339 format (e.g., 2024-01-15T00:00:00Z)", v)
		}
		filter.After = &t
	}
	return filter, nil
}

func (e *ListLLMCallsEndpoint) Command(getClient func() *api.Client) *cobra.Command {
	var (
		requestID string
		method    string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "llmcalls",
		Short: "List recorded model calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if requestID != "" {
				q.Set("request_id", requestID)
			}
			if method != "" {
				q.Set("method", method)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := "/api/llmcalls"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var resp LLMCallsResponse
			if err := getClient().Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&requestID, "request-id", "", "Filter by request ID")
	cmd.Flags().StringVar(&method, "method", "", "Filter by method")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max results")
	return cmd
}

// LLMCallStatsEndpoint handles GET /api/llmcalls/stats.
type LLMCallStatsEndpoint struct{}

func (e *LLMCallStatsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/llmcalls/stats", e.handler
}

func (e *LLMCallStatsEndpoint) RequiresAuth() bool { return true }

// handler godoc
//
//	@Summary		Model call statistics
//	@Description	Success rate, latency percentiles and token totals over the call log
//	@Tags			llmcalls
//	@Produce		json
//	@Param			request_id	query		string	false	"Filter by request ID"
//	@Param			method		query		string	false	"Filter by method"
//	@Param			after		query		string	false	"Filter calls after this RFC3339 timestamp"
//	@Success		200			{object}	llmcall.Stats
//	@Failure		400			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/llmcalls/stats [get]
func (e *LLMCallStatsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.CallLogFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "call log not configured")
		return
	}

	// No limit: stats cover every matching call.
	filter, err := parseCallFilter(r, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	calls, err := store.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, llmcall.Summarize(calls))
}

func (e *LLMCallStatsEndpoint) Command(getClient func() *api.Client) *cobra.Command {
	var method string
	cmd := &cobra.Command{
		Use:   "llmcall-stats",
		Short: "Summarize recorded model calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/llmcalls/stats"
			if method != "" {
				path += "?" + url.Values{"method": {method}}.Encode()
			}

			var stats llmcall.Stats
			if err := getClient().Get(cmd.Context(), path, &stats); err != nil {
				return err
			}
			return api.Output(stats)
		},
	}
	cmd.Flags().StringVar(&method, "method", "", "Filter by method")
	return cmd
}
