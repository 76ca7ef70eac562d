// Package llmcall records model inference calls for traceability.
// Every attempt made by the generation loop becomes one Call, whether it
// succeeded or not.
package llmcall

import (
	"time"

	"github.com/google/uuid"

	"github.com/LastGentlman/chandra/internal/providers"
)

// Call represents one recorded model invocation.
type Call struct {
	// Unique identifier
	ID string `json:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	// Context references
	RequestID string `json:"request_id,omitempty"`
	PageNum   int    `json:"page_num"`
	Attempt   int    `json:"attempt"`

	// Model info
	Method     string `json:"method"`
	Model      string `json:"model"`
	PromptType string `json:"prompt_type"`

	// Output
	OutputTokens int    `json:"output_tokens"`
	FinishReason string `json:"finish_reason,omitempty"`

	// Status
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RecordOptions provides context for recording a call.
type RecordOptions struct {
	RequestID  string
	PageNum    int
	Attempt    int
	Method     string
	Model      string
	PromptType string
	Latency    time.Duration
}

// FromResult creates a Call from a generation result and its error.
// Either may be nil.
func FromResult(result *providers.GenerateResult, err error, opts RecordOptions) *Call {
	call := &Call{
		ID:         uuid.New().String(),
		Timestamp:  time.Now(),
		LatencyMs:  int(opts.Latency.Milliseconds()),
		RequestID:  opts.RequestID,
		PageNum:    opts.PageNum,
		Attempt:    opts.Attempt,
		Method:     opts.Method,
		Model:      opts.Model,
		PromptType: opts.PromptType,
		Success:    err == nil,
	}
	if result != nil {
		call.OutputTokens = result.TokenCount
		call.FinishReason = result.FinishReason
		if result.ExecutionTime > 0 {
			call.LatencyMs = int(result.ExecutionTime.Milliseconds())
		}
	}
	if err != nil {
		call.Error = err.Error()
	}
	return call
}
