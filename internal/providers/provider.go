package providers

import (
	"context"
	"image"
	"time"
)

// Serving methods a Model can be registered under.
const (
	MethodVLLM   = "vllm"
	MethodHF     = "hf"
	MethodGemini = "gemini"
)

// Prompt types understood by the OCR model.
const (
	PromptOCRLayout = "ocr_layout"
	PromptOCR       = "ocr"
)

// Model generates raw layout output for a page image.
type Model interface {
	// Name returns the model identifier used in logs and call records.
	Name() string

	// Generate runs one inference call. Transient failures are returned as
	// errors for which IsTransient reports true.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// GenerateRequest is one model invocation.
type GenerateRequest struct {
	Image           image.Image
	PromptType      string
	MaxOutputTokens int
	BBoxScale       int
}

// GenerateResult is the model's answer for one page.
type GenerateResult struct {
	// Raw is the unparsed model output.
	Raw string
	// TokenCount is the number of generated tokens.
	TokenCount int
	// FinishReason is "stop" for complete output and "length" when the
	// output token budget ran out.
	FinishReason  string
	ExecutionTime time.Duration
}

// Truncated reports whether generation stopped at the token budget.
func (r *GenerateResult) Truncated() bool {
	return r != nil && r.FinishReason == "length"
}
