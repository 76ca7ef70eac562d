package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/LastGentlman/chandra/internal/images"
)

const defaultGeminiModel = "gemini-1.5-pro"

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey            string
	Model             string
	RequestsPerMinute int
}

// GeminiModel implements Model with Google's Generative AI SDK.
type GeminiModel struct {
	apiKey  string
	model   string
	limiter *RateLimiter
	client  *genai.Client
}

// NewGeminiModel dials the Generative Language API.
func NewGeminiModel(ctx context.Context, cfg GeminiConfig) (*GeminiModel, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	m := &GeminiModel{apiKey: cfg.APIKey, model: cfg.Model, client: cl}
	if cfg.RequestsPerMinute > 0 {
		m.limiter = NewRateLimiter(cfg.RequestsPerMinute)
	}
	return m, nil
}

// Name returns the Gemini model name.
func (m *GeminiModel) Name() string {
	return m.model
}

// Close releases the underlying client.
func (m *GeminiModel) Close() error {
	return m.client.Close()
}

// Generate sends the prompt and a PNG of the page in a single request.
func (m *GeminiModel) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	start := time.Now()

	if req.Image == nil {
		return nil, errors.New("image is required")
	}
	prompt, err := Prompt(req.PromptType, req.BBoxScale)
	if err != nil {
		return nil, err
	}
	png, err := images.EncodePNG(req.Image)
	if err != nil {
		return nil, err
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	gm := m.client.GenerativeModel(m.model)
	gm.GenerationConfig = genai.GenerationConfig{Temperature: ptrFloat32(0)}
	if req.MaxOutputTokens > 0 {
		n := int32(req.MaxOutputTokens)
		gm.GenerationConfig.MaxOutputTokens = &n
	}

	resp, err := gm.GenerateContent(ctx,
		&genai.Blob{MIMEType: "image/png", Data: png},
		genai.Text(prompt),
	)
	if err != nil {
		err = mapGeminiError(err)
		if rle, ok := IsRateLimitError(err); ok && m.limiter != nil {
			m.limiter.Record429(rle.RetryAfter)
		}
		return nil, err
	}

	res := &GenerateResult{
		Raw:           firstText(resp),
		FinishReason:  "stop",
		ExecutionTime: time.Since(start),
	}
	if resp.UsageMetadata != nil {
		res.TokenCount = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		res.FinishReason = "length"
	}
	return res, nil
}

func mapGeminiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return classifyStatus("gemini", gerr.Code, gerr.Message, gerr.Header)
	}
	return err
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }

var _ Model = (*GeminiModel)(nil)
