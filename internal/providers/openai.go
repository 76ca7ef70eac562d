package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/LastGentlman/chandra/internal/images"
)

const (
	defaultVLLMBaseURL = "http://localhost:8000/v1"
	defaultVLLMModel   = "chandra"
	defaultVLLMAPIKey  = "EMPTY"
)

// OpenAIConfig configures a model behind an OpenAI-compatible chat API,
// such as a vLLM server or a hosted inference endpoint.
type OpenAIConfig struct {
	BaseURL           string
	Model             string
	APIKey            string
	RequestsPerMinute int           // 0 disables client-side limiting
	Timeout           time.Duration // HTTP timeout
	HTTPClient        *http.Client  // Optional (tests)
}

// OpenAIModel implements Model over the chat completions API.
type OpenAIModel struct {
	baseURL string
	model   string
	apiKey  string
	limiter *RateLimiter
	client  openai.Client
}

// NewOpenAIModel creates a chat-completions backed model.
func NewOpenAIModel(cfg OpenAIConfig) *OpenAIModel {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultVLLMBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultVLLMModel
	}
	if cfg.APIKey == "" {
		cfg.APIKey = defaultVLLMAPIKey
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	m := &OpenAIModel{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		// Attempts are owned by the inference retry loop.
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
			option.WithHTTPClient(httpClient),
			option.WithMaxRetries(0),
		),
	}
	if cfg.RequestsPerMinute > 0 {
		m.limiter = NewRateLimiter(cfg.RequestsPerMinute)
	}
	return m
}

// Name returns the served model name.
func (m *OpenAIModel) Name() string {
	return m.model
}

// HealthCheck verifies the endpoint answers a model listing.
func (m *OpenAIModel) HealthCheck(ctx context.Context) error {
	if _, err := m.client.Models.List(ctx); err != nil {
		return fmt.Errorf("models list failed: %w", m.mapError(err))
	}
	return nil
}

// Generate sends the page image and prompt as one user message.
func (m *OpenAIModel) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	start := time.Now()

	if req.Image == nil {
		return nil, errors.New("image is required")
	}
	prompt, err := Prompt(req.PromptType, req.BBoxScale)
	if err != nil {
		return nil, err
	}
	dataURL, err := images.DataURI(req.Image)
	if err != nil {
		return nil, err
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(m.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
				openai.TextContentPart(prompt),
			}),
		},
		Temperature: openai.Float(0),
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		err = m.mapError(err)
		if rle, ok := IsRateLimitError(err); ok && m.limiter != nil {
			m.limiter.Record429(rle.RetryAfter)
		}
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &TransientError{Message: "response contained no choices"}
	}

	choice := resp.Choices[0]
	return &GenerateResult{
		Raw:           choice.Message.Content,
		TokenCount:    int(resp.Usage.CompletionTokens),
		FinishReason:  string(choice.FinishReason),
		ExecutionTime: time.Since(start),
	}, nil
}

func (m *OpenAIModel) mapError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	var header http.Header
	if apiErr.Response != nil {
		header = apiErr.Response.Header
	}
	msg := apiErr.Message
	if msg == "" {
		msg = http.StatusText(apiErr.StatusCode)
	}
	return classifyStatus(m.model, apiErr.StatusCode, msg, header)
}

var _ Model = (*OpenAIModel)(nil)
