package providers

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"
)

func TestMockModel(t *testing.T) {
	ctx := context.Background()

	t.Run("returns scripted output", func(t *testing.T) {
		m := NewMockModel("<div>x</div>")
		res, err := m.Generate(ctx, GenerateRequest{})
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if res.Raw != "<div>x</div>" || res.TokenCount != 10 {
			t.Errorf("got %+v", res)
		}
		if m.Calls() != 1 {
			t.Errorf("Calls() = %d, want 1", m.Calls())
		}
	})

	t.Run("fail first", func(t *testing.T) {
		m := NewMockModel("ok")
		m.FailFirst = 2
		for i := 0; i < 2; i++ {
			if _, err := m.Generate(ctx, GenerateRequest{}); !IsTransient(err) {
				t.Fatalf("call %d: error = %v, want transient", i+1, err)
			}
		}
		if _, err := m.Generate(ctx, GenerateRequest{}); err != nil {
			t.Errorf("third call error = %v", err)
		}
	})

	t.Run("fail when", func(t *testing.T) {
		boom := errors.New("boom")
		m := NewMockModel("ok")
		m.FailWhen = func(req GenerateRequest) error {
			if req.PromptType == PromptOCR {
				return boom
			}
			return nil
		}
		if _, err := m.Generate(ctx, GenerateRequest{PromptType: PromptOCR}); !errors.Is(err, boom) {
			t.Errorf("error = %v, want boom", err)
		}
		if _, err := m.Generate(ctx, GenerateRequest{PromptType: PromptOCRLayout}); err != nil {
			t.Errorf("error = %v", err)
		}
		if got := len(m.Requests()); got != 2 {
			t.Errorf("Requests() = %d, want 2", got)
		}
	})

	t.Run("latency respects context", func(t *testing.T) {
		m := NewMockModel("ok")
		m.Latency = time.Hour
		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		if _, err := m.Generate(cctx, GenerateRequest{}); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want deadline exceeded", err)
		}
	})
}

func TestOpenAIModel_Live(t *testing.T) {
	cfg := LoadTestConfig()
	if !cfg.HasVLLM() {
		t.Skip("CHANDRA_TEST_VLLM_URL not set")
	}

	img := image.NewRGBA(image.Rect(0, 0, 256, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 256; x++ {
			img.Set(x, y, color.White)
		}
	}

	m := NewOpenAIModel(OpenAIConfig{BaseURL: cfg.VLLMBaseURL, Model: cfg.VLLMModel})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := m.Generate(ctx, GenerateRequest{Image: img, PromptType: PromptOCRLayout, MaxOutputTokens: 256, BBoxScale: 1024})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	t.Logf("tokens=%d finish=%s raw=%q", res.TokenCount, res.FinishReason, strings.TrimSpace(res.Raw))
}

func TestGeminiModel_Live(t *testing.T) {
	cfg := LoadTestConfig()
	if !cfg.HasGemini() {
		t.Skip("GEMINI_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	m, err := NewGeminiModel(ctx, GeminiConfig{APIKey: cfg.GeminiAPIKey})
	if err != nil {
		t.Fatalf("NewGeminiModel() error = %v", err)
	}
	defer m.Close()

	res, err := m.Generate(ctx, GenerateRequest{Image: image.NewRGBA(image.Rect(0, 0, 64, 64)), PromptType: PromptOCR, MaxOutputTokens: 64})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	t.Logf("tokens=%d finish=%s", res.TokenCount, res.FinishReason)
}
