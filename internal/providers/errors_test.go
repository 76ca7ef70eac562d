package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", &TransientError{StatusCode: 503, Message: "down"}, true},
		{"wrapped transient", fmt.Errorf("call: %w", &TransientError{Message: "x"}), true},
		{"rate limit", &RateLimitError{Message: "slow"}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"unexpected EOF", errors.New("unexpected EOF"), true},
		{"bad request", errors.New("chandra error (status 400): bad image"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "7")

	if _, ok := IsRateLimitError(classifyStatus("m", 429, "x", h)); !ok {
		t.Error("429 should map to RateLimitError")
	}
	var te *TransientError
	if !errors.As(classifyStatus("m", 502, "x", nil), &te) || te.StatusCode != 502 {
		t.Error("502 should map to TransientError")
	}
	err := classifyStatus("m", 401, "denied", nil)
	if IsTransient(err) || !strings.Contains(err.Error(), "status 401") {
		t.Errorf("401 mapped to %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("5"); got != 5*time.Second {
		t.Errorf("parseRetryAfter(5) = %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("parseRetryAfter(\"\") = %v", got)
	}
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got <= 0 || got > time.Minute {
		t.Errorf("parseRetryAfter(date) = %v", got)
	}
}

func TestPrompt(t *testing.T) {
	p, err := Prompt(PromptOCRLayout, 2048)
	if err != nil {
		t.Fatalf("Prompt() error = %v", err)
	}
	if !strings.Contains(p, "0 to 2048") || !strings.Contains(p, "Page-Footer") {
		t.Errorf("layout prompt missing scale or labels: %q", p)
	}
	plain, _ := Prompt(PromptOCR, 0)
	if strings.Contains(plain, "data-bbox") {
		t.Error("plain OCR prompt should not ask for boxes")
	}
}
