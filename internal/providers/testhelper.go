package providers

import (
	"os"
)

// TestConfig holds live backend settings loaded from environment variables.
// Tests that need a real model skip when the matching value is unset.
type TestConfig struct {
	VLLMBaseURL  string
	VLLMModel    string
	GeminiAPIKey string
}

// LoadTestConfig loads backend settings from environment variables.
func LoadTestConfig() TestConfig {
	return TestConfig{
		VLLMBaseURL:  os.Getenv("CHANDRA_TEST_VLLM_URL"),
		VLLMModel:    os.Getenv("CHANDRA_TEST_VLLM_MODEL"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
	}
}

// HasVLLM returns true if a vLLM endpoint is configured.
func (c TestConfig) HasVLLM() bool {
	return c.VLLMBaseURL != ""
}

// HasGemini returns true if a Gemini API key is configured.
func (c TestConfig) HasGemini() bool {
	return c.GeminiAPIKey != ""
}
