package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LastGentlman/chandra/internal/providers"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Inference.MaxOutputTokens != 12384 {
		t.Errorf("max_output_tokens = %d, want 12384", cfg.Inference.MaxOutputTokens)
	}
	if cfg.Inference.BBoxScale != 1024 {
		t.Errorf("bbox_scale = %d, want 1024", cfg.Inference.BBoxScale)
	}
	if cfg.Inference.MaxRetries != 6 {
		t.Errorf("max_retries = %d, want 6", cfg.Inference.MaxRetries)
	}
	if cfg.DefaultMethod != providers.MethodVLLM {
		t.Errorf("default_method = %q", cfg.DefaultMethod)
	}
	if got := cfg.EnabledModels(); len(got) != 1 {
		t.Errorf("expected only vllm enabled, got %v", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestDefaultEntries(t *testing.T) {
	seen := map[string]bool{}
	for _, e := range DefaultEntries() {
		if seen[e.Key] {
			t.Errorf("duplicate key %s", e.Key)
		}
		seen[e.Key] = true
		if e.Description == "" {
			t.Errorf("%s has no description", e.Key)
		}
	}

	entry, err := GetDefault("inference.bbox_scale")
	if err != nil || entry.Value != 1024 {
		t.Errorf("GetDefault(bbox_scale) = %v, %v", entry, err)
	}
	if _, err := GetDefault("nope"); !errors.Is(err, ErrNoDefault) {
		t.Errorf("expected ErrNoDefault, got %v", err)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")
		if result := ResolveEnvVars("${TEST_API_KEY}"); result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		if result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}"); result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		if result := ResolveEnvVars("literal-value"); result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestConfig_ToRegistryConfig(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "g-123")

	cfg := DefaultConfig()
	gem := cfg.Models[providers.MethodGemini]
	gem.APIKey = "${TEST_GEMINI_KEY}"
	gem.Enabled = true
	cfg.Models[providers.MethodGemini] = gem

	rc := cfg.ToRegistryConfig()
	if got := rc.Models[providers.MethodGemini]; got.APIKey != "g-123" || got.RequestsPerMinute != 60 || !got.Enabled {
		t.Errorf("gemini model config = %+v", got)
	}
	if got := rc.Models[providers.MethodVLLM]; got.BaseURL != "http://localhost:8000/v1" || got.Type != providers.TypeOpenAI {
		t.Errorf("vllm model config = %+v", got)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfig(t, `
inference:
  bbox_scale: 2048
models:
  vllm:
    type: openai
    base_url: http://gpu-box:8000/v1
    model: chandra
    enabled: true
`)
		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Inference.BBoxScale != 2048 {
			t.Errorf("bbox_scale = %d, want 2048", cfg.Inference.BBoxScale)
		}
		if cfg.Inference.MaxOutputTokens != 12384 {
			t.Errorf("unset keys should keep defaults, got %d", cfg.Inference.MaxOutputTokens)
		}
		if cfg.Models[providers.MethodVLLM].BaseURL != "http://gpu-box:8000/v1" {
			t.Errorf("vllm base_url = %q", cfg.Models[providers.MethodVLLM].BaseURL)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("CHANDRA_INFERENCE_MAX_OUTPUT_TOKENS", "4096")
		t.Setenv("CHANDRA_REQUIRE_API_KEY", "true")
		t.Setenv("MAX_UPLOAD_MB", "5")

		mgr, err := NewManager(writeConfig(t, "default_method: vllm\n"))
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		cfg := mgr.Get()
		if cfg.Inference.MaxOutputTokens != 4096 {
			t.Errorf("max_output_tokens = %d, want 4096", cfg.Inference.MaxOutputTokens)
		}
		if !cfg.Server.RequireAPIKey {
			t.Error("require_api_key should be set from CHANDRA_REQUIRE_API_KEY")
		}
		if cfg.Server.MaxUploadBytes() != 5*1024*1024 {
			t.Errorf("max upload bytes = %d", cfg.Server.MaxUploadBytes())
		}
	})

	t.Run("rejects non-positive settings", func(t *testing.T) {
		_, err := NewManager(writeConfig(t, "inference:\n  bbox_scale: 0\n"))
		if !errors.Is(err, ErrInvalidOption) {
			t.Errorf("expected ErrInvalidOption, got %v", err)
		}
	})
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "default_method: vllm\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "default_method: vllm\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = mgr.Get().DefaultMethod
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "inference:\n  bbox_scale: 1024\n")

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Int64
	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(int64(cfg.Inference.BBoxScale))
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("inference:\n  bbox_scale: 2048\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && callbackCount.Load() == 0 {
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Inference.BBoxScale; got != 2048 {
		t.Errorf("config not updated: bbox_scale = %d", got)
	}
	if v := lastValue.Load(); v != 2048 {
		t.Errorf("callback received %d, want 2048", v)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# Chandra configuration") {
		t.Error("missing header")
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("written default does not load: %v", err)
	}
	if mgr.Get().VLLM.ContainerName != "chandra-vllm" {
		t.Errorf("container_name = %q", mgr.Get().VLLM.ContainerName)
	}
}

func TestOptions(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("defaults", func(t *testing.T) {
		o := cfg.DefaultOptions()
		if !o.IncludeImages || o.IncludeHeadersFooters {
			t.Errorf("unexpected defaults %+v", o)
		}
		if o.Method != providers.MethodVLLM || o.BBoxScale != 1024 {
			t.Errorf("unexpected defaults %+v", o)
		}
	})

	t.Run("set", func(t *testing.T) {
		o := cfg.DefaultOptions()
		sets := [][2]string{
			{OptMethod, "Gemini"},
			{OptIncludeImages, "FALSE"},
			{OptIncludeHeadersFooters, "True"},
			{OptMaxOutputTokens, "512"},
			{OptBBoxScale, "2048"},
			{OptPageRange, "1-3"},
		}
		for _, kv := range sets {
			if err := o.Set(kv[0], kv[1]); err != nil {
				t.Fatalf("Set(%s) error = %v", kv[0], err)
			}
		}
		want := Options{Method: "gemini", IncludeHeadersFooters: true, MaxOutputTokens: 512, BBoxScale: 2048, PageRange: "1-3"}
		if o != want {
			t.Errorf("got %+v, want %+v", o, want)
		}
		if err := o.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("rejects", func(t *testing.T) {
		tests := []struct{ key, value string }{
			{"colour", "red"},
			{OptMaxOutputTokens, "-1"},
			{OptBBoxScale, "abc"},
			{OptBBoxScale, "0"},
		}
		for _, tt := range tests {
			o := cfg.DefaultOptions()
			if err := o.Set(tt.key, tt.value); !errors.Is(err, ErrInvalidOption) {
				t.Errorf("Set(%s, %s) error = %v", tt.key, tt.value, err)
			}
		}

		o := cfg.DefaultOptions()
		o.Method = "tesseract"
		if err := o.Validate(); !errors.Is(err, ErrInvalidOption) {
			t.Errorf("Validate(bad method) error = %v", err)
		}
	})

	t.Run("parse bool", func(t *testing.T) {
		for in, want := range map[string]bool{"true": true, "TRUE": true, " True ": true, "1": false, "yes": false, "": false} {
			if got := ParseBool(in); got != want {
				t.Errorf("ParseBool(%q) = %v", in, got)
			}
		}
	})
}
