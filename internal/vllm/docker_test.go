package vllm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LastGentlman/chandra/internal/testutil"
)

func TestDockerConfig_Defaults(t *testing.T) {
	cfg := DockerConfig{}.withDefaults()
	if cfg.ContainerName != DefaultContainerName || cfg.Image != DefaultImage || cfg.HostPort != DefaultPort {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Checkpoint != DefaultCheckpoint || cfg.ServedModelName != DefaultServedModelName {
		t.Errorf("model defaults = %+v", cfg)
	}

	custom := DockerConfig{HostPort: "9000"}.withDefaults()
	if custom.HostPort != "9000" {
		t.Errorf("HostPort overridden: %s", custom.HostPort)
	}
}

func TestSplitGPUs(t *testing.T) {
	tests := map[string][]string{
		"":        nil,
		"0":       {"0"},
		"0, 1,,2": {"0", "1", "2"},
	}
	for in, want := range tests {
		if got := splitGPUs(in); !reflect.DeepEqual(got, want) {
			t.Errorf("splitGPUs(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestServeArgs(t *testing.T) {
	m := &DockerManager{checkpoint: "datalab-to/chandra", servedModelName: "chandra", hostPort: "8123"}
	args := m.serveArgs()
	if args[0] != "--model" || args[1] != "datalab-to/chandra" || args[3] != "chandra" {
		t.Errorf("serveArgs() = %v", args)
	}
	if m.BaseURL() != "http://localhost:8123/v1" {
		t.Errorf("BaseURL() = %s", m.BaseURL())
	}
}

func TestWaitForHealthy(t *testing.T) {
	t.Run("becomes healthy", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		if err := WaitForHealthy(context.Background(), srv.URL+"/health", time.Second, 10*time.Millisecond); err != nil {
			t.Fatalf("WaitForHealthy() error = %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("probed %d times, want 3", calls.Load())
		}
	})

	t.Run("times out", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		if err := WaitForHealthy(context.Background(), srv.URL, 50*time.Millisecond, 10*time.Millisecond); err == nil {
			t.Error("expected error from unhealthy server")
		}
	})
}

func TestDockerManager_MissingContainer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping docker test in short mode")
	}
	_ = testutil.DockerClient(t)

	mgr, err := NewDockerManager(DockerConfig{
		ContainerName: testutil.UniqueContainerName(t, "vllm"),
		Labels:        testutil.ContainerLabels(t),
	})
	if err != nil {
		t.Fatalf("NewDockerManager() error = %v", err)
	}
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status, err := mgr.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status != StatusNotFound {
		t.Errorf("Status() = %s, want %s", status, StatusNotFound)
	}
	if err := mgr.Stop(ctx); err != nil {
		t.Errorf("Stop() on missing container error = %v", err)
	}
	if err := mgr.Remove(ctx); err != nil {
		t.Errorf("Remove() on missing container error = %v", err)
	}
}
