package llmcall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LastGentlman/chandra/internal/providers"
)

func TestFromResult(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c := FromResult(&providers.GenerateResult{TokenCount: 42, FinishReason: "stop", ExecutionTime: 1500 * time.Millisecond},
			nil, RecordOptions{RequestID: "req-1", PageNum: 2, Attempt: 1, Method: "vllm", Model: "chandra"})
		if c.ID == "" {
			t.Error("expected generated ID")
		}
		if !c.Success || c.Error != "" {
			t.Errorf("Success = %v, Error = %q", c.Success, c.Error)
		}
		if c.OutputTokens != 42 || c.LatencyMs != 1500 || c.PageNum != 2 {
			t.Errorf("got %+v", c)
		}
	})

	t.Run("failure without result", func(t *testing.T) {
		c := FromResult(nil, errors.New("503"), RecordOptions{Latency: 20 * time.Millisecond, Attempt: 3})
		if c.Success || c.Error != "503" {
			t.Errorf("Success = %v, Error = %q", c.Success, c.Error)
		}
		if c.LatencyMs != 20 || c.Attempt != 3 {
			t.Errorf("got %+v", c)
		}
	})
}

func TestSink_FlushWritesQueuedCalls(t *testing.T) {
	store := &MemoryStore{}
	sink := NewSink(SinkConfig{Store: store, BatchSize: 100, FlushInterval: time.Hour})

	ctx := context.Background()
	sink.Start(ctx)
	defer sink.Stop()

	rec := NewRecorder(sink)
	for i := 1; i <= 3; i++ {
		rec.Record(&providers.GenerateResult{TokenCount: i}, nil, RecordOptions{PageNum: i})
	}

	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	calls := store.Calls()
	if len(calls) != 3 {
		t.Fatalf("stored %d calls, want 3", len(calls))
	}
	for i, c := range calls {
		if c.PageNum != i+1 {
			t.Errorf("calls[%d].PageNum = %d", i, c.PageNum)
		}
	}
}

func TestSink_StopFlushes(t *testing.T) {
	store := &MemoryStore{}
	sink := NewSink(SinkConfig{Store: store, FlushInterval: time.Hour})
	sink.Start(context.Background())

	sink.Send(Call{ID: "a"})
	sink.Send(Call{ID: "b"})
	sink.Stop()

	if got := len(store.Calls()); got != 2 {
		t.Errorf("stored %d calls after Stop, want 2", got)
	}

	// Sending after stop is dropped, not a panic.
	sink.Send(Call{ID: "c"})
	sink.Stop()
}

func TestSink_BatchSizeTriggersWrite(t *testing.T) {
	store := &MemoryStore{}
	sink := NewSink(SinkConfig{Store: store, BatchSize: 2, FlushInterval: time.Hour})
	sink.Start(context.Background())
	defer sink.Stop()

	sink.Send(Call{ID: "a"})
	sink.Send(Call{ID: "b"})

	deadline := time.Now().Add(2 * time.Second)
	for len(store.Calls()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("batch was not written")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	r.Record(nil, nil, RecordOptions{})
	NewRecorder(nil).RecordCall(&Call{})
}
