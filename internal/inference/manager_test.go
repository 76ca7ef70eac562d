package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LastGentlman/chandra/internal/llmcall"
	"github.com/LastGentlman/chandra/internal/providers"
)

const textPage = `<div data-bbox="0 0 1024 100" data-label="Text"><p>Hello</p></div>`

func newTestManager(t *testing.T, model providers.Model, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := Config{
		Model:     model,
		Method:    "mock",
		BaseDelay: time.Millisecond,
		MaxDelay:  2 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func pages(n int) []BatchInputItem {
	items := make([]BatchInputItem, n)
	for i := range items {
		items[i] = BatchInputItem{Image: image.NewRGBA(image.Rect(0, 0, 100+i, 100)), PromptType: providers.PromptOCRLayout}
	}
	return items
}

func TestGenerate_PageFailsAfterMaxAttempts(t *testing.T) {
	items := pages(2)
	mock := providers.NewMockModel(textPage)
	mock.FailWhen = func(req providers.GenerateRequest) error {
		if req.Image == items[1].Image {
			return &providers.TransientError{StatusCode: 503, Message: "endpoint unavailable"}
		}
		return nil
	}

	var mu sync.Mutex
	statuses := map[int]PageStatus{}
	m := newTestManager(t, mock, func(c *Config) {
		c.OnPageDone = func(s PageStatus) {
			mu.Lock()
			statuses[s.Index] = s
			mu.Unlock()
		}
	})

	results, err := m.Generate(context.Background(), items, GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}

	if results[0].Failed() {
		t.Errorf("page 1 error = %q", results[0].Error)
	}
	if results[0].Markdown != "Hello" || results[0].TokenCount != 10 {
		t.Errorf("page 1 = %+v", results[0])
	}

	p2 := results[1]
	if !p2.Failed() || !strings.Contains(p2.Error, "6 attempt") {
		t.Errorf("page 2 error = %q, want failure after 6 attempts", p2.Error)
	}
	if p2.Chunks == nil || p2.Images == nil || p2.Markdown != "" || p2.TokenCount != 0 {
		t.Errorf("failed page should have empty, non-nil fields: %+v", p2)
	}
	if p2.PageBox != [4]int{0, 0, 101, 100} {
		t.Errorf("page 2 PageBox = %v", p2.PageBox)
	}

	if got := mock.Calls(); got != 1+6 {
		t.Errorf("model calls = %d, want 7", got)
	}

	s := statuses[1]
	if s.State != StateFailed || s.Attempts != 6 {
		t.Errorf("page 2 status = %v after %d attempts", s.State, s.Attempts)
	}
	// pending, then five attempt/retry pairs, then a last attempt and failure
	if len(s.History) != 1+5*2+2 {
		t.Errorf("page 2 history = %v", s.History)
	}
	if got := statuses[0].History; !reflect.DeepEqual(got, []State{StatePending, StateAttempting, StateSucceeded}) {
		t.Errorf("page 1 history = %v", got)
	}
}

func TestGenerate_TransientThenSuccess(t *testing.T) {
	mock := providers.NewMockModel(textPage)
	mock.FailFirst = 2

	m := newTestManager(t, mock, nil)
	results, err := m.Generate(context.Background(), pages(1), GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if results[0].Failed() {
		t.Errorf("error = %q, retries should hide transient failures", results[0].Error)
	}
	if mock.Calls() != 3 {
		t.Errorf("calls = %d, want 3", mock.Calls())
	}
}

func TestGenerate_PermanentErrorNotRetried(t *testing.T) {
	mock := providers.NewMockModel(textPage)
	mock.FailFirst = 10
	mock.Err = errors.New("status 400: bad image")

	m := newTestManager(t, mock, nil)
	results, err := m.Generate(context.Background(), pages(1), GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !results[0].Failed() {
		t.Error("expected page failure")
	}
	if mock.Calls() != 1 {
		t.Errorf("calls = %d, permanent errors should not retry", mock.Calls())
	}
}

func TestGenerate_PreservesOrderInParallel(t *testing.T) {
	const n = 8
	items := pages(n)
	mock := providers.NewMockModel("")
	mock.Latency = time.Millisecond
	model := &widthModel{MockModel: mock}

	m := newTestManager(t, model, nil)
	results, err := m.Generate(context.Background(), items, GenerateOptions{Concurrency: 4})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(results) != n {
		t.Fatalf("len(results) = %d, want %d", len(results), n)
	}
	for i, r := range results {
		want := fmt.Sprintf("w%d", 100+i)
		if r.Markdown != want {
			t.Errorf("results[%d].Markdown = %q, want %q", i, r.Markdown, want)
		}
	}
}

// widthModel echoes the image width so results can be matched to inputs.
type widthModel struct {
	*providers.MockModel
}

func (w *widthModel) Generate(ctx context.Context, req providers.GenerateRequest) (*providers.GenerateResult, error) {
	res, err := w.MockModel.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	// Later pages finish first.
	time.Sleep(time.Duration(200-req.Image.Bounds().Dx()) * 50 * time.Microsecond)
	res.Raw = fmt.Sprintf(`<div data-bbox="0 0 10 10" data-label="Text">w%d</div>`, req.Image.Bounds().Dx())
	return res, nil
}

func TestGenerate_AppliesDefaultsAndOverrides(t *testing.T) {
	mock := providers.NewMockModel(textPage)
	m := newTestManager(t, mock, func(c *Config) {
		c.DefaultMaxOutputTokens = 999
		c.DefaultBBoxScale = 1000
	})

	if _, err := m.Generate(context.Background(), pages(1), GenerateOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Generate(context.Background(), []BatchInputItem{{Image: image.NewRGBA(image.Rect(0, 0, 2, 2))}},
		GenerateOptions{MaxOutputTokens: 10, BBoxScale: 2048}); err != nil {
		t.Fatal(err)
	}

	reqs := mock.Requests()
	if reqs[0].MaxOutputTokens != 999 || reqs[0].BBoxScale != 1000 {
		t.Errorf("defaults not applied: %+v", reqs[0])
	}
	if reqs[1].MaxOutputTokens != 10 || reqs[1].BBoxScale != 2048 {
		t.Errorf("overrides not applied: %+v", reqs[1])
	}
	if reqs[1].PromptType != providers.PromptOCRLayout {
		t.Errorf("PromptType = %q, want default ocr_layout", reqs[1].PromptType)
	}
}

func TestGenerate_InvalidOptions(t *testing.T) {
	m := newTestManager(t, providers.NewMockModel(""), nil)
	if _, err := m.Generate(context.Background(), pages(1), GenerateOptions{BBoxScale: -1}); err == nil {
		t.Error("expected error for negative bbox_scale")
	}
	if _, err := m.Generate(context.Background(), pages(1), GenerateOptions{MaxOutputTokens: -5}); err == nil {
		t.Error("expected error for negative max_output_tokens")
	}
}

func TestGenerate_CancelledContext(t *testing.T) {
	mock := providers.NewMockModel(textPage)
	m := newTestManager(t, mock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Generate(ctx, pages(3), GenerateOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestGenerate_Empty(t *testing.T) {
	m := newTestManager(t, providers.NewMockModel(""), nil)
	results, err := m.Generate(context.Background(), nil, GenerateOptions{})
	if err != nil || len(results) != 0 {
		t.Errorf("Generate(nil) = %v, %v", results, err)
	}
}

func TestGenerate_RecordsEveryAttempt(t *testing.T) {
	store := &llmcall.MemoryStore{}
	sink := llmcall.NewSink(llmcall.SinkConfig{Store: store, FlushInterval: time.Hour})
	sink.Start(context.Background())
	defer sink.Stop()

	mock := providers.NewMockModel(textPage)
	mock.FailFirst = 1
	m := newTestManager(t, mock, func(c *Config) {
		c.Recorder = llmcall.NewRecorder(sink)
	})

	if _, err := m.Generate(context.Background(), pages(1), GenerateOptions{RequestID: "req-9"}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	calls := store.Calls()
	if len(calls) != 2 {
		t.Fatalf("recorded %d calls, want 2", len(calls))
	}
	if calls[0].Success || !calls[1].Success {
		t.Errorf("success flags = %v, %v", calls[0].Success, calls[1].Success)
	}
	if calls[1].Attempt != 2 || calls[1].RequestID != "req-9" || calls[1].PageNum != 1 {
		t.Errorf("call = %+v", calls[1])
	}
}

func TestNewManager(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Error("expected error without a model")
	}
	if _, err := NewManager(Config{Model: providers.NewMockModel(""), MaxAttempts: -1}); err == nil {
		t.Error("expected error for negative attempts")
	}
}

func TestTracker(t *testing.T) {
	tr := newTracker()
	for _, s := range []State{StateAttempting, StateRetrying, StateAttempting, StateSucceeded} {
		if err := tr.to(s); err != nil {
			t.Fatalf("to(%s) error = %v", s, err)
		}
	}
	if err := tr.to(StateAttempting); err == nil {
		t.Error("terminal state should reject transitions")
	}
	state, attempts, _ := tr.snapshot()
	if state != StateSucceeded || attempts != 2 || !state.Terminal() {
		t.Errorf("state = %s, attempts = %d", state, attempts)
	}
	if err := newTracker().to(StateSucceeded); err == nil {
		t.Error("pending cannot jump to succeeded")
	}
}
