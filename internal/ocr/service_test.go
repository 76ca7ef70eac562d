package ocr

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/LastGentlman/chandra/internal/config"
	"github.com/LastGentlman/chandra/internal/ingest"
	"github.com/LastGentlman/chandra/internal/llmcall"
	"github.com/LastGentlman/chandra/internal/providers"
)

const figurePage = `<div data-bbox="0 0 1024 100" data-label="Text"><p>Intro</p></div>` +
	`<div data-bbox="0 0 512 512" data-label="Figure"><img alt="chart"/></div>` +
	`<div data-bbox="0 1000 1024 1024" data-label="Page-Footer"><p>Page 1</p></div>`

func newService(t *testing.T, mock *providers.MockModel) *Service {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Inference.RetryBaseDelay = time.Millisecond
	cfg.Inference.RetryMaxDelay = 2 * time.Millisecond

	reg := providers.NewRegistry()
	reg.Register(providers.MethodVLLM, mock)
	return &Service{Registry: reg, Config: cfg}
}

func TestService_Process(t *testing.T) {
	mock := providers.NewMockModel(figurePage)
	svc := newService(t, mock)

	pages := []image.Image{
		image.NewRGBA(image.Rect(0, 0, 2048, 2048)),
		image.NewRGBA(image.Rect(0, 0, 1024, 1024)),
	}
	opts := svc.Config.DefaultOptions()

	resp, err := svc.Process(context.Background(), pages, opts)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if resp.Metadata.NumPages != 2 || resp.Metadata.TotalTokenCount != 20 {
		t.Errorf("metadata = %+v", resp.Metadata)
	}
	if resp.Metadata.TotalChunks != 6 || len(resp.Chunks) != 6 {
		t.Errorf("total chunks = %d", resp.Metadata.TotalChunks)
	}
	if strings.Contains(resp.Markdown, "Page 1") {
		t.Error("footer rendered with include_headers_footers=false")
	}
	for name := range resp.Images {
		if !strings.HasPrefix(name, "page_1_") && !strings.HasPrefix(name, "page_2_") {
			t.Errorf("image %q not namespaced", name)
		}
	}

	reqs := mock.Requests()
	if len(reqs) != 2 {
		t.Fatalf("model called %d times", len(reqs))
	}
	if reqs[0].MaxOutputTokens != 12384 || reqs[0].BBoxScale != 1024 || reqs[0].PromptType != providers.PromptOCRLayout {
		t.Errorf("request = %+v", reqs[0])
	}

	out, err := NewOutput(resp)
	if err != nil {
		t.Fatalf("NewOutput() error = %v", err)
	}
	if len(out.Images) != 2 {
		t.Errorf("encoded %d images, want 2", len(out.Images))
	}
	for _, uri := range out.Images {
		if !strings.HasPrefix(uri, "data:image/png;base64,") {
			t.Errorf("image payload %q is not a data URI", uri[:min(len(uri), 30)])
		}
	}
}

func TestService_Process_WithholdsImages(t *testing.T) {
	svc := newService(t, providers.NewMockModel(figurePage))
	opts := svc.Config.DefaultOptions()
	opts.IncludeImages = false

	resp, err := svc.Process(context.Background(), []image.Image{image.NewRGBA(image.Rect(0, 0, 1024, 1024))}, opts)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	out, err := NewImageOutput(resp)
	if err != nil {
		t.Fatalf("NewImageOutput() error = %v", err)
	}
	if len(out.Images) != 0 {
		t.Errorf("images attached with include_images=false")
	}
	if out.Metadata.NumImages != 1 || out.Metadata.Method != providers.MethodVLLM {
		t.Errorf("metadata = %+v", out.Metadata)
	}
	if !strings.Contains(out.Markdown, resp.Chunks[1].Image) {
		t.Error("markdown should still reference the image by name")
	}
}

func TestService_Process_PageFailure(t *testing.T) {
	mock := providers.NewMockModel(figurePage)
	mock.FailWhen = func(req providers.GenerateRequest) error {
		if req.Image.Bounds().Dx() == 500 {
			return &providers.TransientError{StatusCode: 503, Message: "down"}
		}
		return nil
	}
	svc := newService(t, mock)
	sink := &llmcall.MemoryStore{}
	s := llmcall.NewSink(llmcall.SinkConfig{Store: sink})
	s.Start(context.Background())
	svc.Recorder = llmcall.NewRecorder(s)

	pages := []image.Image{
		image.NewRGBA(image.Rect(0, 0, 1024, 1024)),
		image.NewRGBA(image.Rect(0, 0, 500, 500)),
	}
	resp, err := svc.Process(context.Background(), pages, svc.Config.DefaultOptions())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got := resp.FailedPages(); len(got) != 1 || got[0] != 2 {
		t.Errorf("FailedPages() = %v, want [2]", got)
	}
	if resp.Metadata.Pages[0].Error != "" {
		t.Errorf("page 1 error = %q", resp.Metadata.Pages[0].Error)
	}
	if mock.Calls() != 7 {
		t.Errorf("model calls = %d, want 1 + 6", mock.Calls())
	}

	s.Stop()
	if got := len(sink.Calls()); got != 7 {
		t.Errorf("recorded %d calls, want 7", got)
	}
}

func TestService_Process_ClientErrors(t *testing.T) {
	svc := newService(t, providers.NewMockModel(figurePage))
	page := []image.Image{image.NewRGBA(image.Rect(0, 0, 10, 10))}

	opts := svc.Config.DefaultOptions()
	opts.Method = "tesseract"
	if _, err := svc.Process(context.Background(), page, opts); !IsClientError(err) {
		t.Errorf("bad method error = %v", err)
	}

	opts = svc.Config.DefaultOptions()
	opts.Method = providers.MethodGemini
	_, err := svc.Process(context.Background(), page, opts)
	if !errors.Is(err, providers.ErrUnknownMethod) || !IsClientError(err) {
		t.Errorf("unconfigured method error = %v", err)
	}

	if _, err := svc.Process(context.Background(), nil, svc.Config.DefaultOptions()); !errors.Is(err, ingest.ErrNoPages) {
		t.Errorf("no pages error = %v", err)
	}

	if IsClientError(errors.New("boom")) {
		t.Error("generic error classified as client error")
	}
}

func TestService_ProcessFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 300, 200))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	mock := providers.NewMockModel(figurePage)
	svc := newService(t, mock)
	resp, err := svc.ProcessFile(context.Background(), path, svc.Config.DefaultOptions())
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	// Upscaled to min_image_dim on the longest side.
	if box := resp.Metadata.Pages[0].PageBox; box != [4]int{0, 0, 1536, 1024} {
		t.Errorf("page box = %v", box)
	}

	dir := filepath.Join(t.TempDir(), "out")
	written, err := Save(dir, "scan", resp)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	// md, html, metadata and one crop
	if len(written) != 4 {
		t.Errorf("wrote %v", written)
	}
	for _, p := range written {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %s", p)
		}
	}
}
