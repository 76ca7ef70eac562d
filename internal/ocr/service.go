// Package ocr runs one OCR request end to end: load pages, generate each
// page, merge the results.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/google/uuid"

	"github.com/LastGentlman/chandra/internal/config"
	"github.com/LastGentlman/chandra/internal/document"
	"github.com/LastGentlman/chandra/internal/inference"
	"github.com/LastGentlman/chandra/internal/ingest"
	"github.com/LastGentlman/chandra/internal/layout"
	"github.com/LastGentlman/chandra/internal/llmcall"
	"github.com/LastGentlman/chandra/internal/providers"
)

// Service processes documents with the models in Registry.
type Service struct {
	Registry *providers.Registry
	Config   *config.Config
	Logger   *slog.Logger
	Recorder *llmcall.Recorder
}

// Output is the transport form of a processed document.
type Output struct {
	Markdown string            `json:"markdown"`
	HTML     string            `json:"html"`
	Chunks   []layout.Chunk    `json:"chunks"`
	Images   map[string]string `json:"images"`
	Metadata document.Metadata `json:"metadata"`
}

// ImageMetadata summarizes a single image request.
type ImageMetadata struct {
	TokenCount int    `json:"token_count"`
	NumChunks  int    `json:"num_chunks"`
	NumImages  int    `json:"num_images"`
	PageBox    [4]int `json:"page_box"`
	Method     string `json:"method"`
	Error      string `json:"error,omitempty"`
}

// ImageOutput is the transport form of a single processed image.
type ImageOutput struct {
	Markdown string            `json:"markdown"`
	HTML     string            `json:"html"`
	Chunks   []layout.Chunk    `json:"chunks"`
	Images   map[string]string `json:"images"`
	Metadata ImageMetadata     `json:"metadata"`
}

// IsClientError reports whether err was caused by the request itself.
func IsClientError(err error) bool {
	for _, target := range []error{
		config.ErrInvalidOption,
		ingest.ErrUnsupportedFile,
		ingest.ErrNoPages,
		ingest.ErrInvalidPageRange,
		ingest.ErrImageTooLarge,
		providers.ErrUnknownMethod,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) config() *config.Config {
	if s.Config != nil {
		return s.Config
	}
	return config.DefaultConfig()
}

// ProcessFile loads path (PDF or image) and processes its pages.
func (s *Service) ProcessFile(ctx context.Context, path string, opts config.Options) (*document.Response, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	loadOpts := s.config().LoadOptions(opts.PageRange)
	loadOpts.Logger = s.logger()
	pages, err := ingest.LoadFile(ctx, path, loadOpts)
	if err != nil {
		return nil, err
	}
	return s.Process(ctx, pages, opts)
}

// Process generates every page and merges them into one document. Failed
// pages are reported in the metadata, not as an error.
func (s *Service) Process(ctx context.Context, pages []image.Image, opts config.Options) (*document.Response, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, ingest.ErrNoPages
	}
	if s.Registry == nil {
		return nil, errors.New("model registry not initialized")
	}
	model, err := s.Registry.Get(ctx, opts.Method)
	if err != nil {
		return nil, err
	}

	cfg := s.config()
	requestID := uuid.NewString()
	logger := s.logger().With("request_id", requestID, "method", opts.Method)

	mgr, err := inference.NewManager(inference.Config{
		Model:                  model,
		Method:                 opts.Method,
		MaxAttempts:            cfg.Inference.MaxRetries,
		BaseDelay:              cfg.Inference.RetryBaseDelay,
		MaxDelay:               cfg.Inference.RetryMaxDelay,
		DefaultMaxOutputTokens: cfg.Inference.MaxOutputTokens,
		DefaultBBoxScale:       cfg.Inference.BBoxScale,
		Logger:                 logger,
		Recorder:               s.Recorder,
	})
	if err != nil {
		return nil, err
	}

	items := make([]inference.BatchInputItem, len(pages))
	for i, img := range pages {
		items[i] = inference.BatchInputItem{Image: img, PromptType: providers.PromptOCRLayout}
	}

	logger.Info("processing document", "pages", len(pages))
	results, err := mgr.Generate(ctx, items, inference.GenerateOptions{
		MaxOutputTokens:       opts.MaxOutputTokens,
		BBoxScale:             opts.BBoxScale,
		IncludeImages:         opts.IncludeImages,
		IncludeHeadersFooters: opts.IncludeHeadersFooters,
		Concurrency:           cfg.Inference.PageConcurrency,
		RequestID:             requestID,
	})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	resp, err := document.Aggregate(results, document.Meta{
		Method:                opts.Method,
		IncludeImages:         opts.IncludeImages,
		IncludeHeadersFooters: opts.IncludeHeadersFooters,
	})
	if err != nil {
		return nil, err
	}
	if err := resp.CheckTotals(); err != nil {
		return nil, fmt.Errorf("inconsistent document totals: %w", err)
	}

	if failed := resp.FailedPages(); len(failed) > 0 {
		logger.Warn("pages failed", "pages", failed)
	}
	logger.Info("document processed",
		"pages", resp.Metadata.NumPages,
		"tokens", resp.Metadata.TotalTokenCount,
		"chunks", resp.Metadata.TotalChunks,
		"images", resp.Metadata.TotalImages)
	return resp, nil
}

// NewOutput encodes resp for transport. Image payloads are only attached
// when include_images was set.
func NewOutput(resp *document.Response) (*Output, error) {
	imgs, err := document.EncodeImages(resp.Images, resp.Metadata.IncludeImages)
	if err != nil {
		return nil, err
	}
	return &Output{
		Markdown: resp.Markdown,
		HTML:     resp.HTML,
		Chunks:   resp.Chunks,
		Images:   imgs,
		Metadata: resp.Metadata,
	}, nil
}

// NewImageOutput encodes a single-page resp with page-level metadata.
func NewImageOutput(resp *document.Response) (*ImageOutput, error) {
	if len(resp.Metadata.Pages) != 1 {
		return nil, fmt.Errorf("expected one page, got %d", len(resp.Metadata.Pages))
	}
	out, err := NewOutput(resp)
	if err != nil {
		return nil, err
	}
	p := resp.Metadata.Pages[0]
	return &ImageOutput{
		Markdown: out.Markdown,
		HTML:     out.HTML,
		Chunks:   out.Chunks,
		Images:   out.Images,
		Metadata: ImageMetadata{
			TokenCount: p.TokenCount,
			NumChunks:  p.NumChunks,
			NumImages:  p.NumImages,
			PageBox:    p.PageBox,
			Method:     resp.Metadata.Method,
			Error:      p.Error,
		},
	}, nil
}
