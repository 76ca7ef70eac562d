// Package inference drives the OCR model over a batch of page images.
//
// Each page is generated independently with a bounded retry loop. A page
// that still fails after its last attempt comes back with its error set;
// it never aborts the rest of the batch. Output order always matches input
// order, including when pages run in parallel.
package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	"github.com/LastGentlman/chandra/internal/layout"
	"github.com/LastGentlman/chandra/internal/llmcall"
	"github.com/LastGentlman/chandra/internal/page"
	"github.com/LastGentlman/chandra/internal/providers"
	"github.com/LastGentlman/chandra/internal/render"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultMaxAttempts     = 6
	DefaultMaxOutputTokens = 12384
	DefaultBaseDelay       = time.Second
	DefaultMaxDelay        = 30 * time.Second
)

// BatchInputItem is one page to generate.
type BatchInputItem struct {
	Image      image.Image
	PromptType string
}

// GenerateOptions are the per-request knobs.
type GenerateOptions struct {
	// MaxOutputTokens bounds generation per page; 0 uses the manager default.
	MaxOutputTokens int
	// BBoxScale is the grid raw coordinates are expressed on; 0 uses the
	// manager default.
	BBoxScale             int
	IncludeImages         bool
	IncludeHeadersFooters bool
	// Concurrency is the number of pages generated at once; values below 2
	// run pages sequentially.
	Concurrency int
	// RequestID tags recorded calls.
	RequestID string
}

// PageStatus reports how one page's generation ended.
type PageStatus struct {
	Index    int
	State    State
	Attempts int
	History  []State
}

// Config configures a Manager.
type Config struct {
	Model  providers.Model
	Method string

	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	DefaultMaxOutputTokens int
	DefaultBBoxScale       int

	Logger   *slog.Logger
	Recorder *llmcall.Recorder

	// OnPageDone is called once per page after its final state is known.
	OnPageDone func(PageStatus)
}

// Manager generates page results from a model.
type Manager struct {
	model  providers.Model
	method string

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	maxOutputTokens int
	bboxScale       int

	logger     *slog.Logger
	recorder   *llmcall.Recorder
	onPageDone func(PageStatus)
}

// NewManager creates a manager around cfg.Model.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Model == nil {
		return nil, errors.New("model is required")
	}
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("max attempts must be at least 1, got %d", cfg.MaxAttempts)
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.DefaultMaxOutputTokens <= 0 {
		cfg.DefaultMaxOutputTokens = DefaultMaxOutputTokens
	}
	if cfg.DefaultBBoxScale <= 0 {
		cfg.DefaultBBoxScale = layout.DefaultBBoxScale
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		model:           cfg.Model,
		method:          cfg.Method,
		maxAttempts:     cfg.MaxAttempts,
		baseDelay:       cfg.BaseDelay,
		maxDelay:        cfg.MaxDelay,
		maxOutputTokens: cfg.DefaultMaxOutputTokens,
		bboxScale:       cfg.DefaultBBoxScale,
		logger:          cfg.Logger,
		recorder:        cfg.Recorder,
		onPageDone:      cfg.OnPageDone,
	}, nil
}

// Generate returns one result per item, in input order. The error is
// reserved for invalid options and a cancelled context; failed pages are
// reported through Result.Error.
func (m *Manager) Generate(ctx context.Context, items []BatchInputItem, opts GenerateOptions) ([]page.Result, error) {
	if opts.MaxOutputTokens < 0 {
		return nil, fmt.Errorf("max_output_tokens must be positive, got %d", opts.MaxOutputTokens)
	}
	if opts.BBoxScale < 0 {
		return nil, fmt.Errorf("bbox_scale must be positive, got %d", opts.BBoxScale)
	}
	if opts.MaxOutputTokens == 0 {
		opts.MaxOutputTokens = m.maxOutputTokens
	}
	if opts.BBoxScale == 0 {
		opts.BBoxScale = m.bboxScale
	}

	results := make([]page.Result, len(items))

	if opts.Concurrency < 2 || len(items) < 2 {
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results[i] = m.generatePage(ctx, i, item, opts)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(opts.Concurrency)
		for i, item := range items {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				results[i] = m.generatePage(ctx, i, item, opts)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// generatePage runs the retry loop for one page and assembles its result.
func (m *Manager) generatePage(ctx context.Context, index int, item BatchInputItem, opts GenerateOptions) page.Result {
	tr := newTracker()
	pageNum := index + 1
	logger := m.logger.With("page", pageNum, "method", m.method)

	req := providers.GenerateRequest{
		Image:           item.Image,
		PromptType:      item.PromptType,
		MaxOutputTokens: opts.MaxOutputTokens,
		BBoxScale:       opts.BBoxScale,
	}
	if req.PromptType == "" {
		req.PromptType = providers.PromptOCRLayout
	}

	attempt := 0
	res, err := retry.DoWithData(
		func() (*providers.GenerateResult, error) {
			attempt++
			_ = tr.to(StateAttempting)
			start := time.Now()
			res, err := m.model.Generate(ctx, req)
			m.recorder.Record(res, err, llmcall.RecordOptions{
				RequestID:  opts.RequestID,
				PageNum:    pageNum,
				Attempt:    attempt,
				Method:     m.method,
				Model:      m.model.Name(),
				PromptType: req.PromptType,
				Latency:    time.Since(start),
			})
			if err == nil && res == nil {
				err = errors.New("model returned no result")
			}
			return res, err
		},
		retry.Context(ctx),
		retry.Attempts(uint(m.maxAttempts)),
		retry.Delay(m.baseDelay),
		retry.MaxDelay(m.maxDelay),
		retry.MaxJitter(max(m.baseDelay/2, time.Millisecond)),
		retry.DelayType(backoff),
		retry.RetryIf(providers.IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if int(n)+1 >= m.maxAttempts || !providers.IsTransient(err) {
				return
			}
			_ = tr.to(StateRetrying)
			logger.Warn("generation failed, retrying", "attempt", n+1, "max_attempts", m.maxAttempts, "error", err)
		}),
	)

	in := page.Input{
		Image:     item.Image,
		BBoxScale: opts.BBoxScale,
		Render: render.Options{
			IncludeHeadersFooters: opts.IncludeHeadersFooters,
			IncludeImages:         opts.IncludeImages,
		},
	}
	if err != nil {
		_ = tr.to(StateFailed)
		logger.Error("generation failed", "attempts", attempt, "error", err)
		in.Err = fmt.Errorf("generation failed after %d attempt(s): %w", attempt, err)
	} else {
		_ = tr.to(StateSucceeded)
		in.Raw = res.Raw
		in.TokenCount = res.TokenCount
		if res.Truncated() {
			logger.Warn("output hit the token budget", "max_output_tokens", opts.MaxOutputTokens)
		}
		logger.Debug("page generated", "attempts", attempt, "tokens", res.TokenCount)
	}

	if m.onPageDone != nil {
		state, attempts, history := tr.snapshot()
		m.onPageDone(PageStatus{Index: index, State: state, Attempts: attempts, History: history})
	}
	return page.Assemble(in)
}

// backoff doubles the delay per attempt with jitter, honouring a backend's
// Retry-After when it sent one.
func backoff(n uint, err error, cfg *retry.Config) time.Duration {
	if rle, ok := providers.IsRateLimitError(err); ok && rle.RetryAfter > 0 {
		return rle.RetryAfter
	}
	return retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)(n, err, cfg)
}
