package llmcall

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SinkConfig configures the write sink.
type SinkConfig struct {
	Store         Store
	BatchSize     int           // Flush after N calls (default: 50)
	FlushInterval time.Duration // Or after duration (default: 5s)
	QueueSize     int           // Buffer size (default: 1000)
	Logger        *slog.Logger
}

// Sink batches calls and writes them to a Store in the background.
type Sink struct {
	store  Store
	logger *slog.Logger

	batchSize     int
	flushInterval time.Duration

	queue   chan Call
	flushCh chan chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

// NewSink creates a new write sink. Call Start before Send.
func NewSink(cfg SinkConfig) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sink{
		store:         cfg.Store,
		logger:        cfg.Logger,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		queue:         make(chan Call, cfg.QueueSize),
		flushCh:       make(chan chan struct{}),
	}
}

// Start begins processing queued calls.
func (s *Sink) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop flushes remaining calls and shuts the sink down.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()

		s.wg.Wait()
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Send queues a call without waiting for the write. Calls are dropped
// when the sink is stopped or its queue is full.
func (s *Sink) Send(call Call) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("sink closed, dropping call", "id", call.ID)
		return
	}
	select {
	case s.queue <- call:
	default:
		s.logger.Warn("sink queue full, dropping call", "id", call.ID)
	}
}

// Flush writes everything queued so far and waits for it.
func (s *Sink) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case s.flushCh <- done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]Call, 0, s.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.store.Insert(s.ctx, batch); err != nil {
			s.logger.Error("call log write failed", "count", len(batch), "error", err)
		} else {
			s.logger.Debug("flushed call log batch", "count", len(batch))
		}
		batch = make([]Call, 0, s.batchSize)
	}

	for {
		select {
		case c, ok := <-s.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, c)
			if len(batch) >= s.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case done := <-s.flushCh:
			// Drain what is already queued before writing.
			for drained := false; !drained; {
				select {
				case c, ok := <-s.queue:
					if !ok {
						drained = true
						break
					}
					batch = append(batch, c)
				default:
					drained = true
				}
			}
			flush()
			close(done)
		}
	}
}
