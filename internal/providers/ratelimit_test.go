package providers

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	t.Run("consumes from a full bucket", func(t *testing.T) {
		rl := NewRateLimiter(60)
		for i := 0; i < 5; i++ {
			if err := rl.Wait(context.Background()); err != nil {
				t.Fatalf("Wait() error = %v", err)
			}
		}
		if s := rl.Status(); s.TotalConsumed != 5 {
			t.Errorf("TotalConsumed = %d, want 5", s.TotalConsumed)
		}
	})

	t.Run("429 pauses until context ends", func(t *testing.T) {
		rl := NewRateLimiter(60)
		rl.Record429(time.Hour)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := rl.Wait(ctx); err == nil {
			t.Error("Wait() should fail while paused")
		}
		if s := rl.Status(); s.Last429Time.IsZero() || s.PausedUntil.IsZero() {
			t.Errorf("status not updated: %+v", s)
		}
	})
}
