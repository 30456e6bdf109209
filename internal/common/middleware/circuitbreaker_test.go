package middleware

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)
	fail := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := cb.Call(context.Background(), func() error { return fail }); !errors.Is(err, fail) {
			t.Fatalf("call %d: expected failure passthrough, got %v", i, err)
		}
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open state, got %v", cb.GetState())
	}

	called := false
	err := cb.Call(context.Background(), func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatal("fn must not run while the breaker is open")
	}
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, time.Minute)
	fail := errors.New("boom")

	cb.Call(context.Background(), func() error { return fail })
	cb.Call(context.Background(), func() error { return nil })
	cb.Call(context.Background(), func() error { return fail })

	if cb.GetState() != StateClosed {
		t.Fatalf("non-consecutive failures must not open the breaker, got %v", cb.GetState())
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)
	cb.Call(context.Background(), func() error { return errors.New("boom") })
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got %v", cb.GetState())
	}

	time.Sleep(20 * time.Millisecond)
	if err := cb.Call(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("half-open probe should run: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %v", cb.GetState())
	}
}

func TestTokenBucketWait(t *testing.T) {
	tb := NewTokenBucket(1, 100)
	if !tb.Allow(context.Background()) {
		t.Fatal("first token should be available")
	}

	// 桶空后 Wait 应在补充令牌后返回
	start := time.Now()
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("wait took too long")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	empty := NewTokenBucket(1, 1)
	empty.Allow(ctx)
	if err := empty.Wait(ctx); err == nil {
		t.Fatal("cancelled context must abort the wait")
	}
}
