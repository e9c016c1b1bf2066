package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func instant() Policy {
	p := Default()
	p.AttemptTimeout = 0
	p.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return p
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := instant().Do(context.Background(), nil, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := instant().Do(context.Background(), nil, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	p := instant()
	p.MaxAttempts = 3

	calls := 0
	wantErr := errors.New("still broken")
	err := p.Do(context.Background(), nil, func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected last error back, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	fatal := errors.New("unauthorized")
	err := instant().Do(context.Background(), func(err error) bool { return false }, func(ctx context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := instant().Do(ctx, nil, func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected 0 calls on pre-canceled context, got %d", calls)
	}
}

func TestDo_AttemptTimeoutRetriesStalledCall(t *testing.T) {
	p := instant()
	p.MaxAttempts = 3
	p.AttemptTimeout = 5 * time.Millisecond

	calls := 0
	err := p.Do(context.Background(), func(err error) bool { return false }, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_AttemptTimeoutExhaustion(t *testing.T) {
	p := instant()
	p.MaxAttempts = 2
	p.AttemptTimeout = 5 * time.Millisecond

	calls := 0
	err := p.Do(context.Background(), nil, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error after exhaustion, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDo_ParentCancelBeatsAttemptTimeout(t *testing.T) {
	p := instant()
	p.MaxAttempts = 5
	p.AttemptTimeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := p.Do(ctx, nil, func(attemptCtx context.Context) error {
		calls++
		cancel()
		<-attemptCtx.Done()
		return attemptCtx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_InvalidPolicy(t *testing.T) {
	p := Policy{MaxAttempts: 0}
	if err := p.Do(context.Background(), nil, func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestDelay_GrowthAndCap(t *testing.T) {
	p := Policy{MaxAttempts: 6, BaseDelay: 100 * time.Millisecond, MaxDelay: 400 * time.Millisecond}

	if d := p.delay(1); d != 100*time.Millisecond {
		t.Errorf("attempt 1: got %s", d)
	}
	if d := p.delay(2); d != 200*time.Millisecond {
		t.Errorf("attempt 2: got %s", d)
	}
	if d := p.delay(5); d != 400*time.Millisecond {
		t.Errorf("attempt 5 should hit the cap, got %s", d)
	}
}

func TestDelay_JitterBounds(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: 100 * time.Millisecond, Jitter: 0.5}
	for i := 0; i < 50; i++ {
		d := p.delay(1)
		if d < 100*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("jittered delay out of bounds: %s", d)
		}
	}
}
