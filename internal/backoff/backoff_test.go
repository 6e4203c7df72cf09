package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExponentialDelay_BoundedAndMonotonic(t *testing.T) {
	base := 1000 * time.Millisecond
	max := 30000 * time.Millisecond

	for _, jitter := range []float64{0, 0.05, 0.0999} {
		prev := time.Duration(0)
		for attempt := 1; attempt <= 20; attempt++ {
			d := ExponentialDelay(base, max, attempt, jitter)
			if d < prev {
				t.Errorf("jitter %v: attempt %d delay %v < previous %v", jitter, attempt, d, prev)
			}
			if d > 33000*time.Millisecond {
				t.Errorf("jitter %v: attempt %d delay %v exceeds 33s", jitter, attempt, d)
			}
			prev = d
		}
	}
}

func TestExponentialDelay_Values(t *testing.T) {
	tests := []struct {
		attempt int
		jitter  float64
		want    time.Duration
	}{
		{1, 0, time.Second},
		{2, 0, 2 * time.Second},
		{3, 0.05, 4200 * time.Millisecond},
		{5, 0, 16 * time.Second},
		{6, 0, 30 * time.Second},
		{20, 0.09, 30 * time.Second},
	}
	for _, tt := range tests {
		got := ExponentialDelay(time.Second, 30*time.Second, tt.attempt, tt.jitter)
		if got != tt.want {
			t.Errorf("ExponentialDelay(attempt=%d, jitter=%v) = %v, want %v", tt.attempt, tt.jitter, got, tt.want)
		}
	}
}

func TestExponential_RandomJitterStaysInRange(t *testing.T) {
	p := Exponential(time.Second, 30*time.Second, 20)
	for i := 0; i < 200; i++ {
		d := p.Delay(1)
		if d < time.Second || d >= 1100*time.Millisecond {
			t.Fatalf("attempt 1 delay %v outside [1s, 1.1s)", d)
		}
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	var seen []int
	err := Do(context.Background(), Fixed(time.Millisecond, 5), nil, func(attempt int) error {
		seen = append(seen, attempt)
		if attempt < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Errorf("attempts = %v, want [1 2 3]", seen)
	}
}

func TestDo_StopsOnFatal(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Do(context.Background(), Fixed(time.Millisecond, 10), func(err error) bool {
		return !errors.Is(err, fatal)
	}, func(int) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	var retried []int
	p := Fixed(time.Millisecond, 4)
	p.OnRetry = func(attempt int, err error) { retried = append(retried, attempt) }

	err := Do(context.Background(), p, Always, func(attempt int) error {
		calls++
		return errors.New("still failing")
	})
	if err == nil || err.Error() != "still failing" {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	if len(retried) != 3 {
		t.Errorf("OnRetry calls = %v, want 3", retried)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Fixed(time.Hour, 5), Always, func(int) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
