package tour

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var fastRetry = RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

func TestExecuteWithRetry_SuccessAfterRetries(t *testing.T) {
	calls := 0
	attempts, err := executeWithRetry(context.Background(), fastRetry, func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("fail-%d", calls)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteWithRetry_AllFail(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	calls := 0
	attempts, err := executeWithRetry(context.Background(), cfg, func(context.Context) error {
		calls++
		return errors.New("always-fail")
	})
	if err == nil || err.Error() != "always-fail" {
		t.Fatalf("expected always-fail, got %v", err)
	}
	if calls != 3 || attempts != 3 { // 1 initial + 2 retries
		t.Errorf("calls=%d attempts=%d, want 3", calls, attempts)
	}
}

func TestExecuteWithRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}
	calls := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		executeWithRetry(ctx, cfg, func(context.Context) error {
			calls++
			return errors.New("fail")
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on cancel")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBackoffWithJitter(t *testing.T) {
	tests := []struct {
		attempt  int
		min, max time.Duration
	}{
		{0, 75 * time.Millisecond, 125 * time.Millisecond},
		{1, 150 * time.Millisecond, 250 * time.Millisecond},
		{10, 750 * time.Millisecond, 1250 * time.Millisecond}, // capped at 1s
	}
	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			d := backoffWithJitter(100*time.Millisecond, time.Second, tt.attempt)
			if d < tt.min || d > tt.max {
				t.Errorf("attempt %d: delay %v outside [%v, %v]", tt.attempt, d, tt.min, tt.max)
			}
		}
	}
}
