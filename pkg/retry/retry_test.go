package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	poolErrors "github.com/bardlex/beampool/pkg/errors"
)

func fastConfig(attempts int) *Config {
	return &Config{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      false,
	}
}

func TestStartupConfig(t *testing.T) {
	config := StartupConfig()
	if config.MaxAttempts != 8 {
		t.Errorf("Expected MaxAttempts = 8, got %d", config.MaxAttempts)
	}
	if config.MaxDelay != 10*time.Second {
		t.Errorf("Expected MaxDelay = 10s, got %v", config.MaxDelay)
	}
}

func TestDo_SucceedsAfterRetryableError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		if calls == 1 {
			return poolErrors.New(poolErrors.ErrorTypeStorage, "redis_ping", "not ready")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestDo_MaxAttemptsReached(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(2), func() error {
		calls++
		return poolErrors.New(poolErrors.ErrorTypeNetwork, "dial", "refused")
	})

	if err == nil {
		t.Fatal("Expected error")
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
	if !poolErrors.IsType(err, poolErrors.ErrorTypeInternal) {
		t.Error("Expected exhausted retries to be wrapped as internal")
	}
	if got := poolErrors.GetContext(err)["max_attempts"]; got != 2 {
		t.Errorf("Expected max_attempts context 2, got %v", got)
	}
}

func TestDo_NonRetryableError(t *testing.T) {
	calls := 0
	want := errors.New("bad credentials")
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return want
	})

	if !errors.Is(err, want) {
		t.Errorf("Expected original error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	config := fastConfig(3)
	config.BaseDelay = time.Second
	err := Do(ctx, config, func() error {
		return poolErrors.New(poolErrors.ErrorTypeNetwork, "dial", "refused")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastConfig(3), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection reset by peer")
		}
		return 42, nil
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
}

func TestConfig_calculateDelay(t *testing.T) {
	config := &Config{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   500 * time.Millisecond,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := config.calculateDelay(tt.attempt); got != tt.expected {
			t.Errorf("calculateDelay(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}
