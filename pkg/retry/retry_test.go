package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", cfg.MaxRetries)
	}
	if cfg.InitialDelay != 100*time.Millisecond {
		t.Errorf("expected InitialDelay=100ms, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 5*time.Second {
		t.Errorf("expected MaxDelay=5s, got %v", cfg.MaxDelay)
	}
	if cfg.JitterFactor != 0.1 {
		t.Errorf("expected JitterFactor=0.1, got %f", cfg.JitterFactor)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error after retries, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	expectedErr := errors.New("persistent error")
	callCount := 0
	err := Do(context.Background(), fastConfig(2), func() error {
		callCount++
		return expectedErr
	})

	if err != expectedErr {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	// MaxRetries=2 means: initial attempt + 2 retries = 3 total calls
	if callCount != 3 {
		t.Errorf("expected 3 calls (1 initial + 2 retries), got %d", callCount)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{
		MaxRetries:   5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	callCount := 0
	start := time.Now()
	err := Do(ctx, cfg, func() error {
		callCount++
		return errors.New("error")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
	if elapsed := time.Since(start); elapsed > 90*time.Millisecond {
		t.Errorf("expected quick cancellation, took %v", elapsed)
	}
}

func TestDoWithResult_KeepsLastResult(t *testing.T) {
	callCount := 0
	result, err := DoWithResult(context.Background(), fastConfig(1), func() (int, error) {
		callCount++
		return callCount * 10, errors.New("still failing")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if result != 20 {
		t.Errorf("expected last result 20, got %d", result)
	}
}

func TestDoWithResult_NilConfig(t *testing.T) {
	result, err := DoWithResult(context.Background(), nil, func() (string, error) {
		return "ok", nil
	})
	if err != nil || result != "ok" {
		t.Errorf("expected (ok, nil), got (%q, %v)", result, err)
	}
}

func TestDoIfRetryable_StopsOnPermanentError(t *testing.T) {
	permanent := &pgconn.PgError{Code: "23505", Message: "duplicate key value"}
	callCount := 0
	err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
		callCount++
		return fmt.Errorf("insert event: %w", permanent)
	})

	if !errors.Is(err, permanent) {
		t.Errorf("expected wrapped pg error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call for permanent error, got %d", callCount)
	}
}

func TestDoIfRetryable_RetriesTransientError(t *testing.T) {
	callCount := 0
	err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
		callCount++
		if callCount == 1 {
			return &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected success after retry, got %v", err)
	}
	if callCount != 2 {
		t.Errorf("expected 2 calls, got %d", callCount)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"undefined table", fmt.Errorf("query: %w", &pgconn.PgError{Code: "42P01"}), false},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), true},
		{"i/o timeout", errors.New("read tcp: i/o timeout"), true},
		{"redis loading", errors.New("LOADING Redis is loading the dataset in memory"), true},
		{"context canceled", fmt.Errorf("acquire: %w", context.Canceled), false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"bad input", errors.New("invalid input syntax"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
