package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

func TestMaskDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"postgres://tabi:s3cret@db:5432/tabimoney", "postgres://*****:*****@db:5432/tabimoney"},
		{"postgres://tabi@db/tabimoney", "postgres://*****:*****@db/tabimoney"},
		{"postgres://u:p@ss@db/x", "postgres://*****:*****@db/x"},
		{"postgres://db:5432/tabimoney", "postgres://db:5432/tabimoney"},
		{"host=db user=tabi", "host=db user=tabi"},
	}
	for _, tt := range tests {
		if got := maskDSN(tt.dsn); got != tt.want {
			t.Errorf("maskDSN(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestNewRejectsBadDSN(t *testing.T) {
	_, _, err := New(context.Background(), zap.NewNop(), Config{DSN: "postgres://u:pw@db:notaport/x"})
	if err == nil {
		t.Fatal("expected error")
	}
}

var fastRetry = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  time.Millisecond,
	MaxDelay:      5 * time.Millisecond,
	BackoffFactor: 2.0,
}

func TestWithRetry_TransientThenSuccess(t *testing.T) {
	attempts := 0
	result, err := WithRetry(context.Background(), fastRetry, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("connection refused")
		}
		return "connected", nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != "connected" {
		t.Fatalf("expected 'connected', got %q", result)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetry_ExhaustsAllAttempts(t *testing.T) {
	attempts := 0
	_, err := WithRetry(context.Background(), fastRetry, func(ctx context.Context) (int, error) {
		attempts++
		return 0, fmt.Errorf("attempt %d failed", attempts)
	})
	if err == nil || err.Error() != "attempt 4 failed" {
		t.Fatalf("expected last error, got %v", err)
	}
	if attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", attempts)
	}
}

func TestWithRetry_AuthFailureStops(t *testing.T) {
	attempts := 0
	_, err := WithRetry(context.Background(), fastRetry, func(ctx context.Context) (int, error) {
		attempts++
		return 0, fmt.Errorf("ping: %w", &pgconn.PgError{Code: "28P01", Message: "password authentication failed"})
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, BackoffFactor: 1}

	attempts := 0
	_, err := WithRetry(ctx, cfg, func(ctx context.Context) (int, error) {
		attempts++
		cancel()
		return 0, errors.New("unreachable")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestBackoffCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second, BackoffFactor: 2}
	if got := backoff(cfg, 0); got != time.Second {
		t.Errorf("attempt 0: got %v", got)
	}
	if got := backoff(cfg, 1); got != 2*time.Second {
		t.Errorf("attempt 1: got %v", got)
	}
	if got := backoff(cfg, 5); got != 3*time.Second {
		t.Errorf("attempt 5: got %v", got)
	}
}
