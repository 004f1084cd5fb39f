package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := NewWithTimeout("test", time.Minute)
	boom := errors.New("daemon unreachable")

	for i := 0; i < 3; i++ {
		if err := cb.Execute(context.Background(), func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: err = %v, want %v", i, err, boom)
		}
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	called := false
	err := cb.Execute(context.Background(), func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("function should not run while the breaker is open")
	}
}

func TestCircuitBreaker_Fallback(t *testing.T) {
	cb := NewWithTimeout("fallback", time.Minute)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return errors.New("fail") })
	}

	fellBack := false
	err := cb.ExecuteWithFallback(context.Background(),
		func() error { return nil },
		func() error { fellBack = true; return nil },
	)
	if err != nil {
		t.Fatalf("ExecuteWithFallback() error = %v", err)
	}
	if !fellBack {
		t.Error("expected fallback to run")
	}
}

func TestCircuitBreaker_CanceledContext(t *testing.T) {
	cb := New("ctx")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := cb.Execute(ctx, func() error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
