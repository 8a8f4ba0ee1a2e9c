package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestShutdownRunsStepsInOrder(t *testing.T) {
	c := New(time.Second)

	var order []string
	c.Register("transport", func(ctx context.Context) error {
		order = append(order, "transport")
		return nil
	})
	c.Register("telemetry", func(ctx context.Context) error {
		order = append(order, "telemetry")
		return nil
	})

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if len(order) != 2 || order[0] != "transport" || order[1] != "telemetry" {
		t.Errorf("steps ran out of order: %v", order)
	}

	select {
	case <-c.Done():
	default:
		t.Error("Done should be closed after shutdown")
	}
}

func TestShutdownSecondCallRejected(t *testing.T) {
	c := New(0)
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("first shutdown failed: %v", err)
	}
	if err := c.Shutdown(context.Background()); !errors.Is(err, ErrAlreadyShutdown) {
		t.Errorf("expected ErrAlreadyShutdown, got %v", err)
	}
}

func TestShutdownContinuesPastFailures(t *testing.T) {
	c := New(0)
	boom := errors.New("boom")

	var ranSecond bool
	c.Register("failing", func(ctx context.Context) error { return boom })
	c.Register("after", func(ctx context.Context) error {
		ranSecond = true
		return nil
	})

	err := c.Shutdown(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("expected first error to surface, got %v", err)
	}
	if !ranSecond {
		t.Error("later steps must still run after a failure")
	}
	if !errors.Is(c.Err(), boom) {
		t.Errorf("Err should report the failure, got %v", c.Err())
	}
}

func TestShutdownTimeoutCancelsContext(t *testing.T) {
	c := New(20 * time.Millisecond)

	var ctxErr error
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		ctxErr = ctx.Err()
		return ctx.Err()
	})

	c.Shutdown(context.Background())
	if !errors.Is(ctxErr, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded inside handler, got %v", ctxErr)
	}
}
