package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunNowCountsFailures(t *testing.T) {
	var calls atomic.Int64
	job := func(context.Context) error {
		if calls.Add(1) == 2 {
			return errors.New("upstream down")
		}
		return nil
	}
	s, err := New(context.Background(), "refresh", "0 0 20 * * MON-FRI", time.UTC, job, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.RunNow()
	s.RunNow()
	runs, failures := s.Runs()
	if runs != 2 || failures != 1 {
		t.Errorf("runs/failures = %d/%d, want 2/1", runs, failures)
	}
}

func TestInvalidSpec(t *testing.T) {
	_, err := New(context.Background(), "refresh", "whenever", time.UTC, func(context.Context) error { return nil }, nil)
	if err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestScheduledRun(t *testing.T) {
	ran := make(chan struct{}, 4)
	s, err := New(context.Background(), "tick", "* * * * * *", time.UTC, func(context.Context) error {
		ran <- struct{}{}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	defer s.Stop()

	if s.Next().IsZero() {
		t.Error("Next() is zero after Start")
	}
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run within 3s")
	}
}

func TestCancelledContextSkipsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int64
	s, err := New(ctx, "refresh", "@daily", time.UTC, func(context.Context) error {
		calls.Add(1)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.RunNow()
	if calls.Load() != 0 {
		t.Errorf("job ran %d times after cancellation", calls.Load())
	}
}
