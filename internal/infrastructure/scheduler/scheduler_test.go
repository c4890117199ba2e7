package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestUntilNextSameDay(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.Local)
	got := untilNext(now, "13:00:05")
	want := time.Hour + 5*time.Second
	if got != want {
		t.Errorf("untilNext = %v, want %v", got, want)
	}
}

func TestUntilNextRollsOver(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.Local)
	got := untilNext(now, "14:52:00")
	want := 23*time.Hour + 52*time.Minute
	if got != want {
		t.Errorf("untilNext = %v, want %v", got, want)
	}
	if got > 24*time.Hour {
		t.Error("wait must stay within 24h")
	}
}

func TestUntilNextExactBoundary(t *testing.T) {
	now := time.Date(2026, 8, 30, 13, 0, 5, 0, time.Local)
	got := untilNext(now, "13:00:05")
	if got != 24*time.Hour {
		t.Errorf("firing instant should schedule next day, got %v", got)
	}
}

func TestAddRejectsBadClock(t *testing.T) {
	s := New()
	if err := s.Add(Job{Name: "bad", At: "25:00:00", Run: func(context.Context) {}}); err == nil {
		t.Error("expected error for hour 25")
	}
	if err := s.Add(Job{Name: "bad", At: "12:00", Run: func(context.Context) {}}); err == nil {
		t.Error("expected error for missing seconds")
	}
}

func TestSchedulerStopHaltsLoops(t *testing.T) {
	s := New()
	var fired atomic.Int32
	// 远未来的任务，只验证 Stop 能让循环退出
	if err := s.Add(Job{Name: "noop", At: "23:59:59", Run: func(context.Context) { fired.Add(1) }}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	if fired.Load() != 0 {
		t.Error("job should not have fired")
	}
}
