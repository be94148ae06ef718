package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunOnStartFiresImmediately(t *testing.T) {
	s := New(Options{Interval: time.Hour, RunOnStart: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	err := s.Run(ctx, func(context.Context, time.Time) error {
		calls.Add(1)
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("取消后应返回 context.Canceled, 实际 %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("启动时应立即执行一次, 实际 %d 次", calls.Load())
	}
}

func TestTickErrorsDoNotStopLoop(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond, RunOnStart: true}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var calls atomic.Int32
	_ = s.Run(ctx, func(context.Context, time.Time) error {
		if calls.Add(1) >= 3 {
			cancel()
		}
		return errors.New("cycle failed")
	})
	if calls.Load() < 3 {
		t.Fatalf("tick 失败后应继续调度, 实际 %d 次", calls.Load())
	}
}

func TestStartupDelayHonoursCancel(t *testing.T) {
	s := New(Options{Interval: time.Hour, StartupDelay: time.Hour, RunOnStart: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.Run(ctx, func(context.Context, time.Time) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("延迟期间取消不应执行 tick: err=%v called=%v", err, called)
	}
}

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2024, 1, 1, 10, 20, 0, 0, time.UTC)

	if got := s.nextTick(now); !got.Equal(time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("对齐后的下一个时间桶错误: %v", got)
	}
	if got := s.bucketStart(time.Date(2024, 1, 1, 11, 0, 0, 5, time.UTC)); !got.Equal(time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("时间桶起点错误: %v", got)
	}
}

func TestNextTickCron(t *testing.T) {
	s := New(Options{Interval: time.Hour, Cron: "*/15 * * * *"}, zerolog.Nop())
	now := time.Date(2024, 1, 1, 10, 20, 0, 0, time.UTC)

	next := s.nextTick(now)
	if !next.Equal(time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)) {
		t.Fatalf("cron 下一次执行时间错误: %v", next)
	}
	if got := s.advance(next); !got.Equal(time.Date(2024, 1, 1, 10, 45, 0, 0, time.UTC)) {
		t.Fatalf("cron 推进错误: %v", got)
	}
}

func TestInvalidCronFallsBackToInterval(t *testing.T) {
	s := New(Options{Interval: 30 * time.Minute, Cron: "every tuesday"}, zerolog.Nop())
	if s.schedule != nil {
		t.Fatal("非法 cron 不应生效")
	}
	now := time.Date(2024, 1, 1, 10, 20, 0, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("应回退到固定间隔: %v", got)
	}
}

func TestNewPanicsOnZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("间隔为 0 应 panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
