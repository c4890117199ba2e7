// Package scheduler 按墙钟时刻每日触发任务。
// 每个任务计算到下一次 hh:mm:ss 的间隔挂定时器，
// 触发后在独立 goroutine 运行并顺延到次日。
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Job struct {
	Name string
	At   string // "hh:mm:ss"
	Run  func(ctx context.Context)
}

type Scheduler struct {
	mu      sync.Mutex
	jobs    []Job
	stop    chan struct{}
	wg      sync.WaitGroup
	stopped bool
}

func New() *Scheduler {
	return &Scheduler{stop: make(chan struct{})}
}

// Add 注册每日任务，必须在 Start 之前调用
func (s *Scheduler) Add(job Job) error {
	if _, err := parseClock(job.At); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

// Start 启动全部任务循环，立即返回
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	for _, job := range jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	log.Info().Int("jobs", len(jobs)).Msg("scheduler started")
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()
	for {
		wait := untilNext(time.Now(), job.At)
		timer := time.NewTimer(wait)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		log.Info().Str("job", job.Name).Str("at", job.At).Msg("scheduled job fired")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			job.Run(ctx)
		}()
	}
}

// Stop 停止调度并等待任务循环退出。已触发的任务跑完为止。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
	log.Info().Msg("scheduler stopped")
}

func parseClock(at string) (time.Duration, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(at, "%d:%d:%d", &h, &m, &sec); err != nil {
		return 0, fmt.Errorf("bad clock %q: %w", at, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("bad clock %q", at)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}

// untilNext 计算从 now 到下一次 at 的等待时长，上限 24h
func untilNext(now time.Time, at string) time.Duration {
	offset, err := parseClock(at)
	if err != nil {
		return 24 * time.Hour
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	next := midnight.Add(offset)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
