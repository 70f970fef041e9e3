// Package scheduler implements bounded-concurrency task execution with
// per-task timing spans. Grounded on aggregatorService/worker.Pool's
// shape (Initialize/Submit/Shutdown, atomic stats, panic-isolated
// workers) but simplified to the spec's one-shot
// runWithConcurrency(tasks, limit, timer, label) contract instead of a
// long-lived dispatch queue, since each block's task lists are
// independent bounded batches rather than a continuous job stream.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Task is one unit of schedulable work.
type Task func(ctx context.Context) error

// Stats snapshots scheduler-wide counters for the metrics server,
// grounded on aggregatorService/worker.PoolStats.
type Stats struct {
	TasksSubmitted uint64
	TasksCompleted uint64
	TasksFailed    uint64
	InFlight       int32
}

// Scheduler runs task batches with a concurrency cap and records a
// timing span per task.
type Scheduler struct {
	log *zap.Logger

	submitted uint64
	completed uint64
	failed    uint64
	inFlight  int32

	taskDuration *prometheus.HistogramVec
	taskFailures *prometheus.CounterVec
}

// New builds a Scheduler whose Prometheus collectors are registered
// against reg (pass nil to skip registration, e.g. in unit tests).
func New(log *zap.Logger, reg prometheus.Registerer) *Scheduler {
	s := &Scheduler{
		log: log,
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scheduler_task_duration_seconds",
			Help:    "Duration of scheduler-run tasks by label.",
			Buckets: prometheus.DefBuckets,
		}, []string{"label"}),
		taskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_task_failures_total",
			Help: "Count of scheduler-run tasks that returned an error.",
		}, []string{"label"}),
	}
	if reg != nil {
		reg.MustRegister(s.taskDuration, s.taskFailures)
	}
	return s
}

// RunWithConcurrency executes tasks with at most limit running at once,
// returning only when all have finished. Each task is wrapped with a
// timing span named "<label>#<idx>". Tasks are independent: a panic or
// error in one never prevents the others from running or being
// recorded.
func (s *Scheduler) RunWithConcurrency(ctx context.Context, tasks []Task, limit int, timer *Timer, label string) {
	if len(tasks) == 0 {
		return
	}
	if limit <= 0 {
		limit = 1
	}
	if timer == nil {
		timer = NewTimer()
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for idx, task := range tasks {
		atomic.AddUint64(&s.submitted, 1)
		wg.Add(1)
		sem <- struct{}{}
		atomic.AddInt32(&s.inFlight, 1)

		go func(idx int, task Task) {
			defer wg.Done()
			defer func() { <-sem }()
			defer atomic.AddInt32(&s.inFlight, -1)

			spanName := fmt.Sprintf("%s#%d", label, idx)
			done := timer.Span(spanName)
			err := s.runOne(ctx, task, spanName)
			done(err)

			atomic.AddUint64(&s.completed, 1)
			if err != nil {
				atomic.AddUint64(&s.failed, 1)
				s.taskFailures.WithLabelValues(label).Inc()
				s.log.Warn("scheduler: task failed",
					zap.String("span", spanName), zap.Error(err))
			}
		}(idx, task)
	}

	wg.Wait()
}

// runOne executes a single task, converting a panic into an error so the
// sibling tasks in the batch are never affected.
func (s *Scheduler) runOne(ctx context.Context, task Task, spanName string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler: task panicked",
				zap.String("span", spanName),
				zap.Any("recover", r),
				zap.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task(ctx)
}

// CurrentStats returns a point-in-time snapshot of scheduler counters.
func (s *Scheduler) CurrentStats() Stats {
	return Stats{
		TasksSubmitted: atomic.LoadUint64(&s.submitted),
		TasksCompleted: atomic.LoadUint64(&s.completed),
		TasksFailed:    atomic.LoadUint64(&s.failed),
		InFlight:       atomic.LoadInt32(&s.inFlight),
	}
}
