// Package scheduler runs the two fixed-interval producer loops: the
// admission producer claims due tasks and publishes their
// ids to the ready-tasks topic, the review producer finds stale
// in-progress tasks and publishes their ids to the review-tasks topic.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/basket/taskorc/internal/broker"
)

const (
	// TopicReadyTasks is where admitted task ids are published for the
	// task engine's dispatch workers to consume.
	TopicReadyTasks = "ready-tasks"
	// TopicReviewTasks is where stale task ids are published for the
	// review worker to fail or requeue.
	TopicReviewTasks = "review-tasks"

	defaultAdmissionInterval = 60 * time.Second
	defaultReviewInterval    = 20 * time.Minute
	defaultStaleAfter        = 20 * time.Minute
	defaultBatchLimit        = 100
)

// Store is the subset of internal/store's Store the producers need.
type Store interface {
	GetDispatchTaskIDs(ctx context.Context, now time.Time, limit int) ([]int64, error)
	GetReviewTaskIDs(ctx context.Context, now time.Time, staleAfter time.Duration, limit int) ([]int64, error)
}

// taskIDEnvelope is the payload published for both topics: a claimed or
// stale task id, nothing else — the consumer reloads full Task state from
// the store rather than trusting a stale snapshot in the queue.
type taskIDEnvelope struct {
	TaskID int64 `json:"task_id"`
}

// producer is the shared fixed-interval tick loop, grounded on
// internal/cron.Scheduler's Start/Stop/loop shape, generalized
// from cron-expression schedules to a plain ticker.
type producer struct {
	name     string
	interval time.Duration
	logger   *slog.Logger
	tick     func(ctx context.Context, now time.Time)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (p *producer) start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop(ctx)
	p.logger.Info("scheduler producer started", "producer", p.name, "interval", p.interval)
}

func (p *producer) stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("scheduler producer stopped", "producer", p.name)
}

func (p *producer) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, time.Now())
		}
	}
}

// AdmissionProducer claims due {INITIAL,SCHEDULING} tasks every interval
// (default 60s) and publishes their ids to TopicReadyTasks.
type AdmissionProducer struct{ p *producer }

// AdmissionConfig configures an AdmissionProducer.
type AdmissionConfig struct {
	Store    Store
	Queue    broker.Queue
	Logger   *slog.Logger
	Interval time.Duration // default 60s
	Limit    int           // default 100
}

func NewAdmissionProducer(cfg AdmissionConfig) *AdmissionProducer {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultAdmissionInterval
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ap := &AdmissionProducer{}
	ap.p = &producer{
		name:     "admission",
		interval: interval,
		logger:   logger,
		tick: func(ctx context.Context, now time.Time) {
			ids, err := cfg.Store.GetDispatchTaskIDs(ctx, now, limit)
			if err != nil {
				logger.Error("admission: claim due tasks failed", "error", err)
				return
			}
			for _, id := range ids {
				if _, err := cfg.Queue.Send(ctx, TopicReadyTasks, taskIDEnvelope{TaskID: id}); err != nil {
					logger.Error("admission: publish ready task failed", "task_id", id, "error", err)
				}
			}
			if len(ids) > 0 {
				logger.Info("admission: claimed tasks", "count", len(ids))
			}
		},
	}
	return ap
}

func (a *AdmissionProducer) Start(ctx context.Context) { a.p.start(ctx) }
func (a *AdmissionProducer) Stop()                     { a.p.stop() }

// ReviewProducer finds stale {ACTIVATING,QUEUING} tasks every interval
// (default 20m) and publishes their ids to TopicReviewTasks.
type ReviewProducer struct{ p *producer }

// ReviewConfig configures a ReviewProducer.
type ReviewConfig struct {
	Store      Store
	Queue      broker.Queue
	Logger     *slog.Logger
	Interval   time.Duration // default 20m
	StaleAfter time.Duration // default 20m
	Limit      int           // default 100
}

func NewReviewProducer(cfg ReviewConfig) *ReviewProducer {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultReviewInterval
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rp := &ReviewProducer{}
	rp.p = &producer{
		name:     "review",
		interval: interval,
		logger:   logger,
		tick: func(ctx context.Context, now time.Time) {
			ids, err := cfg.Store.GetReviewTaskIDs(ctx, now, staleAfter, limit)
			if err != nil {
				logger.Error("review: find stale tasks failed", "error", err)
				return
			}
			for _, id := range ids {
				if _, err := cfg.Queue.Send(ctx, TopicReviewTasks, taskIDEnvelope{TaskID: id}); err != nil {
					logger.Error("review: publish review task failed", "task_id", id, "error", err)
				}
			}
			if len(ids) > 0 {
				logger.Info("review: found stale tasks", "count", len(ids))
			}
		},
	}
	return rp
}

func (r *ReviewProducer) Start(ctx context.Context) { r.p.start(ctx) }
func (r *ReviewProducer) Stop()                     { r.p.stop() }
