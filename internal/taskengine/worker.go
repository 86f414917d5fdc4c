package taskengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/basket/taskorc/internal/broker"
	"github.com/basket/taskorc/internal/scheduler"
)

// WorkerConfig tunes how many listener/worker goroutines each queue
// consumer runs, mirroring internal/coordinator.Waiter's
// goroutine-per-item fan-out, generalized here to a fixed-size pool per
// topic rather than one goroutine per waited item.
type WorkerConfig struct {
	Listeners  int // default 1
	MaxWorkers int // default 4
}

const (
	defaultListeners  = 1
	defaultMaxWorkers = 4
)

// Worker binds the three task-state topics to their Engine entry points:
// ready-tasks to ExecuteTask, running-tasks to RunningTask, review-tasks to
// ReviewTask. It owns no state beyond the Engine and
// Queue it wraps.
type Worker struct {
	eng    *Engine
	queue  broker.Queue
	logger *slog.Logger
	cfg    WorkerConfig
}

// NewWorker builds a Worker. cfg's zero value applies sane defaults.
func NewWorker(eng *Engine, queue broker.Queue, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Listeners <= 0 {
		cfg.Listeners = defaultListeners
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = defaultMaxWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{eng: eng, queue: queue, logger: logger, cfg: cfg}
}

// Start registers all three consumers. It returns once every Consumer call
// has been issued; the consumers themselves run until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	consumers := []struct {
		topic   string
		groupID string
		handle  func(ctx context.Context, taskID int64) error
	}{
		{scheduler.TopicReadyTasks, "taskengine-ready", w.eng.ExecuteTask},
		{TopicRunningTasks, "taskengine-running", w.eng.RunningTask},
		{scheduler.TopicReviewTasks, "taskengine-review", w.eng.ReviewTask},
	}

	for _, c := range consumers {
		handle := c.handle
		topic := c.topic
		err := w.queue.Consumer(ctx, topic, c.groupID, w.cfg.Listeners, w.cfg.MaxWorkers, func(ctx context.Context, content json.RawMessage) error {
			var payload TaskIDPayload
			if err := json.Unmarshal(content, &payload); err != nil {
				return fmt.Errorf("%s: decode payload: %w", topic, err)
			}
			return handle(ctx, payload.TaskID)
		})
		if err != nil {
			return fmt.Errorf("start consumer for %s: %w", topic, err)
		}
	}

	w.logger.Info("task engine workers started",
		"listeners", w.cfg.Listeners, "max_workers", w.cfg.MaxWorkers)
	return nil
}
