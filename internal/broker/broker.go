package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Handler processes one message's content. A returned error routes the
// envelope to the topic's dead-letter stream; the message is XACKed either
// way, matching original_source's RBroker._consume_works (ack happens in a
// finally-block regardless of callback outcome).
type Handler func(ctx context.Context, content json.RawMessage) error

const defaultDLQMaxLen = 1000

// job is what a listener goroutine hands a worker goroutine.
type job struct {
	messageID string
	envelope  Envelope
}

// consumerHandle tracks one Consumer call's goroutines so Shutdown can stop
// them and wait for drain.
type consumerHandle struct {
	cancel context.CancelFunc
}

// Broker is a Redis Streams-backed durable message broker: Send publishes
// via XADD, Consumer runs N listener goroutines (XREADGROUP) feeding a
// bounded queue drained by M*N worker goroutines, mirroring
// original_source's RBroker.consumer topology (listeners=count,
// workers-per-listener=max_workers). Grounded on
// core/shared/components/redis/broker.py, generalized from Python
// asyncio.Queue + asyncio.create_task to Go channels + goroutines +
// sync.WaitGroup, the idiom internal/coordinator's uses for
// fan-out (internal/coordinator/waiter.go).
type Broker struct {
	client    *redis.Client
	logger    *slog.Logger
	dlqMaxLen int64

	mu      sync.Mutex
	wg      sync.WaitGroup
	handles []consumerHandle
}

// New constructs a Broker over an already-configured redis.Client.
func New(client *redis.Client, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{client: client, logger: logger, dlqMaxLen: defaultDLQMaxLen}
}

// Send publishes content on topic via XADD and returns the stream entry id.
func (b *Broker) Send(ctx context.Context, topic string, content any) (string, error) {
	env, err := NewEnvelope(content)
	if err != nil {
		return "", fmt.Errorf("build envelope: %w", err)
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{"message": string(payload)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", topic, err)
	}
	return id, nil
}

// Consumer starts listeners listener goroutines and listeners*maxWorkers
// worker goroutines processing topic via a consumer group, idempotently
// creating the group (tolerating BUSYGROUP the way original_source's
// consumer() tolerates ResponseError on re-creation). The queue between
// listeners and workers is bounded at maxWorkers*2 per listener, applying
// backpressure to XREADGROUP polling when workers fall behind.
func (b *Broker) Consumer(ctx context.Context, topic, groupID string, listeners, maxWorkers int, handler Handler) error {
	if groupID == "" {
		groupID = topic + "_group"
	}
	if listeners <= 0 {
		listeners = 1
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	if err := b.client.XGroupCreateMkStream(ctx, topic, groupID, "0").Err(); err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create consumer group %s/%s: %w", topic, groupID, err)
	}

	cctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.handles = append(b.handles, consumerHandle{cancel: cancel})
	b.mu.Unlock()

	queue := make(chan job, maxWorkers*2)

	for i := 0; i < listeners; i++ {
		consumerName := fmt.Sprintf("%s-listener-%d", groupID, i+1)
		b.wg.Add(1)
		go b.listen(cctx, topic, groupID, consumerName, queue)

		for j := 0; j < maxWorkers; j++ {
			workerName := fmt.Sprintf("%s-worker-%d", consumerName, j+1)
			b.wg.Add(1)
			go b.work(cctx, topic, groupID, workerName, queue, handler)
		}
	}
	return nil
}

func (b *Broker) listen(ctx context.Context, topic, groupID, consumerName string, queue chan<- job) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    groupID,
			Consumer: consumerName,
			Streams:  []string{topic, ">"},
			Count:    1,
			Block:    10 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			b.logger.Error("broker listener loop error", "consumer", consumerName, "topic", topic, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for _, stream := range res {
			for _, msg := range stream.Messages {
				raw, _ := msg.Values["message"].(string)
				var env Envelope
				if err := json.Unmarshal([]byte(raw), &env); err != nil {
					b.logger.Error("broker listener parse error", "consumer", consumerName, "message_id", msg.ID, "error", err)
					continue
				}
				select {
				case queue <- job{messageID: msg.ID, envelope: env}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (b *Broker) work(ctx context.Context, topic, groupID, workerName string, queue <-chan job, handler Handler) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-queue:
			if !ok {
				return
			}
			b.handleJob(ctx, topic, groupID, workerName, j, handler)
		}
	}
}

func (b *Broker) handleJob(ctx context.Context, topic, groupID, workerName string, j job, handler Handler) {
	if err := handler(ctx, j.envelope.Content); err != nil {
		j.envelope.ExcInfo = &FailureInfo{
			Message:  err.Error(),
			Type:     fmt.Sprintf("%T", err),
			FailedAt: time.Now().UTC(),
		}
		payload, marshalErr := json.Marshal(j.envelope)
		if marshalErr != nil {
			b.logger.Error("broker dlq marshal error", "worker", workerName, "message_id", j.messageID, "error", marshalErr)
		} else if dlqErr := b.client.XAdd(ctx, &redis.XAddArgs{
			Stream: DLQTopic(topic),
			MaxLen: b.dlqMaxLen,
			Approx: true,
			Values: map[string]any{"message": string(payload)},
		}).Err(); dlqErr != nil {
			b.logger.Error("broker dlq publish error", "worker", workerName, "message_id", j.messageID, "error", dlqErr)
		}
		b.logger.Error("broker worker handler error", "worker", workerName, "message_id", j.messageID, "error", err)
	}

	if err := b.client.XAck(ctx, topic, groupID, j.messageID).Err(); err != nil {
		b.logger.Error("broker ack error", "worker", workerName, "message_id", j.messageID, "error", err)
	}
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

// Shutdown cancels every running Consumer's goroutines and waits for them
// to drain, the Go analogue of original_source's shutdown() cancelling and
// gathering every asyncio.Task.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	for _, h := range b.handles {
		h.cancel()
	}
	b.handles = nil
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
