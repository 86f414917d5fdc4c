package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MemoryBroker is an in-process Queue used by tests that want real
// producer/consumer concurrency without a Redis dependency. Grounded on
// internal/bus.Bus's topology (topic channels, goroutine fan-out)
// but blocking rather than dropping on a full channel: bus's is
// a best-effort pub/sub for observability events, while this broker stands
// in for a durable queue, so a slow consumer must apply backpressure to the
// producer instead of silently losing work.
type MemoryBroker struct {
	mu      sync.Mutex
	streams map[string]chan job
	dlq     map[string][]Envelope
	nextID  atomic.Int64
	wg      sync.WaitGroup
	cancels []context.CancelFunc
}

// NewMemory constructs an empty MemoryBroker.
func NewMemory() *MemoryBroker {
	return &MemoryBroker{
		streams: make(map[string]chan job),
		dlq:     make(map[string][]Envelope),
	}
}

func (m *MemoryBroker) stream(topic string) chan job {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.streams[topic]
	if !ok {
		ch = make(chan job, 64)
		m.streams[topic] = ch
	}
	return ch
}

// Send enqueues content on topic, blocking if the topic's buffer is full.
func (m *MemoryBroker) Send(ctx context.Context, topic string, content any) (string, error) {
	env, err := NewEnvelope(content)
	if err != nil {
		return "", fmt.Errorf("build envelope: %w", err)
	}
	id := fmt.Sprintf("%d-0", m.nextID.Add(1))
	select {
	case m.stream(topic) <- job{messageID: id, envelope: env}:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Consumer spawns listeners*maxWorkers goroutines draining topic's buffer.
// groupID is accepted for interface parity with Broker but otherwise
// unused: an in-process channel has no consumer-group concept.
func (m *MemoryBroker) Consumer(ctx context.Context, topic, groupID string, listeners, maxWorkers int, handler Handler) error {
	if listeners <= 0 {
		listeners = 1
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	cctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancels = append(m.cancels, cancel)
	m.mu.Unlock()

	src := m.stream(topic)
	queue := make(chan job, maxWorkers*2)

	for i := 0; i < listeners; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for {
				select {
				case <-cctx.Done():
					return
				case j, ok := <-src:
					if !ok {
						return
					}
					select {
					case queue <- j:
					case <-cctx.Done():
						return
					}
				}
			}
		}()

		for j := 0; j < maxWorkers; j++ {
			m.wg.Add(1)
			go m.work(cctx, topic, queue, handler)
		}
	}
	return nil
}

func (m *MemoryBroker) work(ctx context.Context, topic string, queue <-chan job, handler Handler) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-queue:
			if !ok {
				return
			}
			if err := handler(ctx, j.envelope.Content); err != nil {
				j.envelope.ExcInfo = &FailureInfo{Message: err.Error(), Type: fmt.Sprintf("%T", err)}
				m.mu.Lock()
				m.dlq[DLQTopic(topic)] = append(m.dlq[DLQTopic(topic)], j.envelope)
				m.mu.Unlock()
			}
		}
	}
}

// DeadLettered returns every envelope routed to topic's DLQ, for test
// assertions.
func (m *MemoryBroker) DeadLettered(topic string) []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Envelope(nil), m.dlq[DLQTopic(topic)]...)
}

// Shutdown cancels every Consumer's goroutines and waits for them to drain.
func (m *MemoryBroker) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = nil
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
