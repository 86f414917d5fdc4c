package broker

import "context"

// Queue is the durable-broker surface the scheduler and task engine depend
// on, satisfied by both the Redis-backed Broker and MemoryBroker (the
// in-process test double). Grounded on internal/bus.Bus's
// being the sole pub/sub dependency its callers take — generalized here
// from fire-and-forget pub/sub to a durable send/consume/ack contract.
type Queue interface {
	Send(ctx context.Context, topic string, content any) (string, error)
	Consumer(ctx context.Context, topic, groupID string, listeners, maxWorkers int, handler Handler) error
	Shutdown(ctx context.Context) error
}

var (
	_ Queue = (*Broker)(nil)
	_ Queue = (*MemoryBroker)(nil)
)
