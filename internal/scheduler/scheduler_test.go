package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/basket/taskorc/internal/broker"
)

// waitFor polls check at short intervals until it returns true or the
// deadline elapses, avoiding flaky fixed time.Sleep waits. Grounded on
// internal/cron/scheduler_test.go's waitFor helper.
func waitFor(t *testing.T, deadline time.Duration, check func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

type fakeStore struct {
	mu          sync.Mutex
	dueIDs      []int64
	staleIDs    []int64
	dispatchErr error
	reviewErr   error
}

func (f *fakeStore) GetDispatchTaskIDs(_ context.Context, _ time.Time, _ int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dispatchErr != nil {
		return nil, f.dispatchErr
	}
	ids := f.dueIDs
	f.dueIDs = nil
	return ids, nil
}

func (f *fakeStore) GetReviewTaskIDs(_ context.Context, _ time.Time, _ time.Duration, _ int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reviewErr != nil {
		return nil, f.reviewErr
	}
	ids := f.staleIDs
	f.staleIDs = nil
	return ids, nil
}

func TestAdmissionProducerPublishesClaimedTaskIDs(t *testing.T) {
	store := &fakeStore{dueIDs: []int64{7, 8}}
	queue := broker.NewMemory()

	var mu sync.Mutex
	var published []int64
	require.NoError(t, queue.Consumer(context.Background(), TopicReadyTasks, "", 1, 1, func(_ context.Context, content json.RawMessage) error {
		var env taskIDEnvelope
		if err := json.Unmarshal(content, &env); err != nil {
			return err
		}
		mu.Lock()
		published = append(published, env.TaskID)
		mu.Unlock()
		return nil
	}))

	producer := NewAdmissionProducer(AdmissionConfig{
		Store:    store,
		Queue:    queue,
		Interval: 20 * time.Millisecond,
	})
	producer.Start(context.Background())
	defer producer.Stop()

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(published) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []int64{7, 8}, published)
}

func TestReviewProducerPublishesStaleTaskIDs(t *testing.T) {
	store := &fakeStore{staleIDs: []int64{42}}
	queue := broker.NewMemory()

	var mu sync.Mutex
	var published []int64
	require.NoError(t, queue.Consumer(context.Background(), TopicReviewTasks, "", 1, 1, func(_ context.Context, content json.RawMessage) error {
		var env taskIDEnvelope
		if err := json.Unmarshal(content, &env); err != nil {
			return err
		}
		mu.Lock()
		published = append(published, env.TaskID)
		mu.Unlock()
		return nil
	}))

	producer := NewReviewProducer(ReviewConfig{
		Store:    store,
		Queue:    queue,
		Interval: 20 * time.Millisecond,
	})
	producer.Start(context.Background())
	defer producer.Stop()

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(published) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int64{42}, published)
}

func TestAdmissionProducerStopIsIdempotentAndClean(t *testing.T) {
	store := &fakeStore{}
	queue := broker.NewMemory()

	producer := NewAdmissionProducer(AdmissionConfig{Store: store, Queue: queue, Interval: 10 * time.Millisecond})
	producer.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	producer.Stop()
}
