package notify

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendshelf/lending"
)

type memSink struct {
	mu     sync.Mutex
	events []lending.Event
	err    error
}

func (s *memSink) Append(_ context.Context, ev lending.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *memSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func event(id string) lending.Event {
	return lending.Event{Type: lending.EventBorrowRequested, RecipientID: "owner", ActorID: "borrower", TargetRecordID: id, OccurredAt: time.Now()}
}

func closeWithin(t *testing.T, e *Emitter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Close(ctx))
}

func TestEmitterDeliversInOrder(t *testing.T) {
	sink := &memSink{}
	e := NewEmitter(sink, 8, nil)
	go e.Run(context.Background())

	for _, id := range []string{"r1", "r2", "r3"} {
		e.Emit(event(id))
	}
	closeWithin(t, e)

	require.Equal(t, 3, sink.Len())
	assert.Equal(t, "r1", sink.events[0].TargetRecordID)
	assert.Equal(t, "r3", sink.events[2].TargetRecordID)
}

func TestEmitterDropsWhenQueueIsFull(t *testing.T) {
	sink := &memSink{}
	e := NewEmitter(sink, 2, nil)

	// Nothing drains yet, so the third event has nowhere to go.
	e.Emit(event("r1"))
	e.Emit(event("r2"))
	e.Emit(event("r3"))

	go e.Run(context.Background())
	closeWithin(t, e)
	assert.Equal(t, 2, sink.Len())
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	sink := &memSink{}
	e := NewEmitter(sink, 2, nil)
	go e.Run(context.Background())
	closeWithin(t, e)

	assert.NotPanics(t, func() { e.Emit(event("late")) })
	assert.Equal(t, 0, sink.Len())
	closeWithin(t, e)
}

func TestEmitterSurvivesSinkErrors(t *testing.T) {
	sink := &memSink{err: errors.New("disk full")}
	e := NewEmitter(sink, 4, nil)
	go e.Run(context.Background())

	e.Emit(event("r1"))
	e.Emit(event("r2"))
	closeWithin(t, e)
	assert.Equal(t, 0, sink.Len())
}

func TestCloseGivesUpAtDeadline(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	e := NewEmitter(SinkFunc(func(ctx context.Context, _ lending.Event) error {
		<-block
		return nil
	}), 4, nil)
	go e.Run(context.Background())
	e.Emit(event("r1"))
	e.Emit(event("r2"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, e.Close(ctx))
}

func TestFanoutSinkRunsEverySink(t *testing.T) {
	ok := &memSink{}
	bad := &memSink{err: errors.New("redis down")}
	worse := &memSink{err: errors.New("db down")}

	err := FanoutSink{bad, ok, worse}.Append(context.Background(), event("r1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Contains(t, err.Error(), "db down")
	assert.Equal(t, 1, ok.Len())

	assert.NoError(t, FanoutSink{ok}.Append(context.Background(), event("r2")))
}

func TestRedisStreamSink(t *testing.T) {
	addr := os.Getenv("LENDSHELF_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LENDSHELF_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()
	stream := "lendshelf:test:" + time.Now().Format("150405.000000")
	defer rdb.Del(ctx, stream)

	sink := NewRedisStreamSink(rdb, stream, 100)
	ev := event("r1")
	ev.Metadata = map[string]string{"item_id": "item-1"}
	require.NoError(t, sink.Append(ctx, ev))

	msgs, err := rdb.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "r1", msgs[0].Values["target_record_id"])
	assert.Equal(t, `{"item_id":"item-1"}`, msgs[0].Values["metadata"])
}
