// Package notify delivers lending events to activity sinks off the request
// path.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"lendshelf/lending"
)

var (
	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lendshelf",
		Name:      "notifications_dropped_total",
		Help:      "Notifications dropped because the queue was full or closed.",
	})
	sinkErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lendshelf",
		Name:      "notification_sink_errors_total",
		Help:      "Notifications the sink failed to append.",
	})
)

// Sink stores an event. Implementations may block; the emitter bounds each
// call with a timeout.
type Sink interface {
	Append(ctx context.Context, ev lending.Event) error
}

type SinkFunc func(ctx context.Context, ev lending.Event) error

func (f SinkFunc) Append(ctx context.Context, ev lending.Event) error { return f(ctx, ev) }

// Emitter is a lending.Notifier backed by a bounded queue and one worker.
type Emitter struct {
	sink          Sink
	log           *slog.Logger
	appendTimeout time.Duration

	mu     sync.RWMutex
	queue  chan lending.Event
	closed bool
	done   chan struct{}
}

var _ lending.Notifier = (*Emitter)(nil)

func NewEmitter(sink Sink, queueSize int, log *slog.Logger) *Emitter {
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{
		sink:          sink,
		log:           log,
		appendTimeout: 3 * time.Second,
		queue:         make(chan lending.Event, queueSize),
		done:          make(chan struct{}),
	}
}

// Emit queues ev without blocking. A full or closed queue drops the event.
func (e *Emitter) Emit(ev lending.Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		droppedTotal.Inc()
		e.log.Warn("notification dropped, emitter closed", "type", ev.Type, "record_id", ev.TargetRecordID)
		return
	}
	select {
	case e.queue <- ev:
	default:
		droppedTotal.Inc()
		e.log.Warn("notification dropped, queue full", "type", ev.Type, "record_id", ev.TargetRecordID)
	}
}

// Run delivers queued events until Close is called and the queue is drained,
// or ctx is cancelled.
func (e *Emitter) Run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.queue:
			if !ok {
				return
			}
			e.deliver(ctx, ev)
		}
	}
}

func (e *Emitter) deliver(ctx context.Context, ev lending.Event) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.appendTimeout)
	defer cancel()
	if err := e.sink.Append(actx, ev); err != nil {
		sinkErrorsTotal.Inc()
		e.log.Error("notification append failed",
			"type", ev.Type,
			"recipient_id", ev.RecipientID,
			"record_id", ev.TargetRecordID,
			"err", err)
	}
}

// Close stops intake and waits for Run to drain the queue, up to ctx's
// deadline.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("notification queue not drained"), ctx.Err())
	}
}
