package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"lendshelf/lending"
)

const DefaultStream = "lendshelf:notifications"

// RedisStreamSink appends events to a capped Redis stream.
type RedisStreamSink struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

func NewRedisStreamSink(rdb redis.Cmdable, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamSink{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Append(ctx context.Context, ev lending.Event) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"type":             ev.Type,
			"recipient_id":     ev.RecipientID,
			"actor_id":         ev.ActorID,
			"target_record_id": ev.TargetRecordID,
			"metadata":         string(meta),
			"occurred_at":      ev.OccurredAt.UnixMilli(),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// FanoutSink appends to every sink and joins their errors.
type FanoutSink []Sink

func (f FanoutSink) Append(ctx context.Context, ev lending.Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Append(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
