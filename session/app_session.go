package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("session not found")

// AppSessionStore keeps logged-in member sessions in Redis, indexed per member
// so they can all be revoked at once.
type AppSessionStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewAppSessionStore(rdb redis.Cmdable, ttl time.Duration) *AppSessionStore {
	return &AppSessionStore{rdb: rdb, ttl: ttl}
}

type AppSession struct {
	ID        string `json:"-"`
	UserID    string `json:"uid"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func (s *AppSessionStore) TTL() time.Duration { return s.ttl }

func appKey(id string) string        { return fmt.Sprintf("lendshelf:sess:%s", id) }
func memberSetKey(uid string) string { return fmt.Sprintf("lendshelf:member_sessions:%s", uid) }

// Create issues a new session for userID and returns it.
func (s *AppSessionStore) Create(ctx context.Context, userID string) (*AppSession, error) {
	now := time.Now()
	as := &AppSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}
	b, err := json.Marshal(as)
	if err != nil {
		return nil, err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, appKey(as.ID), b, s.ttl)
	pipe.SAdd(ctx, memberSetKey(userID), as.ID)
	pipe.Expire(ctx, memberSetKey(userID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return as, nil
}

func (s *AppSessionStore) Get(ctx context.Context, id string) (*AppSession, error) {
	b, err := s.rdb.Get(ctx, appKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var as AppSession
	if err := json.Unmarshal(b, &as); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	as.ID = id
	return &as, nil
}

func (s *AppSessionStore) Delete(ctx context.Context, id string) error {
	as, _ := s.Get(ctx, id)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, appKey(id))
	if as != nil {
		pipe.SRem(ctx, memberSetKey(as.UserID), id)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// RevokeAllForUser drops every session of a member.
func (s *AppSessionStore) RevokeAllForUser(ctx context.Context, userID string) error {
	ids, err := s.rdb.SMembers(ctx, memberSetKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	pipe := s.rdb.TxPipeline()
	for _, sid := range ids {
		pipe.Del(ctx, appKey(sid))
	}
	pipe.Del(ctx, memberSetKey(userID))
	_, err = pipe.Exec(ctx)
	return err
}
