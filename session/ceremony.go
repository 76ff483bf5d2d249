package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
)

// CeremonyStore holds WebAuthn challenge state between the begin and finish
// calls of a registration or login.
type CeremonyStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewCeremonyStore(rdb redis.Cmdable, ttl time.Duration) *CeremonyStore {
	return &CeremonyStore{rdb: rdb, ttl: ttl}
}

type CeremonyKind string

const (
	CeremonyRegister CeremonyKind = "reg"
	CeremonyLogin    CeremonyKind = "auth"
)

func ceremonyKey(kind CeremonyKind, id string) string {
	return fmt.Sprintf("lendshelf:webauthn:%s:%s", kind, id)
}

func (s *CeremonyStore) Save(ctx context.Context, kind CeremonyKind, id string, sd *webauthn.SessionData) error {
	return s.put(ctx, kind, id, sd)
}

// Take loads and deletes the ceremony state so a challenge is used once.
func (s *CeremonyStore) Take(ctx context.Context, kind CeremonyKind, id string) (*webauthn.SessionData, error) {
	var sd webauthn.SessionData
	if err := s.take(ctx, kind, id, &sd); err != nil {
		return nil, err
	}
	return &sd, nil
}

// Registration is a sign-up ceremony and the member it creates once the
// passkey is attested. Nothing is written to the database before that.
type Registration struct {
	Session     webauthn.SessionData `json:"session"`
	UserID      string               `json:"userId"`
	Username    string               `json:"username"`
	DisplayName string               `json:"displayName"`
}

func (s *CeremonyStore) SaveRegistration(ctx context.Context, id string, reg *Registration) error {
	return s.put(ctx, CeremonyRegister, id, reg)
}

func (s *CeremonyStore) TakeRegistration(ctx context.Context, id string) (*Registration, error) {
	var reg Registration
	if err := s.take(ctx, CeremonyRegister, id, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (s *CeremonyStore) put(ctx context.Context, kind CeremonyKind, id string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, ceremonyKey(kind, id), b, s.ttl).Err()
}

func (s *CeremonyStore) take(ctx context.Context, kind CeremonyKind, id string, v any) error {
	b, err := s.rdb.GetDel(ctx, ceremonyKey(kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
