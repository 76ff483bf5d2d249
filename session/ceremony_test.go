package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("LENDSHELF_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LENDSHELF_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRegistrationIsSingleUse(t *testing.T) {
	store := NewCeremonyStore(testRedis(t), time.Minute)
	ctx := context.Background()
	id := uuid.NewString()
	uid := uuid.New()

	reg := &Registration{
		Session:     webauthn.SessionData{Challenge: "challenge-1", UserID: uid[:]},
		UserID:      uid.String(),
		Username:    "olive",
		DisplayName: "Olive",
	}
	require.NoError(t, store.SaveRegistration(ctx, id, reg))

	got, err := store.TakeRegistration(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "olive", got.Username)
	assert.Equal(t, uid.String(), got.UserID)
	assert.Equal(t, "challenge-1", got.Session.Challenge)
	assert.Equal(t, uid[:], got.Session.UserID)

	_, err = store.TakeRegistration(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppSessionRevokeAll(t *testing.T) {
	store := NewAppSessionStore(testRedis(t), time.Minute)
	ctx := context.Background()
	uid := uuid.NewString()

	a, err := store.Create(ctx, uid)
	require.NoError(t, err)
	b, err := store.Create(ctx, uid)
	require.NoError(t, err)

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, uid, got.UserID)

	require.NoError(t, store.RevokeAllForUser(ctx, uid))
	_, err = store.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
