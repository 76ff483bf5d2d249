package controllers_test

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lendshelf/controllers"
	"lendshelf/db"
	"lendshelf/models"
	"lendshelf/session"
)

// newAuthSrv needs both LENDSHELF_TEST_DATABASE_URL and LENDSHELF_TEST_REDIS_ADDR.
func newAuthSrv(t *testing.T) *controllers.Srv {
	t.Helper()
	dsn := os.Getenv("LENDSHELF_TEST_DATABASE_URL")
	addr := os.Getenv("LENDSHELF_TEST_REDIS_ADDR")
	if dsn == "" || addr == "" {
		t.Skip("LENDSHELF_TEST_DATABASE_URL and LENDSHELF_TEST_REDIS_ADDR not set")
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	conn, err := db.Connect(context.Background(), db.Options{DSN: dsn}, log)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "Lendshelf",
		RPID:          "localhost",
		RPOrigins:     []string{"http://localhost:5173"},
	})
	require.NoError(t, err)

	return &controllers.Srv{
		WA:         wa,
		Repo:       db.NewRepo(conn),
		Ceremonies: session.NewCeremonyStore(rdb, time.Minute),
		AppSess:    session.NewAppSessionStore(rdb, time.Hour),
		Log:        log,
	}
}

type beginResp struct {
	RegistrationID string `json:"registrationId"`
	Error          string `json:"error"`
}

func TestBeginRegistrationCreatesNoMember(t *testing.T) {
	srv := newAuthSrv(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webauthn/register/begin", srv.BeginRegistration)
	ctx := context.Background()

	username := "newbie-" + uuid.NewString()[:8]
	w := do(t, r, http.MethodPost, "/webauthn/register/begin", "", map[string]any{"username": username})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode[beginResp](t, w).RegistrationID)

	_, err := srv.Repo.FindUserByUsername(ctx, username)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound, "no member before the passkey is attested")

	// A second begin for the same pending name is just another ceremony.
	w = do(t, r, http.MethodPost, "/webauthn/register/begin", "", map[string]any{"username": strings.ToUpper(username)})
	assert.Equal(t, http.StatusOK, w.Code)

	// A registered member's username is taken.
	taken := "member-" + uuid.NewString()[:8]
	_, err = srv.Repo.RegisterMember(ctx, uuid.NewString(), taken, "", &models.Credential{CredentialID: []byte("cred-" + taken)})
	require.NoError(t, err)
	w = do(t, r, http.MethodPost, "/webauthn/register/begin", "", map[string]any{"username": taken})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "username_taken", decode[beginResp](t, w).Error)
}
