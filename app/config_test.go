package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, ":3001", cfg.Addr())
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 24*time.Hour, cfg.AppSessionTTL)
	assert.Equal(t, []string{SinkDB}, cfg.NotifySinks)
	assert.Equal(t, 256, cfg.NotifyQueueSize)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.RPOrigins, "RP origins fall back to the web origin")
	assert.False(t, cfg.SecureCookies())
	assert.Equal(t, "postgres://postgres:@127.0.0.1:5432/lendshelf?sslmode=disable", cfg.DSN())
}

func TestParseConfigOverrides(t *testing.T) {
	cfg, err := ParseConfig(map[string]string{
		"APP_ENV":         "prod",
		"PORT":            "8080",
		"DATABASE_URL":    "postgres://app:pw@db:5432/lend",
		"WEB_ORIGIN":      "https://lend.example.com/",
		"RP_ORIGINS":      "https://lend.example.com, https://m.lend.example.com ,",
		"APP_SESSION_TTL": "2h",
		"NOTIFY_SINKS":    "DB, redis",
	})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "postgres://app:pw@db:5432/lend", cfg.DSN())
	assert.Equal(t, "https://lend.example.com", cfg.WebOrigin)
	assert.Equal(t, []string{"https://lend.example.com", "https://m.lend.example.com"}, cfg.RPOrigins)
	assert.Equal(t, 2*time.Hour, cfg.AppSessionTTL)
	assert.True(t, cfg.SecureCookies())
	assert.True(t, cfg.HasSink(SinkDB))
	assert.True(t, cfg.HasSink(SinkRedis))
}

func TestParseConfigRejectsBadValues(t *testing.T) {
	_, err := ParseConfig(map[string]string{"NOTIFY_SINKS": "kafka"})
	assert.ErrorContains(t, err, "kafka")

	_, err = ParseConfig(map[string]string{"NOTIFY_SINKS": " , "})
	assert.Error(t, err)

	_, err = ParseConfig(map[string]string{"SESSION_TTL": "soon"})
	assert.Error(t, err)
}

func TestDSNFromPieces(t *testing.T) {
	cfg, err := ParseConfig(map[string]string{
		"DB_HOST":     "pg",
		"DB_PORT":     "6543",
		"DB_USER":     "lender",
		"DB_PASSWORD": "p@ss word",
		"DB_NAME":     "shelf",
	})
	require.NoError(t, err)
	assert.Equal(t, "postgres://lender:p%40ss%20word@pg:6543/shelf?sslmode=disable", cfg.DSN())
}

func TestCurrentUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, CurrentUserID(c))

	SetCurrentUser(c, "member-1", "olive")
	assert.Equal(t, "member-1", CurrentUserID(c))
	assert.Equal(t, "olive", CurrentUsername(c))
}

func TestRequestLoggerPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(NewLogger("test")))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusTeapot, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}
