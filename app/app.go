package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"lendshelf/db"
	"lendshelf/lending"
	"lendshelf/notify"
	"lendshelf/session"
)

type Ctx = gin.Context
type H = gin.H

// IdempotencyHeader carries the borrower's request key on borrow requests.
const IdempotencyHeader = "Idempotency-Key"

// App aggregates the process-wide dependencies.
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	WA     *webauthn.WebAuthn
	Config Config
	Log    *slog.Logger

	Repo          *db.Repo
	Borrows       *db.BorrowStore
	Notifications *db.NotificationRepo
	Emitter       *notify.Emitter
	Lending       *lending.Service
	Queries       *lending.QueryService

	appSess    *session.AppSessionStore
	ceremonies *session.CeremonyStore
	stop       context.CancelFunc
}

func (a *App) AppSessions() *session.AppSessionStore { return a.appSess }
func (a *App) Ceremonies() *session.CeremonyStore    { return a.ceremonies }

// New connects postgres and redis, builds the lending services and starts the
// notification worker. Close releases all of it.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*App, error) {
	conn, err := db.Connect(ctx, db.Options{
		DSN:             cfg.DSN(),
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		Debug:           cfg.DBDebug,
	}, log)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "Lendshelf",
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("webauthn: %w", err)
	}

	if cfg.Env == "prod" || cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log))
	useCORS(r, cfg.WebOrigin)

	a := &App{
		Router:        r,
		DB:            conn,
		RDB:           rdb,
		WA:            wa,
		Config:        cfg,
		Log:           log,
		Repo:          db.NewRepo(conn),
		Borrows:       db.NewBorrowStore(conn),
		Notifications: db.NewNotificationRepo(conn),
		appSess:       session.NewAppSessionStore(rdb, cfg.AppSessionTTL),
		ceremonies:    session.NewCeremonyStore(rdb, cfg.SessionTTL),
	}

	a.Emitter = notify.NewEmitter(buildSink(cfg, a.Notifications, rdb), cfg.NotifyQueueSize, log.With("component", "notify"))
	a.Lending = lending.NewService(a.Borrows, a.Repo, a.Repo, a.Emitter, log.With("component", "lending"))
	a.Queries = lending.NewQueryService(a.Borrows, a.Repo, a.Repo, log.With("component", "lending.query"))

	runCtx, stop := context.WithCancel(context.Background())
	a.stop = stop
	go a.Emitter.Run(runCtx)
	return a, nil
}

// buildSink assembles the configured notification sinks.
func buildSink(cfg Config, notes *db.NotificationRepo, rdb redis.Cmdable) notify.Sink {
	var sinks notify.FanoutSink
	if cfg.HasSink(SinkDB) {
		sinks = append(sinks, notes)
	}
	if cfg.HasSink(SinkRedis) {
		sinks = append(sinks, notify.NewRedisStreamSink(rdb, cfg.NotifyStream, cfg.NotifyStreamMaxLen))
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	return sinks
}

// Close drains pending notifications and closes the connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Emitter != nil {
		if err := a.Emitter.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.stop != nil {
		a.stop()
	}
	if a.RDB != nil {
		if err := a.RDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close database: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
