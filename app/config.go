package app

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is read from the environment, optionally seeded from a .env file.
type Config struct {
	Env  string `env:"APP_ENV" envDefault:"local"`
	Port string `env:"PORT" envDefault:"3001"`

	DatabaseURL       string        `env:"DATABASE_URL"`
	DBHost            string        `env:"DB_HOST" envDefault:"127.0.0.1"`
	DBPort            string        `env:"DB_PORT" envDefault:"5432"`
	DBUser            string        `env:"DB_USER" envDefault:"postgres"`
	DBPassword        string        `env:"DB_PASSWORD"`
	DBName            string        `env:"DB_NAME" envDefault:"lendshelf"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBDebug           bool          `env:"DB_DEBUG"`

	RedisAddr string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPwd  string `env:"REDIS_PASSWORD"`

	WebOrigin        string        `env:"WEB_ORIGIN" envDefault:"http://localhost:5173"`
	RPID             string        `env:"RP_ID" envDefault:"localhost"`
	RPOrigins        []string      `env:"RP_ORIGINS" envSeparator:","`
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"10m"`
	AppSessionTTL    time.Duration `env:"APP_SESSION_TTL" envDefault:"24h"`
	LastSeenThrottle time.Duration `env:"LAST_SEEN_THROTTLE" envDefault:"5m"`

	NotifySinks        []string `env:"NOTIFY_SINKS" envSeparator:"," envDefault:"db"`
	NotifyQueueSize    int      `env:"NOTIFY_QUEUE_SIZE" envDefault:"256"`
	NotifyStream       string   `env:"NOTIFY_STREAM" envDefault:"lendshelf:notifications"`
	NotifyStreamMaxLen int64    `env:"NOTIFY_STREAM_MAXLEN" envDefault:"10000"`
}

const (
	SinkDB    = "db"
	SinkRedis = "redis"
)

// LoadConfig loads .env (if present) and parses the process environment.
func LoadConfig(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return ParseConfig(nil)
}

// ParseConfig parses environ, or the process environment when environ is nil.
func ParseConfig(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg.normalize()
}

func (c Config) normalize() (Config, error) {
	c.WebOrigin = strings.TrimRight(strings.TrimSpace(c.WebOrigin), "/")
	var origins []string
	for _, o := range c.RPOrigins {
		if s := strings.TrimSpace(o); s != "" {
			origins = append(origins, s)
		}
	}
	if len(origins) == 0 {
		origins = []string{c.WebOrigin}
	}
	c.RPOrigins = origins

	var sinks []string
	for _, s := range c.NotifySinks {
		s = strings.ToLower(strings.TrimSpace(s))
		switch s {
		case "":
			continue
		case SinkDB, SinkRedis:
			sinks = append(sinks, s)
		default:
			return Config{}, fmt.Errorf("unknown notification sink %q", s)
		}
	}
	if len(sinks) == 0 {
		return Config{}, fmt.Errorf("NOTIFY_SINKS must name at least one of %s, %s", SinkDB, SinkRedis)
	}
	c.NotifySinks = sinks
	return c, nil
}

// DSN prefers DATABASE_URL and falls back to the DB_* pieces.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func (c Config) Addr() string { return ":" + c.Port }

func (c Config) SecureCookies() bool { return strings.HasPrefix(c.WebOrigin, "https://") }

func (c Config) HasSink(name string) bool {
	for _, s := range c.NotifySinks {
		if s == name {
			return true
		}
	}
	return false
}
