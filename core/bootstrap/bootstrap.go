package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/state"
	stateredis "github.com/m3rciful/shopbot/core/telegram/state/redis"

	backend "github.com/redis/go-redis/v9"
)

// Options control the generic bootstrap pipeline.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	// Dial opens the redis client for the redis session backend.
	Dial func(coreconfig.RedisConfig) (backend.UniversalClient, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Sessions state.Store
	Locks    state.Locker

	// Redis is set only for the redis session backend.
	Redis backend.UniversalClient
}

// Close releases connections opened by Run.
func (r *Result) Close() error {
	if r == nil || r.Redis == nil {
		return nil
	}
	return r.Redis.Close()
}

// Run initializes the logger and the session backend.
func Run(opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	ttl := time.Duration(cfg.Session.TTLSeconds) * time.Second
	if cfg.Session.Backend != coreconfig.SessionRedis {
		logger.Info(context.Background(), "session", "session.backend",
			slog.String("status", "ok"),
			slog.String("mode", coreconfig.SessionMemory),
		)
		return &Result{
			Sessions: state.NewMemoryStore(ttl),
			Locks:    state.NewKeyedMutex(),
		}, nil
	}

	dial := opts.Dial
	if dial == nil {
		dial = DialRedis
	}
	client, err := dial(cfg.Session.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: redis initialization failed: %w", err)
	}

	prefix := stateredis.WithPrefix(cfg.Session.Redis.Prefix)
	logger.Info(context.Background(), "session", "session.backend",
		slog.String("status", "ok"),
		slog.String("mode", coreconfig.SessionRedis),
		slog.String("listen", cfg.Session.Redis.Addr),
	)
	return &Result{
		Sessions: stateredis.NewStore(client, prefix, stateredis.WithTTL(ttl)),
		Locks: stateredis.NewLocker(client, prefix,
			stateredis.WithTTL(time.Duration(cfg.Session.LockTTLSeconds)*time.Second)),
		Redis: client,
	}, nil
}

// DialRedis connects to redis and verifies the connection with PING.
func DialRedis(cfg coreconfig.RedisConfig) (backend.UniversalClient, error) {
	client := backend.NewClient(&backend.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}
