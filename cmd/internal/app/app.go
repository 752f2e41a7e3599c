// Package app wires the Coterie server runtime: config, logging, storage,
// and the HTTP surface.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"coterie/cmd/identity"
	"coterie/cmd/internal/api"
	"coterie/cmd/internal/auth/limiter"
	"coterie/cmd/internal/auth/session"
	"coterie/cmd/internal/chat"
	"coterie/cmd/internal/invite"
	"coterie/cmd/internal/metrics"
	"coterie/cmd/security/password"
	"coterie/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// App is the Coterie server runtime. It owns the HTTP server and the
// lifecycles of the DB pool and Redis client.
type App struct {
	cfg Config
	log Logger

	pool      *pgxpool.Pool
	rdb       *redis.Client
	dbEnabled bool

	metrics *metrics.Set
	api     *api.Handler
}

// New constructs a fully wired App from config and logger.
//
// Without COTERIE_DATABASE_URL the app runs on in-memory stores: useful for
// development, useless for anything persistent.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	if cfg.RequireTokenHMAC {
		if _, err := token.HMACKeyFromEnv(32); err != nil {
			return nil, err
		}
	}

	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	set := metrics.NewSet()

	var (
		pool      *pgxpool.Pool
		dbEnabled bool

		users     identity.Store
		sessStore session.Store
		chatStore chat.Store
		invStore  invite.Store
	)

	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		memUsers := identity.NewMemoryStore(pwCfg)
		memSessions, err := session.NewMemoryStore(sessCfg, memUsers)
		if err != nil {
			return nil, err
		}
		users = memUsers
		sessStore = memSessions
		chatStore = chat.NewMemoryStore()
		invStore = invite.NewMemoryStore()
	} else {
		pool, err = NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		dbEnabled = true

		if cfg.InitSchema {
			if err := InitSchema(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		log.Info("db.enabled.postgres_store")

		pgUsers, err := identity.NewPostgresStore(pool, identity.WithPasswordConfig(pwCfg))
		if err != nil {
			pool.Close()
			return nil, err
		}
		pgSessions, err := session.NewPostgresStore(pool, sessCfg)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pgChats, err := chat.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pgInvites, err := invite.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		users = pgUsers
		sessStore = pgSessions
		chatStore = pgChats
		invStore = pgInvites
	}

	verifier, err := identity.NewVerifier(users, pwCfg)
	if err != nil {
		closePool(pool)
		return nil, err
	}

	rdb, err := NewRedisClient(ctx, cfg)
	if err != nil {
		closePool(pool)
		return nil, err
	}

	mgrOpts := []session.ManagerOption{session.WithMetrics(set)}
	if rdb != nil {
		limCfg, err := limiter.LoadConfigFromEnv()
		if err != nil {
			closePool(pool)
			_ = rdb.Close()
			return nil, err
		}
		throttle, err := limiter.NewRedisThrottle(rdb, limCfg)
		if err != nil {
			closePool(pool)
			_ = rdb.Close()
			return nil, err
		}
		mgrOpts = append(mgrOpts, session.WithThrottle(throttle))
		log.Info("limiter.enabled.redis", "addr", cfg.RedisAddr)
	}

	sessions, err := session.NewManager(log, sessStore, verifier, mgrOpts...)
	if err != nil {
		closePool(pool)
		return nil, err
	}

	chats, err := chat.NewService(log, chatStore, users, chat.WithMetrics(set))
	if err != nil {
		closePool(pool)
		return nil, err
	}

	invites, err := invite.NewService(invStore)
	if err != nil {
		closePool(pool)
		return nil, err
	}

	apiCfg, err := api.LoadConfigFromEnv()
	if err != nil {
		closePool(pool)
		return nil, err
	}
	handler, err := api.NewHandler(log, apiCfg, users, sessions, chats, invites)
	if err != nil {
		closePool(pool)
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		pool:      pool,
		rdb:       rdb,
		dbEnabled: dbEnabled,
		metrics:   set,
		api:       handler,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or a
// fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.pool, a.dbEnabled, a.metrics, a.api)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.close()
	a.log.Info("server.stopped")
	return nil
}

func (a *App) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func closePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
