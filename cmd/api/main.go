package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhutani/staffcore/internal/agreement"
	"github.com/nikhilbhutani/staffcore/internal/api"
	"github.com/nikhilbhutani/staffcore/internal/api/handlers"
	"github.com/nikhilbhutani/staffcore/internal/assignment"
	"github.com/nikhilbhutani/staffcore/internal/audit"
	"github.com/nikhilbhutani/staffcore/internal/cache"
	"github.com/nikhilbhutani/staffcore/internal/config"
	"github.com/nikhilbhutani/staffcore/internal/confirm"
	"github.com/nikhilbhutani/staffcore/internal/connect"
	"github.com/nikhilbhutani/staffcore/internal/contract"
	"github.com/nikhilbhutani/staffcore/internal/database"
	"github.com/nikhilbhutani/staffcore/internal/numbering"
	"github.com/nikhilbhutani/staffcore/internal/queue"
	"github.com/nikhilbhutani/staffcore/internal/render"
	"github.com/nikhilbhutani/staffcore/internal/session"
	"github.com/nikhilbhutani/staffcore/internal/storage"
	"github.com/nikhilbhutani/staffcore/internal/store/postgres"
	"github.com/nikhilbhutani/staffcore/internal/teishokubi"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
	"github.com/nikhilbhutani/staffcore/migrations"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.RunMigrations(ctx, pool, migrations.FS); err != nil {
		return err
	}
	st := postgres.New(pool, cfg.Numbering.LockTimeout)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	c := cache.NewCache(rdb)
	ready := map[string]handlers.Pinger{"database": st}
	redisUp := true
	if err := c.Ping(ctx); err != nil {
		// tenant switching and shared rate limits need redis
		slog.Warn("redis unavailable, running without sessions", "error", err)
		redisUp = false
	} else {
		ready["redis"] = c
	}

	var blobs storage.Storage
	switch cfg.Storage.Backend {
	case "memory":
		slog.Warn("prints are kept in memory and lost on restart")
		blobs = storage.NewMemoryStorage()
	default:
		blobs = storage.NewSupabaseStorage(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey, cfg.Storage.Bucket)
	}

	renderer, err := render.New(cfg.Render.FontPath, cfg.Render.DraftWatermark)
	if err != nil {
		return err
	}

	jobs := queue.NewClient(cfg.Redis)
	defer jobs.Close()

	sink := audit.NewSink(st)
	tenants := tenant.NewService(st)
	contracts := contract.NewService(st, blobs, renderer, numbering.New(loc), sink, loc)

	deps := api.Deps{
		Tenants:     tenants,
		Contracts:   contracts,
		Assignments: assignment.NewService(st, sink),
		Teishokubi:  teishokubi.NewService(st),
		Gateway:     confirm.NewGateway(st, contracts),
		Agreements:  agreement.NewService(st, sink),
		Connect:     connect.NewService(st, sink, jobs, cfg.Mail.InviteURL),
		Audit:       sink,
		Rebuilds:    jobs,
		Ready:       ready,
	}
	if redisUp {
		deps.Sessions = session.NewStore(c, cfg.Session, tenants)
		deps.RateCounter = c
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(cfg, deps).Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}
