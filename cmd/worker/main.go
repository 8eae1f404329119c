package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhutani/staffcore/internal/config"
	"github.com/nikhilbhutani/staffcore/internal/database"
	"github.com/nikhilbhutani/staffcore/internal/mail"
	"github.com/nikhilbhutani/staffcore/internal/queue"
	"github.com/nikhilbhutani/staffcore/internal/queue/workers"
	"github.com/nikhilbhutani/staffcore/internal/store/postgres"
	"github.com/nikhilbhutani/staffcore/internal/teishokubi"
)

// nightlyRebuild re-derives every tenant's conflict dates in case a
// recompute was lost.
const nightlyRebuild = "0 3 * * *"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	pool, err := database.NewPool(context.Background(), cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	st := postgres.New(pool, cfg.Numbering.LockTimeout)

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		},
	)
	scheduler := asynq.NewScheduler(queue.RedisOpt(cfg.Redis), &asynq.SchedulerOpts{Location: loc})
	if _, err := scheduler.Register(nightlyRebuild, asynq.NewTask(queue.TypeTeishokubiRebuild, []byte("{}")),
		asynq.MaxRetry(2), asynq.Timeout(30*time.Minute)); err != nil {
		slog.Error("failed to schedule rebuild", "error", err)
		os.Exit(1)
	}

	registry := queue.NewHandlersRegistry()

	// Register workers
	mailWorker := workers.NewMailWorker(mail.NewSender(cfg.Mail))
	teishokubiWorker := workers.NewTeishokubiWorker(teishokubi.NewService(st), 4)

	registry.Register(queue.TypeMailSend, asynq.HandlerFunc(mailWorker.ProcessTask))
	registry.Register(queue.TypeTeishokubiRebuild, asynq.HandlerFunc(teishokubiWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", cfg.Worker.Concurrency, "types", registry.Types())
	var g errgroup.Group
	g.Go(func() error { return srv.Run(registry.Mux()) })
	g.Go(scheduler.Run)
	if err := g.Wait(); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
