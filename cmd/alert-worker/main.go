package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/surgical-authorization-tracker/internal/config"
	"github.com/hackgods/surgical-authorization-tracker/internal/db"
	applog "github.com/hackgods/surgical-authorization-tracker/internal/logger"
	"github.com/hackgods/surgical-authorization-tracker/internal/metrics"
	"github.com/hackgods/surgical-authorization-tracker/internal/notify"
	redisclient "github.com/hackgods/surgical-authorization-tracker/internal/redis"
	"github.com/hackgods/surgical-authorization-tracker/internal/surgical"
	"github.com/hackgods/surgical-authorization-tracker/internal/worker"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := applog.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("alert-worker starting up",
		zap.String("env", cfg.Env),
		zap.String("storage", cfg.StorageBackend),
		zap.Duration("interval", cfg.AlertScanInterval),
		zap.Bool("once", *once),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(rootCtx, cfg)
	if err != nil {
		logger.Fatal("storage init error", zap.Error(err))
	}
	defer closeRepo()

	locker := redisclient.NewLocalLocker(cfg.LockTTL)
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal("redis connection error", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		logger.Info("connected to Redis")
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	}

	sinks := notify.Fanout{notify.NewLogSink(logger)}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaNoticeTopic, logger)
		defer func() {
			if err := kafkaSink.Close(); err != nil {
				logger.Warn("error closing kafka writer", zap.Error(err))
			}
		}()
		sinks = append(sinks, kafkaSink)
	}

	m := metrics.NewCollector()
	store := surgical.NewStore(repo, logger)
	svc := surgical.NewService(surgical.Options{
		Store:   store,
		Sink:    sinks,
		Locker:  locker,
		Metrics: m,
		Log:     logger,
	})

	// Other processes may have written since the last run, so every sweep
	// starts from a fresh load.
	sweep := worker.Exclusive(locker, "alerts:sweep", func(ctx context.Context) error {
		store.Load(ctx)
		alerted, err := svc.RunAlertSweep(ctx)
		if err != nil {
			return err
		}
		logger.Info("sweep complete", zap.Int("cases", store.Len()), zap.Int("alerted", alerted))
		return nil
	}, logger)

	runner := worker.Runner{
		Name:     "alert-worker",
		Interval: cfg.AlertScanInterval,
		Timeout:  20 * time.Second,
		Job:      sweep,
		Log:      logger,
		OnError:  func(error) { m.SweepErrorsTotal.Inc() },
	}

	if *once {
		runCtx, cancel := context.WithTimeout(rootCtx, runner.Timeout)
		defer cancel()
		if err := sweep(runCtx); err != nil {
			logger.Error("sweep failed", zap.Error(err))
		}
		return
	}

	_ = runner.Run(rootCtx)
	logger.Info("alert-worker stopped")
}

func openRepository(ctx context.Context, cfg config.Config) (surgical.Repository, func(), error) {
	if cfg.StorageBackend != config.StoragePostgres {
		repo, err := surgical.NewFileRepository(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil
	}

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres connection: %w", err)
	}

	repo := surgical.NewPgRepository(pool)
	if err := repo.EnsureSchema(pgCtx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return repo, pool.Close, nil
}
