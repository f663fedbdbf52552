package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/surgical-authorization-tracker/internal/api"
	"github.com/hackgods/surgical-authorization-tracker/internal/config"
	"github.com/hackgods/surgical-authorization-tracker/internal/db"
	applog "github.com/hackgods/surgical-authorization-tracker/internal/logger"
	"github.com/hackgods/surgical-authorization-tracker/internal/metrics"
	"github.com/hackgods/surgical-authorization-tracker/internal/notify"
	redisclient "github.com/hackgods/surgical-authorization-tracker/internal/redis"
	"github.com/hackgods/surgical-authorization-tracker/internal/summary"
	"github.com/hackgods/surgical-authorization-tracker/internal/surgical"
	"github.com/hackgods/surgical-authorization-tracker/internal/worker"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := applog.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("storage", cfg.StorageBackend),
		zap.Duration("alert_scan_interval", cfg.AlertScanInterval),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(rootCtx, cfg)
	if err != nil {
		logger.Fatal("storage init error", zap.Error(err))
	}
	defer closeRepo()

	store := surgical.NewStore(repo, logger)
	store.Load(rootCtx)

	summaryLocker := redisclient.NewLocalLocker(cfg.SummaryTimeout)
	sweepLocker := redisclient.NewLocalLocker(cfg.LockTTL)
	var redisPinger api.Pinger
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

		summaryLocker = redisclient.NewRedisLocker(rdb, cfg.SummaryTimeout)
		sweepLocker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
		redisPinger = api.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	recorder := notify.NewRecorder(cfg.NoticeBuffer)
	sinks := notify.Fanout{notify.NewLogSink(logger), recorder}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaNoticeTopic, logger)
		defer func() {
			if err := kafkaSink.Close(); err != nil {
				logger.Warn("error closing kafka writer", zap.Error(err))
			}
		}()
		sinks = append(sinks, kafkaSink)
		logger.Info("publishing notices to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaNoticeTopic))
	}

	m := metrics.NewCollector()
	svc := surgical.NewService(surgical.Options{
		Store:      store,
		Sink:       sinks,
		Summarizer: summary.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel),
		Locker:     summaryLocker,
		Metrics:    m,
		Log:        logger,
	})

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		Notices: recorder,
		Metrics: m,
		Log:     logger,
		Storage: repo,
		Redis:   redisPinger,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	scanner := worker.Runner{
		Name:     "alert-scanner",
		Interval: cfg.AlertScanInterval,
		Timeout:  20 * time.Second,
		Job: worker.Exclusive(sweepLocker, "alerts:sweep", func(ctx context.Context) error {
			_, err := svc.RunAlertSweep(ctx)
			return err
		}, logger),
		Log:     logger,
		OnError: func(error) { m.SweepErrorsTotal.Inc() },
	}

	g, ctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down api-server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return scanner.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("api-server stopped with error", zap.Error(err))
		return
	}
	logger.Info("api-server stopped")
}

// storage is a Repository that can also be probed for readiness.
type storage interface {
	surgical.Repository
	api.Pinger
}

func openRepository(ctx context.Context, cfg config.Config) (storage, func(), error) {
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
