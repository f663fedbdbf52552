package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"go.uber.org/zap"

	"github.com/hackgods/surgical-authorization-tracker/internal/config"
	"github.com/hackgods/surgical-authorization-tracker/internal/db"
	applog "github.com/hackgods/surgical-authorization-tracker/internal/logger"
	redisclient "github.com/hackgods/surgical-authorization-tracker/internal/redis"
	"github.com/hackgods/surgical-authorization-tracker/internal/surgical"
)

var documentStatuses = []surgical.DocumentStatus{
	surgical.DocPending,
	surgical.DocReceived,
	surgical.DocReceived,
	surgical.DocNotApplicable,
}

var laterStages = []surgical.FollowUpStatus{
	surgical.FollowUpAuthorized,
	surgical.FollowUpRejected,
	surgical.FollowUpJudicialized,
	surgical.FollowUpSurgeryScheduled,
	surgical.FollowUpOperated,
}

func main() {
	count := flag.Int("count", 25, "number of demo cases to create")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		logger.Fatal("storage init error", zap.Error(err))
	}
	defer closeRepo()

	store := surgical.NewStore(repo, logger)
	store.Load(ctx)

	// Cases are backdated by moving this clock before each create.
	clock := time.Now()
	svc := surgical.NewService(surgical.Options{
		Store:  store,
		Locker: redisclient.NewLocalLocker(time.Minute),
		Log:    zap.NewNop(),
		Now:    func() time.Time { return clock },
	})

	settings := svc.Settings()
	logger.Info("seeding cases", zap.Int("count", *count), zap.Int("existing", store.Len()))

	for i := 0; i < *count; i++ {
		if ctx.Err() != nil {
			break
		}

		clock = time.Now().Add(-time.Duration(gofakeit.Number(0, 120)) * 24 * time.Hour)
		c, err := svc.CreateCase(ctx, surgical.NewCaseInput{
			PatientName:       gofakeit.Name(),
			WhatsAppNumber:    "+54" + gofakeit.Phone(),
			InsuranceProvider: gofakeit.RandomString(settings.InsuranceProviders),
			Surgeon:           gofakeit.RandomString(settings.Surgeons),
			Nutritionist:      gofakeit.RandomString(settings.Nutritionists),
			Psychologist:      gofakeit.RandomString(settings.Psychologists),
		})
		if err != nil {
			logger.Fatal("create case", zap.Error(err))
		}

		if err := progress(ctx, svc, c, clock); err != nil {
			logger.Fatal("update case", zap.String("case_id", c.ID), zap.Error(err))
		}
	}

	logger.Info("seed complete", zap.Int("cases", store.Len()))
}

// progress moves a freshly created case a random distance down the workflow.
func progress(ctx context.Context, svc *surgical.Service, c surgical.Case, requested time.Time) error {
	c.Consent = randomDocument()
	c.Budget = randomDocument()
	c.SurgeonReport = randomDocument()
	c.NutritionistReport = randomDocument()
	c.PsychologistReport = randomDocument()

	if !surgical.FolderComplete(c) || gofakeit.Number(0, 3) == 0 {
		_, err := svc.UpdateCase(ctx, c)
		return err
	}

	// Submitted some days after the request, which leaves a share of the
	// seeded cases past the review threshold.
	submitted := requested.Add(time.Duration(gofakeit.Number(1, 10)) * 24 * time.Hour)
	if submitted.After(time.Now()) {
		submitted = time.Now()
	}
	c.SubmittedDate = &submitted
	c.FollowUpStatus = surgical.FollowUpSubmittedInReview

	if gofakeit.Number(0, 2) == 0 {
		c.FollowUpStatus = laterStages[gofakeit.Number(0, len(laterStages)-1)]
		authorized := submitted.Add(time.Duration(gofakeit.Number(5, 20)) * 24 * time.Hour)
		c.AuthorizedDate = &authorized
		if c.FollowUpStatus == surgical.FollowUpOperated {
			operated := authorized.Add(14 * 24 * time.Hour)
			c.OperatedDate = &operated
		}
		c.Notes = fmt.Sprintf("Seguimiento con %s.", c.InsuranceProvider)
	}

	_, err := svc.UpdateCase(ctx, c)
	return err
}

func randomDocument() surgical.DocumentStatus {
	return documentStatuses[gofakeit.Number(0, len(documentStatuses)-1)]
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
