package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/openlearnhq/courseware-backend/internal/courseruns"
	"github.com/openlearnhq/courseware-backend/internal/enrollment"
	"github.com/openlearnhq/courseware-backend/internal/experiments"
	"github.com/openlearnhq/courseware-backend/internal/gating"
	"github.com/openlearnhq/courseware-backend/internal/modes"
	"github.com/openlearnhq/courseware-backend/internal/schedules"
	"github.com/openlearnhq/courseware-backend/pkg/config"
	"github.com/openlearnhq/courseware-backend/pkg/db"
	"github.com/openlearnhq/courseware-backend/pkg/instance"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
	"github.com/openlearnhq/courseware-backend/pkg/migrate"
	"github.com/openlearnhq/courseware-backend/pkg/outbox"
	"github.com/openlearnhq/courseware-backend/pkg/pubsub"
	"github.com/openlearnhq/courseware-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	modeSvc, err := modes.NewService(modes.ServiceParams{Repo: modes.NewRepository(dbClient.DB())})
	if err != nil {
		logg.Error(context.Background(), "failed to create mode service", err)
		os.Exit(1)
	}

	experimentSvc, err := experiments.NewService(experiments.ServiceParams{
		Repo:   experiments.NewRepository(dbClient.DB()),
		Config: cfg.Experiments,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create experiment service", err)
		os.Exit(1)
	}

	gatingSvc, err := gating.NewService(gating.ServiceParams{
		Repo:        gating.NewRepository(dbClient.DB()),
		Cache:       redisClient,
		Logger:      logg,
		Flags:       cfg.FeatureFlags,
		Experiments: cfg.Experiments,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create gating service", err)
		os.Exit(1)
	}

	scheduleSvc, err := schedules.NewService(schedules.ServiceParams{
		DB:          dbClient,
		Repo:        schedules.NewRepository(dbClient.DB()),
		Enrollments: enrollment.NewRepository(dbClient.DB()),
		Courses:     courseruns.NewRepository(dbClient.DB()),
		Modes:       modeSvc,
		Gating:      gatingSvc,
		Experiments: experimentSvc,
		Outbox:      outboxSvc,
		Logger:      logg,
		Durations:   cfg.Durations,
		SiteName:    cfg.App.SiteName,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create schedule service", err)
		os.Exit(1)
	}

	var enrollmentSub subscriber
	if sub := pubsubClient.EnrollmentSubscription(); sub != nil {
		enrollmentSub = sub
	}

	service, err := NewService(ServiceParams{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		Redis:       redisClient,
		PubSub:      pubsubClient,
		Courses:     pubsubClient.CourseSubscription(),
		Enrollments: enrollmentSub,
		Schedules:   scheduleSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "worker",
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}
