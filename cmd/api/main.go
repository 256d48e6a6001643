package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/openlearnhq/courseware-backend/api/controllers"
	"github.com/openlearnhq/courseware-backend/api/routes"
	"github.com/openlearnhq/courseware-backend/internal/access"
	"github.com/openlearnhq/courseware-backend/internal/courseruns"
	"github.com/openlearnhq/courseware-backend/internal/enrollment"
	"github.com/openlearnhq/courseware-backend/internal/experiments"
	"github.com/openlearnhq/courseware-backend/internal/gating"
	"github.com/openlearnhq/courseware-backend/internal/masquerade"
	"github.com/openlearnhq/courseware-backend/internal/modes"
	"github.com/openlearnhq/courseware-backend/internal/modulestore"
	"github.com/openlearnhq/courseware-backend/internal/partitions"
	"github.com/openlearnhq/courseware-backend/internal/roles"
	"github.com/openlearnhq/courseware-backend/internal/schedules"
	"github.com/openlearnhq/courseware-backend/internal/users"
	"github.com/openlearnhq/courseware-backend/pkg/config"
	"github.com/openlearnhq/courseware-backend/pkg/db"
	"github.com/openlearnhq/courseware-backend/pkg/events"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
	"github.com/openlearnhq/courseware-backend/pkg/metrics"
	"github.com/openlearnhq/courseware-backend/pkg/migrate"
	"github.com/openlearnhq/courseware-backend/pkg/outbox"
	"github.com/openlearnhq/courseware-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := prometheus.NewRegistry()
	bus := events.NewBus(logg)
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	userRepo := users.NewRepository(dbClient.DB())
	courseRepo := courseruns.NewRepository(dbClient.DB())
	rerunRepo := courseruns.NewRerunRepository(dbClient.DB())
	blockRepo := modulestore.NewRepository(dbClient.DB())
	modeRepo := modes.NewRepository(dbClient.DB())
	enrollmentRepo := enrollment.NewRepository(dbClient.DB())
	scheduleRepo := schedules.NewRepository(dbClient.DB())
	gatingRepo := gating.NewRepository(dbClient.DB())
	experimentRepo := experiments.NewRepository(dbClient.DB())
	partitionRepo := partitions.NewRepository(dbClient.DB())
	roleRepo := roles.NewRepository(dbClient.DB())

	userSvc, err := users.NewService(users.ServiceParams{
		Repo:     userRepo,
		Logger:   logg,
		JWT:      cfg.JWT,
		Password: cfg.Password,
	})
	if err != nil {
		fatal(logg, "failed to create user service", err)
	}

	modeSvc, err := modes.NewService(modes.ServiceParams{Repo: modeRepo})
	if err != nil {
		fatal(logg, "failed to create mode service", err)
	}

	blockSvc, err := modulestore.NewService(modulestore.ServiceParams{
		DB:   dbClient,
		Repo: blockRepo,
		Bus:  bus,
	})
	if err != nil {
		fatal(logg, "failed to create block store service", err)
	}

	experimentSvc, err := experiments.NewService(experiments.ServiceParams{
		Repo:   experimentRepo,
		Config: cfg.Experiments,
	})
	if err != nil {
		fatal(logg, "failed to create experiment service", err)
	}

	gatingSvc, err := gating.NewService(gating.ServiceParams{
		Repo:        gatingRepo,
		Cache:       redisClient,
		Logger:      logg,
		Flags:       cfg.FeatureFlags,
		Experiments: cfg.Experiments,
	})
	if err != nil {
		fatal(logg, "failed to create gating service", err)
	}

	scheduleSvc, err := schedules.NewService(schedules.ServiceParams{
		DB:          dbClient,
		Repo:        scheduleRepo,
		Enrollments: enrollmentRepo,
		Courses:     courseRepo,
		Modes:       modeSvc,
		Gating:      gatingSvc,
		Experiments: experimentSvc,
		Outbox:      outboxSvc,
		Logger:      logg,
		Durations:   cfg.Durations,
		SiteName:    cfg.App.SiteName,
	})
	if err != nil {
		fatal(logg, "failed to create schedule service", err)
	}
	schedules.Subscribe(bus, scheduleSvc)

	partitionSvc, err := partitions.NewService(partitions.ServiceParams{
		Repo:        partitionRepo,
		Enrollments: enrollmentRepo,
		Gating:      gatingSvc,
		Experiments: experimentSvc,
		SiteName:    cfg.App.SiteName,
	})
	if err != nil {
		fatal(logg, "failed to create partition service", err)
	}

	enrollmentSvc, err := enrollment.NewService(enrollment.ServiceParams{
		DB:        dbClient,
		Repo:      enrollmentRepo,
		Courses:   courseRepo,
		Modes:     modeSvc,
		Schedules: scheduleSvc,
		Outbox:    outboxSvc,
		Bus:       bus,
		Logger:    logg,
		Metrics:   metrics.NewEnrollmentMetrics(registry),
	})
	if err != nil {
		fatal(logg, "failed to create enrollment service", err)
	}

	courseSvc, err := courseruns.NewService(courseruns.ServiceParams{
		DB:        dbClient,
		Repo:      courseRepo,
		RerunRepo: rerunRepo,
		Outbox:    outboxSvc,
		Bus:       bus,
		Copier:    blockSvc,
	})
	if err != nil {
		fatal(logg, "failed to create course run service", err)
	}

	roleSvc, err := roles.NewService(roles.ServiceParams{Repo: roleRepo})
	if err != nil {
		fatal(logg, "failed to create role service", err)
	}

	masqueradeSvc, err := masquerade.NewService(masquerade.ServiceParams{
		Store:  redisClient,
		Logger: logg,
		Config: cfg.Masquerade,
	})
	if err != nil {
		fatal(logg, "failed to create masquerade service", err)
	}

	accessSvc, err := access.NewService(access.ServiceParams{
		Blocks:      blockSvc,
		Courses:     courseRepo,
		Enrollments: enrollmentRepo,
		Schedules:   scheduleSvc,
		Partitions:  partitionSvc,
		Roles:       roleSvc,
		Masquerade:  masqueradeSvc,
		Users:       userRepo,
		Logger:      logg,
		Metrics:     metrics.NewAccessMetrics(registry),
	})
	if err != nil {
		fatal(logg, "failed to create access service", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:      cfg,
			Logger:      logg,
			Registry:    registry,
			Readiness:   controllers.ReadinessDeps(dbClient, redisClient),
			RateLimiter: redisClient,

			Users:       userSvc,
			Courses:     courseSvc,
			Blocks:      blockSvc,
			Modes:       modeSvc,
			Enrollments: enrollmentSvc,
			Schedules:   scheduleSvc,
			Gating:      gatingSvc,
			Partitions:  partitionSvc,
			Roles:       roleSvc,
			Masquerade:  masqueradeSvc,
			Access:      accessSvc,
		}),
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-stop:
		logg.Info(logg.WithField(ctx, "signal", sig.String()), "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

func fatal(logg *logger.Logger, msg string, err error) {
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
