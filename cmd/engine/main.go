// Command engine runs the achievement and streak rules engine: the admin
// HTTP API, the activity hooks, the unlock notifier and the periodic
// achievement sweep.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/captus-hub/captus-engine/config"
	"github.com/captus-hub/captus-engine/internal/application/command"
	"github.com/captus-hub/captus-engine/internal/application/eventhandler"
	"github.com/captus-hub/captus-engine/internal/application/query"
	"github.com/captus-hub/captus-engine/internal/domain/achievement"
	"github.com/captus-hub/captus-engine/internal/infrastructure/cache"
	"github.com/captus-hub/captus-engine/internal/infrastructure/messaging"
	"github.com/captus-hub/captus-engine/internal/infrastructure/persistence/postgres"
	"github.com/captus-hub/captus-engine/internal/infrastructure/persistence/redis"
	"github.com/captus-hub/captus-engine/internal/infrastructure/scheduler"
	"github.com/captus-hub/captus-engine/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/captus-hub/captus-engine/internal/interface/http"
	"github.com/captus-hub/captus-engine/pkg/circuitbreaker"
	"github.com/captus-hub/captus-engine/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration and logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:  os.Stdout,
		Level:   logger.ParseLevel(cfg.Observability.LogLevel),
		Format:  logger.Format(cfg.Observability.LogFormat),
		Service: cfg.App.Name,
	})
	slog.SetDefault(log)

	log.Info("starting engine",
		slog.String("env", string(cfg.App.Environment)),
		slog.String("version", cfg.App.Version),
		slog.String("timezone", cfg.App.Timezone),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Storage
	// ─────────────────────────────────────────────────────────────────────────
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	pgCfg.MinConns = int32(cfg.Database.MaxIdleConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	db, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	migrator := postgres.NewMigrator(db)
	if cfg.Database.RunMigrations {
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	} else if pending, err := migrator.Pending(ctx); err != nil {
		log.Warn("failed to read migration state", logger.Err(err))
	} else if len(pending) > 0 {
		log.Warn("database schema is behind, migrations are disabled",
			logger.Count("pending", len(pending)),
			slog.Int("next_version", pending[0].Version))
	}

	var redisCache *redis.Cache
	if !cfg.Redis.Disabled {
		rc := redis.DefaultConfig()
		rc.Host = cfg.Redis.Host
		rc.Port = cfg.Redis.Port
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		rc.PoolSize = cfg.Redis.PoolSize
		rc.MinIdleConns = cfg.Redis.MinIdleConns
		rc.DialTimeout = cfg.Redis.DialTimeout
		rc.ReadTimeout = cfg.Redis.ReadTimeout
		rc.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(rc)
		if err != nil {
			// The engine is correct without Redis; only caching and
			// cross-process notification are lost.
			log.Warn("redis unavailable, continuing without it", logger.Err(err))
			redisCache = nil
		} else {
			defer redisCache.Close()
			redisCache.WithBreaker(redis.NewBreaker(func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			}))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Domain wiring
	// ─────────────────────────────────────────────────────────────────────────
	catalog, err := loadCatalog(cfg.Engine.CatalogFile)
	if err != nil {
		return err
	}
	log.Info("achievement catalog loaded", logger.Count("achievements", catalog.Len()))

	activityRepo := postgres.NewActivityRepository(db)
	progressRepo := postgres.NewProgressRepository(db)
	streakRepo := postgres.NewStreakRepository(db)
	priorities := cache.NewPriorityLabelCache(postgres.NewPriorityRepository(db),
		cfg.Engine.PriorityCacheSize, cfg.Engine.PriorityCacheTTL)

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		Logger:         log,
		EnableMetrics:  true,
	})

	validator := command.NewAchievementValidator(command.AchievementValidatorDeps{
		Catalog:    catalog,
		Source:     activityRepo,
		Progress:   progressRepo,
		Streaks:    streakRepo,
		Priorities: priorities,
		Sink:       messaging.NewBusUnlockSink(bus),
		Logger:     log,
	}, command.AchievementValidatorConfig{
		HighPriorityLabel: cfg.Engine.HighPriorityLabel,
		Location:          cfg.App.Location,
	})

	tracker := command.NewStreakTracker(streakRepo, activityRepo, bus, log, command.StreakTrackerConfig{
		DefaultDailyGoal: cfg.Engine.DefaultDailyGoal,
		Location:         cfg.App.Location,
	})

	var (
		guard      eventhandler.UnlockGuard
		publisher  eventhandler.UnlockPublisher
		invalidate eventhandler.StatisticsInvalidator
		dashboards query.DashboardCache
	)
	if redisCache != nil {
		statsCache := redis.NewStatisticsCache(redisCache, cfg.Redis.StatisticsTTL)
		guard = redis.NewUnlockGuard(redisCache, cfg.Redis.UnlockDedupeTTL)
		publisher = redis.NewUnlockPublisher(redisCache)
		invalidate = statsCache
		dashboards = statsCache
	}

	hooks := eventhandler.NewActivityHooks(validator, tracker, invalidate, cfg.Features, log,
		eventhandler.ActivityHooksConfig{Timeout: cfg.Engine.HookTimeout})

	notifier := eventhandler.NewUnlockNotifier(guard, publisher, invalidate, cfg.Features, log,
		eventhandler.UnlockNotifierConfig{})
	if err := notifier.Register(bus); err != nil {
		return fmt.Errorf("failed to register unlock notifier: %w", err)
	}

	statistics := query.NewGetStatisticsHandler(activityRepo, progressRepo, tracker, catalog,
		dashboards, cfg.Features, log, query.GetStatisticsConfig{Location: cfg.App.Location})

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Scheduler
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:            log,
		Timezone:          cfg.App.Location,
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		EnableMetrics:     true,
	})
	if cfg.Scheduler.Enabled {
		sweep := jobs.NewSweepAchievementsJob(activityRepo, validator, cfg.Features, log,
			jobs.SweepAchievementsConfig{
				Concurrency: cfg.Scheduler.SweepConcurrency,
				PageSize:    cfg.Scheduler.SweepPageSize,
				Timeout:     cfg.Scheduler.SweepTimeout,
			})
		if err := sched.Register(sweep, scheduler.NewIntervalSchedule(cfg.Scheduler.SweepInterval)); err != nil {
			return fmt.Errorf("failed to register sweep: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP
	// ─────────────────────────────────────────────────────────────────────────
	var server *httpapi.Server
	serverErr := make(chan error, 1)
	if cfg.HTTP.Enabled {
		health := httpapi.NewHealthChecker(cfg.App.Version, 5*time.Second)
		health.Add("postgres", db)
		if redisCache != nil {
			health.Add("redis", redisCache)
		}

		httpCfg := httpapi.DefaultConfig()
		httpCfg.Host = cfg.HTTP.Host
		httpCfg.Port = cfg.HTTP.Port
		httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
		httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
		httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
		httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
		httpCfg.Version = cfg.App.Version

		server = httpapi.NewServer(httpCfg, httpapi.Dependencies{
			Statistics: statistics,
			Activity:   hooks,
			Recompute:  validator,
			DailyGoal:  tracker,
			Health:     health,
			Logger:     log,
		})
		go func() { serverErr <- server.Start() }()
	}

	log.Info("engine started")

	// ─────────────────────────────────────────────────────────────────────────
	// 6. Shutdown
	// ─────────────────────────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-serverErr:
		if runErr != nil {
			log.Error("http server stopped", logger.Err(runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	var errs []error
	if server != nil {
		errs = append(errs, server.Shutdown(shutdownCtx))
	}
	if sched.IsRunning() {
		errs = append(errs, sched.Stop())
	}
	errs = append(errs, hooks.Wait(shutdownCtx), bus.Close())

	if err := errors.Join(append(errs, runErr)...); err != nil {
		return err
	}
	log.Info("engine stopped")
	return nil
}

func loadCatalog(path string) (*achievement.Catalog, error) {
	if path == "" {
		return achievement.DefaultCatalog()
	}
	c, err := achievement.LoadCatalogFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}
	return c, nil
}
