package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"dayplan/backend/internal/config"
	"dayplan/backend/internal/llm"
	"dayplan/backend/internal/scheduling"
	"dayplan/backend/internal/store"
	"dayplan/backend/internal/store/memory"
	"dayplan/backend/internal/store/postgres"
	"dayplan/backend/internal/store/rediscache"
	"dayplan/backend/internal/timezone"
)

type calendarStore struct {
	repo   store.CalendarRepository
	health func(ctx context.Context) error
	close  func()
}

// openStore picks the calendar backend from cfg: Postgres when a database
// URL is set, memory otherwise, optionally fronted by Redis.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (calendarStore, error) {
	var (
		repo    store.CalendarRepository
		health  func(ctx context.Context) error
		closers []func()
	)

	if cfg.DatabaseURL == "" {
		log.Warn("no database configured; calendars are kept in memory")
		repo = memory.New()
	} else {
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			return calendarStore{}, err
		}
		closers = append(closers, func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		})
		if cfg.MigrateOnStart {
			if err := postgres.Migrate(ctx, db); err != nil {
				log.Error("database migration failed", slog.Any("err", err))
				runAll(closers)
				return calendarStore{}, err
			}
		}
		pg := postgres.NewCalendarRepo(db)
		repo = pg
		health = pg.Ping
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			runAll(closers)
			return calendarStore{}, fmt.Errorf("redis url: %w", err)
		}
		rc := redis.NewClient(opts)
		if err := rc.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable; reads fall through to the store", slog.Any("err", err))
		}
		closers = append(closers, func() { _ = rc.Close() })
		repo = rediscache.New(repo, rc, cfg.CacheTTL)
		log.Info("calendar cache enabled", slog.String("redis_addr", opts.Addr), slog.Duration("ttl", cfg.CacheTTL))
	}

	return calendarStore{
		repo:   repo,
		health: health,
		close:  func() { runAll(closers) },
	}, nil
}

func runAll(fns []func()) {
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

func newPlanner(cfg config.Config, log *slog.Logger) *scheduling.Planner {
	client := llm.NewClient(llm.Config{
		Endpoint: cfg.Oracle.Endpoint,
		APIKey:   cfg.Oracle.APIKey,
		Model:    cfg.Oracle.Model,
		Timeout:  cfg.Oracle.Timeout,
	}, log)
	return scheduling.NewPlanner(client, log, scheduling.WithVerbose(cfg.VerboseLogging))
}

func newResolver(cfg config.Config, log *slog.Logger) *timezone.Resolver {
	if cfg.ZoneOracle.Endpoint == "" {
		return timezone.NewResolver(nil, log)
	}
	client := llm.NewClient(llm.Config{
		Endpoint: cfg.ZoneOracle.Endpoint,
		APIKey:   cfg.ZoneOracle.APIKey,
		Model:    cfg.ZoneOracle.Model,
		Timeout:  cfg.ZoneOracle.Timeout,
	}, log)
	return timezone.NewResolver(client, log)
}
