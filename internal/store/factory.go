package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/metrics"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/store/memory"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/store/mongo"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/store/postgres"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/store/redis"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/store/sqlite"
)

// DefaultPath is the SQLite file used when no store URL is configured.
const DefaultPath = "watermark.db"

// Options tunes the backends that take pool settings.
type Options struct {
	RedisKey             string
	PGMaxOpenConns       int
	PGMaxIdleConns       int
	PGConnMaxLifetime    time.Duration
	PGStatementTimeoutMS int
}

// Open selects a backend from url:
//
//   - "" opens DefaultPath with SQLite
//   - memory:// keeps watermarks in process
//   - redis:// or rediss:// uses a Redis hash
//   - mongodb:// or mongodb+srv:// uses a MongoDB collection
//   - postgres:// or postgresql:// uses PostgreSQL, migrating on open
//   - a path ending in .db, or with no scheme, is a SQLite file
//
// The returned store records operation metrics under the backend's name.
func Open(ctx context.Context, url string, opts Options, logger *slog.Logger) (WatermarkStore, error) {
	backend, s, err := open(ctx, url, opts, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("watermark store opened", "backend", backend)
	return Instrument(s, backend), nil
}

func open(ctx context.Context, url string, opts Options, logger *slog.Logger) (string, WatermarkStore, error) {
	switch {
	case url == "":
		s, err := sqlite.New(ctx, DefaultPath)
		return "sqlite", s, err

	case url == "memory://" || url == "memory":
		return "memory", memory.New(), nil

	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		s, err := redis.New(ctx, url, opts.RedisKey)
		return "redis", s, err

	case strings.HasPrefix(url, "mongodb://"), strings.HasPrefix(url, "mongodb+srv://"):
		s, err := mongo.New(ctx, url)
		return "mongo", s, err

	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		db, err := postgres.New(ctx, postgres.Config{
			URL:                url,
			MaxOpenConns:       opts.PGMaxOpenConns,
			MaxIdleConns:       opts.PGMaxIdleConns,
			ConnMaxLifetime:    opts.PGConnMaxLifetime,
			StatementTimeoutMS: opts.PGStatementTimeoutMS,
		}, logger)
		if err != nil {
			return "postgres", nil, err
		}
		if err := db.RunMigrations(ctx, postgres.Migrations()); err != nil {
			db.Close()
			return "postgres", nil, fmt.Errorf("migrate: %w", err)
		}
		return "postgres", postgres.NewWatermarkRepo(db), nil

	case strings.HasSuffix(url, ".db"), !strings.Contains(url, "://"):
		s, err := sqlite.New(ctx, strings.TrimPrefix(url, "sqlite:"))
		return "sqlite", s, err
	}
	return "", nil, fmt.Errorf("unsupported watermark store url %q", redact(url))
}

// redact drops credentials from url before it reaches logs or errors.
func redact(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}

type instrumented struct {
	next    WatermarkStore
	backend string
}

// Instrument wraps s so every call is counted in WatermarkStoreOps.
func Instrument(s WatermarkStore, backend string) WatermarkStore {
	return &instrumented{next: s, backend: backend}
}

func (i *instrumented) Get(ctx context.Context, name string) (model.Round, error) {
	r, err := i.next.Get(ctx, name)
	metrics.WatermarkStoreOps.WithLabelValues(i.backend, "get", metrics.StoreStatus(err)).Inc()
	return r, err
}

func (i *instrumented) Set(ctx context.Context, name string, round model.Round) error {
	err := i.next.Set(ctx, name, round)
	metrics.WatermarkStoreOps.WithLabelValues(i.backend, "set", metrics.StoreStatus(err)).Inc()
	return err
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
