// Package database wires the stores the stratum server keeps beside the
// share bus: Redis job snapshots, the PostgreSQL user directory and
// InfluxDB telemetry.
package database

import (
	"context"
	"time"

	"github.com/bardlex/beampool/internal/config"
	"github.com/bardlex/beampool/internal/database/influx"
	"github.com/bardlex/beampool/internal/database/postgres"
	"github.com/bardlex/beampool/internal/database/redis"
	"github.com/bardlex/beampool/pkg/errors"
	"github.com/bardlex/beampool/pkg/log"
	"github.com/bardlex/beampool/pkg/retry"
)

// userCacheTTL bounds how long a disabled user can keep logging in
const userCacheTTL = 5 * time.Minute

// Manager owns the database clients and the stores built on them
type Manager struct {
	Postgres *postgres.Client
	Redis    *redis.Client
	Influx   *influx.Client

	Users *postgres.UserDirectory
	Jobs  *redis.JobStore

	logger *log.Logger
}

// Config holds configuration for all database systems
type Config struct {
	Postgres *postgres.Config
	Redis    *redis.Config
	Influx   *influx.Config
	JobTTL   time.Duration
}

// ConfigFrom derives database settings from the service configuration
func ConfigFrom(cfg *config.Config) *Config {
	return &Config{
		Postgres: &postgres.Config{
			URL:          cfg.PostgresURL,
			MaxOpenConns: 8,
			MaxIdleConns: 2,
			MaxLifetime:  30 * time.Minute,
		},
		Redis: &redis.Config{
			URL:          cfg.RedisURL,
			PoolSize:     16,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Influx: &influx.Config{
			URL:           cfg.InfluxURL,
			Token:         cfg.InfluxToken,
			Org:           cfg.InfluxOrg,
			Bucket:        cfg.InfluxBucket,
			BatchSize:     500,
			FlushInterval: time.Second,
		},
		JobTTL: cfg.MaxJobLifetime,
	}
}

// NewManager connects to every store, retrying while they come up. Clients
// opened before a failure are closed again.
func NewManager(ctx context.Context, cfg *Config, retryConfig *retry.Config, logger *log.Logger) (*Manager, error) {
	logger = logger.WithComponent("database")

	pgClient, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if err := pgClient.Ping(ctx, retryConfig); err != nil {
		_ = pgClient.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "postgres_connection",
			"failed to connect to PostgreSQL database")
	}

	redisClient, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		_ = pgClient.Close()
		return nil, err
	}
	if err := redisClient.Ping(ctx, retryConfig); err != nil {
		_ = pgClient.Close()
		_ = redisClient.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "redis_connection",
			"failed to connect to Redis database")
	}

	influxClient := influx.NewClient(cfg.Influx, logger)
	if err := influxClient.Ping(ctx, retryConfig); err != nil {
		// telemetry is best effort, points are buffered until the server answers
		logger.WithError(err).Warn("InfluxDB not reachable, continuing")
	}

	logger.Info("databases connected")

	return &Manager{
		Postgres: pgClient,
		Redis:    redisClient,
		Influx:   influxClient,
		Users:    postgres.NewUserDirectory(pgClient.DB(), userCacheTTL),
		Jobs:     redis.NewJobStore(redisClient, cfg.JobTTL),
		logger:   logger,
	}, nil
}

// Close closes all database connections
func (m *Manager) Close() error {
	var firstErr error

	if err := m.Postgres.Close(); err != nil {
		firstErr = errors.Wrap(err, errors.ErrorTypeStorage, "postgres_close", "failed to close PostgreSQL")
	}
	if err := m.Redis.Close(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, errors.ErrorTypeStorage, "redis_close", "failed to close Redis")
	}
	m.Influx.Close()

	return firstErr
}

// Health checks the stores the share path depends on
func (m *Manager) Health(ctx context.Context) error {
	if err := m.Postgres.Health(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "health", "PostgreSQL health check failed")
	}
	if err := m.Redis.Health(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "health", "Redis health check failed")
	}
	return nil
}
