// Package redis keeps snapshots of the jobs miners are working on so a
// restarted server can still resolve their shares.
package redis

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bardlex/beampool/internal/job"
	"github.com/bardlex/beampool/internal/messaging"
	"github.com/bardlex/beampool/pkg/errors"
	"github.com/bardlex/beampool/pkg/log"
	"github.com/bardlex/beampool/pkg/retry"
)

// Client wraps the Redis connection pool
type Client struct {
	rdb    *redis.Client
	logger *log.Logger
}

// Config holds Redis connection configuration
type Config struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewClient creates a client from a redis:// URL. No connection is made
// until the first command; use Ping to wait for the server.
func NewClient(cfg *Config, logger *log.Logger) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "redis_config", "invalid redis url")
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	return &Client{
		rdb:    redis.NewClient(opts),
		logger: logger.WithComponent("redis"),
	}, nil
}

// Ping waits for the server to answer
func (c *Client) Ping(ctx context.Context, config *retry.Config) error {
	return retry.Do(ctx, config, func() error {
		if err := c.rdb.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeStorage, "redis_ping", "redis not reachable")
		}
		return nil
	})
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// JobKey returns the key a job snapshot is stored under
func JobKey(chainID, jobID uint32) string {
	return jobKeyPrefix(chainID) + strconv.FormatUint(uint64(jobID), 10)
}

func jobKeyPrefix(chainID uint32) string {
	return "job:" + strconv.FormatUint(uint64(chainID), 10) + ":"
}

// JobStore saves job snapshots with a TTL of the maximum job lifetime
type JobStore struct {
	client *Client
	ttl    time.Duration
}

// NewJobStore creates a job store on client
func NewJobStore(client *Client, ttl time.Duration) *JobStore {
	return &JobStore{client: client, ttl: ttl}
}

// Save stores a snapshot of j
func (s *JobStore) Save(ctx context.Context, j *job.JobEx) error {
	data, err := messaging.JobMessageFrom(j).Encode()
	if err != nil {
		return err
	}

	key := JobKey(j.ChainID, j.JobID)
	if err := s.client.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "save_job", "failed to store job snapshot").
			WithContext("key", key)
	}
	return nil
}

// LoadAll returns the live snapshots of a chain ordered by creation time.
// Snapshots that no longer decode are skipped.
func (s *JobStore) LoadAll(ctx context.Context, chainID uint32, now time.Time) ([]*job.JobEx, error) {
	var keys []string
	iter := s.client.rdb.Scan(ctx, 0, jobKeyPrefix(chainID)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "load_jobs", "failed to scan job snapshots").
			WithContext("chain_id", chainID)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "load_jobs", "failed to read job snapshots").
			WithContext("chain_id", chainID)
	}

	jobs := make([]*job.JobEx, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		j, err := decodeSnapshot([]byte(raw), now)
		if err != nil {
			s.client.logger.WithError(err).Warn("skipping job snapshot", "key", keys[i])
			continue
		}
		jobs = append(jobs, j)
	}

	sortByCreation(jobs)
	return jobs, nil
}

func decodeSnapshot(data []byte, now time.Time) (*job.JobEx, error) {
	msg, err := messaging.DecodeJobMessage(data)
	if err != nil {
		return nil, err
	}
	return msg.ToJobEx(now)
}

// sortByCreation orders jobs oldest first so replaying them into a
// repository marks the same jobs stale as before the restart
func sortByCreation(jobs []*job.JobEx) {
	slices.SortStableFunc(jobs, func(a, b *job.JobEx) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
