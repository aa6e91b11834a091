// Package influx writes share and connection telemetry to InfluxDB. Writes
// are batched by the client library and never block the share path.
package influx

import (
	"context"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/bardlex/beampool/internal/share"
	"github.com/bardlex/beampool/pkg/errors"
	"github.com/bardlex/beampool/pkg/log"
	"github.com/bardlex/beampool/pkg/retry"
)

// pointWriter is the part of api.WriteAPI the client uses
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Client wraps InfluxDB writes for time-series metrics
type Client struct {
	client influxdb2.Client
	writer pointWriter
	logger *log.Logger
	now    func() time.Time
}

// Config holds InfluxDB connection configuration
type Config struct {
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     uint
	FlushInterval time.Duration
}

// NewClient creates a client with a non-blocking write API. Write errors
// are logged from a background goroutine.
func NewClient(cfg *Config, logger *log.Logger) *Client {
	opts := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		opts.SetBatchSize(cfg.BatchSize)
	}
	if cfg.FlushInterval > 0 {
		opts.SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	logger = logger.WithComponent("influx")

	go func() {
		for err := range writeAPI.Errors() {
			logger.WithError(err).Warn("influx write failed")
		}
	}()

	return &Client{
		client: client,
		writer: writeAPI,
		logger: logger,
		now:    time.Now,
	}
}

func newClientWithWriter(w pointWriter, now func() time.Time) *Client {
	return &Client{writer: w, logger: log.Discard(), now: now}
}

// Ping waits for the server to report healthy
func (c *Client) Ping(ctx context.Context, config *retry.Config) error {
	return retry.Do(ctx, config, func() error {
		return c.Health(ctx)
	})
}

// Health checks InfluxDB connectivity
func (c *Client) Health(ctx context.Context) error {
	health, err := c.client.Health(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "influx_health", "failed to check health")
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return errors.New(errors.ErrorTypeStorage, "influx_health", "health check failed").
			WithContext("status", string(health.Status)).
			WithContext("message", msg)
	}
	return nil
}

// Close flushes and closes the client
func (c *Client) Close() {
	c.writer.Flush()
	if c.client != nil {
		c.client.Close()
	}
}

// WriteShareOutcome records one processed share
func (c *Client) WriteShareOutcome(chainID uint32, worker string, status share.Status, diff uint64, published bool) {
	tags := map[string]string{
		"chain_id":  strconv.FormatUint(uint64(chainID), 10),
		"worker":    worker,
		"status":    status.String(),
		"accepted":  strconv.FormatBool(share.IsAccepted(status)),
		"published": strconv.FormatBool(published),
	}

	fields := map[string]any{
		"diff":  diff,
		"count": 1,
	}

	c.writer.WritePoint(write.NewPoint("shares", tags, fields, c.now()))
}

// RecordShare implements submit.Recorder
func (c *Client) RecordShare(chainID uint32, worker string, status share.Status, diff uint64, published bool) {
	c.WriteShareOutcome(chainID, worker, status, diff, published)
}

// WriteConnectionMetric records the stratum server's connection counts
func (c *Client) WriteConnectionMetric(chainID uint32, activeConnections, trackedWorkers int) {
	tags := map[string]string{
		"chain_id": strconv.FormatUint(uint64(chainID), 10),
	}

	fields := map[string]any{
		"active_connections": activeConnections,
		"tracked_workers":    trackedWorkers,
	}

	c.writer.WritePoint(write.NewPoint("connections", tags, fields, c.now()))
}

// WritePublisherMetric records share bus counters
func (c *Client) WritePublisherMetric(chainID uint32, published, dropped, failed int64) {
	tags := map[string]string{
		"chain_id": strconv.FormatUint(uint64(chainID), 10),
	}

	fields := map[string]any{
		"published": published,
		"dropped":   dropped,
		"failed":    failed,
	}

	c.writer.WritePoint(write.NewPoint("publisher", tags, fields, c.now()))
}
