// Package main implements stratumd, the Beam stratum server. It accepts
// miner connections, hands out jobs from the job topic and publishes every
// evaluated share to the share bus.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bardlex/beampool/internal/config"
	"github.com/bardlex/beampool/internal/database"
	"github.com/bardlex/beampool/internal/job"
	"github.com/bardlex/beampool/internal/limiter"
	"github.com/bardlex/beampool/internal/messaging"
	"github.com/bardlex/beampool/internal/validation"
	"github.com/bardlex/beampool/pkg/circuit"
	"github.com/bardlex/beampool/pkg/log"
	"github.com/bardlex/beampool/pkg/retry"
)

const (
	shutdownTimeout     = 30 * time.Second
	maintenanceInterval = 30 * time.Second
	limiterSweepPeriod  = time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting stratumd",
		"version", cfg.Version,
		"chain_id", cfg.ChainID,
		"chain_name", cfg.ChainName,
		"listen_addr", cfg.ListenAddr,
		"listen_port", cfg.ListenPort,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("stratumd failed")
		os.Exit(1)
	}
	logger.Info("stratumd stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	kafkaClient := messaging.NewKafkaClient(cfg.KafkaBrokers, logger)
	defer func() {
		if err := kafkaClient.Close(); err != nil {
			logger.WithError(err).Error("failed to close Kafka client")
		}
	}()
	if err := kafkaClient.Ping(ctx, retry.StartupConfig()); err != nil {
		return err
	}

	dbManager, err := database.NewManager(ctx, database.ConfigFrom(cfg), retry.StartupConfig(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			logger.WithError(err).Error("failed to close databases")
		}
	}()

	topics := map[uint32]messaging.Topics{
		cfg.ChainID: {
			Shares:       cfg.KafkaShareTopic,
			SolvedShares: cfg.KafkaSolvedShareTopic,
			Jobs:         cfg.KafkaJobTopic,
		},
	}
	publisher := messaging.NewPublisher(kafkaClient, topics, messaging.PublisherConfig{
		QueueSize:    cfg.PublishQueueSize,
		MaxBatch:     cfg.PublishBatchSize,
		WriteTimeout: cfg.WriteTimeout,
		Breaker:      circuit.DefaultConfig(),
	}, logger)
	// runs on its own context so queued records drain after shutdown starts
	publisher.Start(context.Background())
	defer publisher.Close()

	server := NewStratumServer(cfg, logger, Dependencies{
		Publisher: publisher,
		Validator: validation.NewValidator(cfg.PowLimitBits, logger),
		Users:     dbManager.Users,
		Snapshots: dbManager.Jobs,
		Recorder:  dbManager.Influx,
		Telemetry: dbManager.Influx,
		Stats:     publisher.Stats,
		Health:    dbManager.Health,
	})

	if n, err := server.RestoreJobs(ctx); err != nil {
		logger.WithError(err).Warn("failed to restore job snapshots")
	} else {
		logger.Info("restored job snapshots", "jobs", n)
	}

	go server.limiters.Run(ctx, limiterSweepPeriod, cfg.WorkerIdleTimeout, logger.WithComponent("limiter"))
	go server.Maintain(ctx, maintenanceInterval)

	feed := messaging.NewJobFeed(kafkaClient.GetConsumer(cfg.KafkaJobTopic, jobGroupID(cfg.KafkaGroupID)), server, logger)
	go func() {
		if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("job feed stopped")
		}
	}()

	addr := net.JoinHostPort(cfg.ListenAddr, fmt.Sprint(cfg.ListenPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	logger.Info("server listening", "address", ln.Addr().String())

	if err := server.Serve(ctx, ln); err != nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// jobGroupID gives every server instance its own consumer group so each one
// receives every job
func jobGroupID(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return base
	}
	return base + "-" + host
}

// newRepository builds the chain's job repository and its registry
func newRepository(cfg *config.Config) (*job.Repository, *job.Registry) {
	repo := job.NewRepository(cfg.ChainID, cfg.MaxJobsPerChain, cfg.MaxJobLifetime)
	registry := job.NewRegistry()
	registry.Register(repo)
	return repo, registry
}

func newLimiters(cfg *config.Config) *limiter.Registry {
	return limiter.NewRegistry(cfg.InvalidShareWindow)
}
