package messaging

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bardlex/beampool/internal/job"
	"github.com/bardlex/beampool/pkg/log"
)

// MessageReader is the part of kafka.Reader the job feed uses
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// JobHandler receives every decoded job
type JobHandler interface {
	HandleJob(ctx context.Context, j *job.JobEx) error
}

// JobHandlerFunc adapts a function to JobHandler
type JobHandlerFunc func(ctx context.Context, j *job.JobEx) error

// HandleJob calls f
func (f JobHandlerFunc) HandleJob(ctx context.Context, j *job.JobEx) error {
	return f(ctx, j)
}

// JobFeed consumes the job topic
type JobFeed struct {
	reader  MessageReader
	handler JobHandler
	logger  *log.Logger
	now     func() time.Time
	backoff time.Duration
}

// NewJobFeed creates a consumer delivering jobs to handler
func NewJobFeed(reader MessageReader, handler JobHandler, logger *log.Logger) *JobFeed {
	return &JobFeed{
		reader:  reader,
		handler: handler,
		logger:  logger.WithComponent("job_feed"),
		now:     time.Now,
		backoff: time.Second,
	}
}

// Run consumes until ctx is done. Undecodable messages are skipped.
func (f *JobFeed) Run(ctx context.Context) error {
	f.logger.Info("starting job feed")

	for {
		msg, err := f.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				f.logger.Info("job feed stopping")
				return ctx.Err()
			}
			f.logger.WithError(err).Error("failed to read job message")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.backoff):
			}
			continue
		}

		if err := f.handle(ctx, msg); err != nil {
			f.logger.WithError(err).Error("failed to handle job message",
				"topic", msg.Topic,
				"offset", msg.Offset,
			)
		}
	}
}

func (f *JobFeed) handle(ctx context.Context, msg kafka.Message) error {
	jm, err := DecodeJobMessage(msg.Value)
	if err != nil {
		return err
	}
	j, err := jm.ToJobEx(f.now())
	if err != nil {
		return err
	}
	f.logger.LogJobReceived(j.ChainID, j.JobID, j.Payload.Height(), j.CleanJobs)
	return f.handler.HandleJob(ctx, j)
}
