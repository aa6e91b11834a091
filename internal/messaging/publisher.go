package messaging

import (
	"context"
	stderrors "errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bardlex/beampool/internal/share"
	"github.com/bardlex/beampool/internal/stratum"
	"github.com/bardlex/beampool/pkg/circuit"
	"github.com/bardlex/beampool/pkg/errors"
	"github.com/bardlex/beampool/pkg/log"
)

// MessageWriter is the part of kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// PublisherConfig sizes the publisher
type PublisherConfig struct {
	QueueSize int
	// MaxBatch caps the records handed to one WriteMessages call
	MaxBatch     int
	WriteTimeout time.Duration
	Breaker      *circuit.Config
}

type outbound struct {
	topic string
	msg   kafka.Message
}

// Publisher forwards share records to Kafka from a background goroutine.
// Queued records are written in batches, one WriteMessages call per topic.
// Enqueueing never blocks: a full queue or an open circuit drops records
// with a log line. Failed writes are not retried.
type Publisher struct {
	topics    map[uint32]Topics
	writerFor func(topic string) MessageWriter
	config    PublisherConfig
	breaker   *circuit.Breaker
	logger    *log.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan outbound
	wg     sync.WaitGroup

	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewPublisher creates a publisher writing through client
func NewPublisher(client *KafkaClient, topics map[uint32]Topics, config PublisherConfig, logger *log.Logger) *Publisher {
	return NewPublisherWithWriters(func(topic string) MessageWriter {
		return client.GetProducer(topic)
	}, topics, config, logger)
}

// NewPublisherWithWriters creates a publisher obtaining writers from writerFor
func NewPublisherWithWriters(writerFor func(topic string) MessageWriter, topics map[uint32]Topics, config PublisherConfig, logger *log.Logger) *Publisher {
	if config.QueueSize <= 0 {
		config.QueueSize = 1024
	}
	if config.MaxBatch <= 0 {
		config.MaxBatch = 500
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	return &Publisher{
		topics:    topics,
		writerFor: writerFor,
		config:    config,
		breaker:   circuit.New(config.Breaker),
		logger:    logger.WithComponent("publisher"),
		queue:     make(chan outbound, config.QueueSize),
	}
}

// Start runs the write loop until Close
func (p *Publisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()
}

func (p *Publisher) run(ctx context.Context) {
	batch := make([]outbound, 0, p.config.MaxBatch)
	for rec := range p.queue {
		batch = append(batch[:0], rec)
	drain:
		for len(batch) < p.config.MaxBatch {
			select {
			case rec, ok := <-p.queue:
				if !ok {
					break drain
				}
				batch = append(batch, rec)
			default:
				break drain
			}
		}
		p.flush(ctx, batch)
	}
}

// flush writes batch grouped by topic, keeping queue order within a topic
func (p *Publisher) flush(ctx context.Context, batch []outbound) {
	var topics []string
	byTopic := make(map[string][]kafka.Message, 2)
	for _, rec := range batch {
		if _, seen := byTopic[rec.topic]; !seen {
			topics = append(topics, rec.topic)
		}
		byTopic[rec.topic] = append(byTopic[rec.topic], rec.msg)
	}
	for _, topic := range topics {
		p.write(ctx, topic, byTopic[topic])
	}
}
// Close stops accepting records and waits for queued ones to be written
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	cb := p.breaker.GetStats()
	p.logger.Info("publisher stopped",
		"published", p.published.Load(),
		"dropped", p.dropped.Load(),
		"failed", p.failed.Load(),
		"circuit", cb.State.String(),
		"circuit_rejected", cb.Rejected,
	)
}

func (p *Publisher) write(ctx context.Context, topic string, msgs []kafka.Message) {
	n := int64(len(msgs))
	err := p.breaker.Execute(func() error {
		writeCtx, cancel := context.WithTimeout(ctx, p.config.WriteTimeout)
		defer cancel()
		return p.writerFor(topic).WriteMessages(writeCtx, msgs...)
	})

	var writeErrs kafka.WriteErrors
	switch {
	case err == nil:
		p.published.Add(n)
	case stderrors.Is(err, circuit.ErrOpen):
		p.dropped.Add(n)
		p.logger.Warn("circuit open, dropping records", "topic", topic, "records", n)
	case stderrors.As(err, &writeErrs):
		failed := int64(writeErrs.Count())
		p.failed.Add(failed)
		p.published.Add(n - failed)
		p.logger.WithError(errors.Wrap(err, errors.ErrorTypeKafka, "publish", "failed to write records")).
			Error("dropping records", "topic", topic, "records", failed)
	default:
		p.failed.Add(n)
		p.logger.WithError(errors.Wrap(err, errors.ErrorTypeKafka, "publish", "failed to write records")).
			Error("dropping records", "topic", topic, "records", n, "circuit", p.breaker.GetState().String())
	}
}

func (p *Publisher) enqueue(topic string, chainID uint32, value []byte) {
	rec := outbound{
		topic: topic,
		msg: kafka.Message{
			Key:   []byte(strconv.FormatUint(uint64(chainID), 10)),
			Value: value,
			Time:  time.Now(),
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return
	}

	select {
	case p.queue <- rec:
	default:
		p.dropped.Add(1)
		p.logger.Warn("publish queue full, dropping record", "topic", topic, "queue_size", p.config.QueueSize)
	}
}

func (p *Publisher) chainTopics(chainID uint32) (Topics, bool) {
	t, ok := p.topics[chainID]
	if !ok {
		p.dropped.Add(1)
		p.logger.Error("no topics configured for chain", "chain_id", chainID)
	}
	return t, ok
}

// SendShare queues a serialized share record for the chain's share topic
func (p *Publisher) SendShare(chainID uint32, data []byte) {
	if t, ok := p.chainTopics(chainID); ok {
		p.enqueue(t.Shares, chainID, data)
	}
}

// SendSolvedShare queues a solved share for the chain's solved share topic
func (p *Publisher) SendSolvedShare(chainID uint32, s *share.Share, input, output string, worker stratum.Worker) {
	t, ok := p.chainTopics(chainID)
	if !ok {
		return
	}

	data, err := fastJSON.Marshal(&SolvedShareMessage{
		ChainID:      chainID,
		Input:        input,
		Output:       output,
		Nonce:        s.Nonce,
		Height:       s.Height,
		BlockBits:    s.BlockBits,
		ShareDiff:    s.ShareDiff,
		Status:       int32(s.Status),
		UserID:       worker.UserID,
		WorkerHashID: worker.WorkerHashID,
		WorkerName:   worker.FullName,
		IP:           s.IP,
		SessionID:    s.SessionID,
		Timestamp:    s.Timestamp,
	})
	if err != nil {
		p.logger.WithError(err).Error("failed to encode solved share", "height", s.Height, "worker", worker.FullName)
		return
	}
	p.enqueue(t.SolvedShares, chainID, data)
}

// Stats returns publish counters
func (p *Publisher) Stats() (published, dropped, failed int64) {
	return p.published.Load(), p.dropped.Load(), p.failed.Load()
}
