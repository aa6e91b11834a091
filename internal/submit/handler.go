// Package submit evaluates miner solutions: it deduplicates them, has them
// validated, answers the miner and publishes the resulting share records.
package submit

import (
	"time"

	"github.com/bardlex/beampool/internal/job"
	"github.com/bardlex/beampool/internal/limiter"
	"github.com/bardlex/beampool/internal/share"
	"github.com/bardlex/beampool/internal/stratum"
	"github.com/bardlex/beampool/pkg/log"
)

// Session is the connection state a submission is evaluated against
type Session interface {
	IsAuthenticated() bool
	Worker() stratum.Worker
	SessionID() uint32
	ClientIP() string
	FindLocalJob(jobID uint32) (*stratum.LocalJob, bool)
	AddLocalShare(lj *stratum.LocalJob, ls stratum.LocalShare) bool
	DiffContext(lj *stratum.LocalJob) (stratum.DiffContext, bool)
	ResponseError(reqID any, status share.Status)
	ResponseFalse(reqID any, status share.Status)
	// HandleShare answers the miner and reports whether the share is
	// forwarded downstream
	HandleShare(reqID any, status share.Status, diff uint64) bool
}

var _ Session = (*stratum.Session)(nil)

// Jobs resolves chain-wide jobs
type Jobs interface {
	Lookup(chainID, jobID uint32) (*job.JobEx, bool)
}

// Validator classifies a solution. It receives a copy of the share and must
// not keep state between calls.
type Validator interface {
	CheckShare(chainID uint32, s share.Share, j *job.JobEx, output string, jobDiffs []uint64, workerFullName string) share.Status
}

// Publisher forwards records downstream without blocking
type Publisher interface {
	SendShare(chainID uint32, data []byte)
	SendSolvedShare(chainID uint32, s *share.Share, input, output string, worker stratum.Worker)
}

// Recorder receives the outcome of every evaluated share
type Recorder interface {
	RecordShare(chainID uint32, worker string, status share.Status, diff uint64, published bool)
}

// Config holds the invalid share flood limits
type Config struct {
	// InvalidShareWindow is the trailing window in seconds
	InvalidShareWindow int
	// InvalidShareLimit suppresses publication once reached within the window
	InvalidShareLimit int64
}

// Request is the decoded "solution" request. Fields keep their JSON types.
type Request struct {
	ReqID  any
	JobID  any
	Nonce  any
	Output any
}

// Handler evaluates submissions. It is safe for concurrent use by many
// sessions; each session must submit sequentially.
type Handler struct {
	config    Config
	jobs      Jobs
	validator Validator
	publisher Publisher
	limiters  *limiter.Registry
	recorder  Recorder
	logger    *log.Logger
	now       func() time.Time
}

// Option configures a Handler
type Option func(*Handler)

// WithRecorder reports every outcome to r
func WithRecorder(r Recorder) Option {
	return func(h *Handler) { h.recorder = r }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a submission handler
func NewHandler(config Config, jobs Jobs, validator Validator, publisher Publisher, limiters *limiter.Registry, logger *log.Logger, opts ...Option) *Handler {
	h := &Handler{
		config:    config,
		jobs:      jobs,
		validator: validator,
		publisher: publisher,
		limiters:  limiters,
		logger:    logger.WithComponent("submit"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Submit evaluates one solution and answers the miner through sess
func (h *Handler) Submit(sess Session, req Request) {
	if !sess.IsAuthenticated() {
		sess.ResponseError(req.ReqID, share.StatusUnauthorized)
		return
	}

	jobID, okJob := stratum.ParseHexUint32(req.JobID)
	nonce, okNonce := stratum.ParseHexUint64(req.Nonce)
	output, okOutput := stratum.ParseHexBlob(req.Output)
	if !okJob || !okNonce || !okOutput {
		sess.ResponseError(req.ReqID, share.StatusIllegalParams)
		return
	}

	localJob, ok := sess.FindLocalJob(jobID)
	if !ok {
		sess.ResponseFalse(req.ReqID, share.StatusJobNotFound)
		return
	}

	jobEx, ok := h.jobs.Lookup(localJob.ChainID, localJob.JobID)
	if !ok {
		sess.ResponseFalse(req.ReqID, share.StatusJobNotFound)
		return
	}
	payload := jobEx.Payload

	worker := sess.Worker()

	diffCtx, ok := sess.DiffContext(localJob)
	if !ok {
		h.logger.Error("missing diff context for tracked job",
			"worker", worker.FullName,
			"chain_id", localJob.ChainID,
			"job_id", localJob.JobID,
		)
		return
	}

	now := h.now()
	s := &share.Share{
		Version:      share.Version,
		InputPrefix:  payload.InputPrefix(),
		WorkerHashID: worker.WorkerHashID,
		UserID:       worker.UserID,
		ShareDiff:    diffCtx.CurrentJobDiff,
		BlockBits:    payload.BlockBits(),
		Timestamp:    now.Unix(),
		Status:       share.StatusRejectNoReason,
		Height:       payload.Height(),
		Nonce:        nonce,
		SessionID:    sess.SessionID(),
		IP:           sess.ClientIP(),
	}

	window := h.limiters.Window(worker.WorkerHashID, now)

	if !sess.AddLocalShare(localJob, stratum.LocalShare{Nonce: nonce}) {
		sess.ResponseFalse(req.ReqID, share.StatusDuplicateShare)
		window.Insert(now.Unix(), 1)
		return
	}

	s.Status = h.validator.CheckShare(localJob.ChainID, *s, jobEx, output, diffCtx.JobDiffs, worker.FullName)

	h.logger.LogShare(localJob.JobID, nonce, s.ShareDiff, s.Status.String(), share.IsAccepted(s.Status))

	if sess.HandleShare(req.ReqID, s.Status, s.ShareDiff) {
		if share.IsSolved(s.Status) {
			h.logger.LogSolvedShare(localJob.JobID, s.Height, worker.FullName, s.ShareDiff)
			h.publisher.SendSolvedShare(localJob.ChainID, s, payload.WorkInput(), output, worker)
		}
	} else {
		window.Insert(now.Unix(), 1)
		invalid := window.Sum(now.Unix(), h.config.InvalidShareWindow)
		if invalid >= h.config.InvalidShareLimit {
			h.logger.LogInvalidShareSpam(worker.UserID, worker.UserName, sess.ClientIP(), s.ShareDiff, invalid, s.Status.String())
			h.record(localJob.ChainID, worker.FullName, s, false)
			return
		}
	}

	data, err := s.MarshalWithVersion()
	if err != nil {
		h.logger.WithError(err).Error("failed to serialize share", "worker", worker.FullName, "job_id", localJob.JobID)
		h.record(localJob.ChainID, worker.FullName, s, false)
		return
	}

	h.publisher.SendShare(localJob.ChainID, data)
	h.record(localJob.ChainID, worker.FullName, s, true)
}

func (h *Handler) record(chainID uint32, worker string, s *share.Share, published bool) {
	if h.recorder != nil {
		h.recorder.RecordShare(chainID, worker, s.Status, s.ShareDiff, published)
	}
}
