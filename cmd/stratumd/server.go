package main

import (
	"context"
	stderrors "errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/remeh/sizedwaitgroup"

	"github.com/bardlex/beampool/internal/config"
	"github.com/bardlex/beampool/internal/job"
	"github.com/bardlex/beampool/internal/limiter"
	"github.com/bardlex/beampool/internal/share"
	"github.com/bardlex/beampool/internal/stratum"
	"github.com/bardlex/beampool/internal/submit"
	"github.com/bardlex/beampool/internal/vardiff"
	"github.com/bardlex/beampool/pkg/errors"
	"github.com/bardlex/beampool/pkg/log"
)

const (
	loginTimeout  = 5 * time.Second
	snapshotWrite = 2 * time.Second
	healthTimeout = 2 * time.Second
	outboundQueue = 256
)

// UserResolver maps a miner's user name to its user id
type UserResolver interface {
	ResolveUser(ctx context.Context, name string) (int32, error)
}

// JobSnapshots persists jobs across restarts
type JobSnapshots interface {
	Save(ctx context.Context, j *job.JobEx) error
	LoadAll(ctx context.Context, chainID uint32, now time.Time) ([]*job.JobEx, error)
}

// Telemetry receives periodic server counters
type Telemetry interface {
	WriteConnectionMetric(chainID uint32, activeConnections, trackedWorkers int)
	WritePublisherMetric(chainID uint32, published, dropped, failed int64)
}

// Dependencies are the collaborators of a StratumServer. Snapshots,
// Recorder, Telemetry, Stats and Health are optional.
type Dependencies struct {
	Publisher submit.Publisher
	Validator submit.Validator
	Users     UserResolver
	Snapshots JobSnapshots
	Recorder  submit.Recorder
	Telemetry Telemetry
	Stats     func() (published, dropped, failed int64)
	Health    func(ctx context.Context) error
}

// StratumServer accepts miner connections and routes their requests
type StratumServer struct {
	cfg        *config.Config
	logger     *log.Logger
	deps       Dependencies
	repo       *job.Repository
	registry   *job.Registry
	limiters   *limiter.Registry
	submit     *submit.Handler
	sessionCfg stratum.SessionConfig

	mu       sync.RWMutex
	sessions map[uint32]*stratum.Session
	nextID   atomic.Uint32
	conns    sizedwaitgroup.SizedWaitGroup
	now      func() time.Time
}

// NewStratumServer creates a server for the configured chain
func NewStratumServer(cfg *config.Config, logger *log.Logger, deps Dependencies) *StratumServer {
	repo, registry := newRepository(cfg)
	limiters := newLimiters(cfg)

	var opts []submit.Option
	if deps.Recorder != nil {
		opts = append(opts, submit.WithRecorder(deps.Recorder))
	}

	return &StratumServer{
		cfg:      cfg,
		logger:   logger.WithComponent("server").WithChain(cfg.ChainID, cfg.ChainName),
		deps:     deps,
		repo:     repo,
		registry: registry,
		limiters: limiters,
		submit: submit.NewHandler(submit.Config{
			InvalidShareWindow: cfg.InvalidShareWindow,
			InvalidShareLimit:  cfg.InvalidShareLimit,
		}, registry, deps.Validator, deps.Publisher, limiters, logger, opts...),
		sessionCfg: stratum.SessionConfig{
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			MaxMessageSize: cfg.MaxMessageSize,
			MaxLocalJobs:   cfg.MaxLocalJobs,
			OutboundQueue:  outboundQueue,
			Vardiff: vardiff.Config{
				Default:  cfg.DefaultDifficulty,
				Min:      cfg.MinDifficulty,
				Max:      cfg.MaxDifficulty,
				Target:   cfg.VardiffTarget,
				Retarget: cfg.VardiffRetarget,
			},
		},
		sessions: make(map[uint32]*stratum.Session),
		conns:    sizedwaitgroup.New(cfg.MaxConnections),
		now:      time.Now,
	}
}

// Serve accepts connections until ctx is canceled. At most MaxConnections
// are served at once; further clients wait in the listen backlog.
func (s *StratumServer) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		if err := ln.Close(); err != nil && !stderrors.Is(err, net.ErrClosed) {
			s.logger.WithError(err).Error("failed to close listener")
		}
	}()

	for {
		if err := s.conns.AddWithContext(ctx); err != nil {
			return nil
		}

		conn, err := ln.Accept()
		if err != nil {
			s.conns.Done()
			if ctx.Err() != nil || stderrors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.WithError(errors.Wrap(err, errors.ErrorTypeNetwork, "accept", "failed to accept connection")).
				Error("accept failed")
			continue
		}

		go s.handleConnection(ctx, conn)
	}
}

func (s *StratumServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.conns.Done()

	id := s.nextID.Add(1)
	sess := stratum.NewSession(id, conn, s.logger, s.sessionCfg)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
	}()

	if err := sess.Start(ctx, s); err != nil && !stderrors.Is(err, context.Canceled) {
		sess.Logger().WithError(err).Warn("session ended")
	}
}

// HandleMessage routes a miner request
func (s *StratumServer) HandleMessage(ctx context.Context, sess *stratum.Session, req *stratum.Request) error {
	switch req.Method {
	case stratum.MethodLogin:
		return s.handleLogin(ctx, sess, req)
	case stratum.MethodSolution:
		// Beam puts the job id in the request id
		s.submit.Submit(sess, submit.Request{
			ReqID:  req.ID,
			JobID:  req.ID,
			Nonce:  req.Nonce,
			Output: req.Output,
		})
		return nil
	default:
		sess.Logger().Debug("unknown method", "method", req.Method)
		sess.ResponseError(req.ID, share.StatusIllegalParams)
		return nil
	}
}

func (s *StratumServer) handleLogin(ctx context.Context, sess *stratum.Session, req *stratum.Request) error {
	if sess.IsAuthenticated() {
		sess.ResponseTrue(req.ID)
		return nil
	}

	login, ok := req.APIKey.(string)
	if !ok || strings.TrimSpace(login) == "" {
		sess.ResponseError(req.ID, share.StatusIllegalParams)
		return nil
	}

	userName, workerName := stratum.SplitLogin(login)

	lookupCtx, cancel := context.WithTimeout(ctx, loginTimeout)
	userID, err := s.deps.Users.ResolveUser(lookupCtx, userName)
	cancel()
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeValidation) {
			sess.Logger().Info("login rejected", "user_name", userName, "client_ip", sess.ClientIP())
			sess.ResponseError(req.ID, share.StatusUnauthorized)
			return nil
		}
		sess.ResponseError(req.ID, share.StatusInternalError)
		return err
	}

	sess.Authenticate(stratum.NewWorker(userID, userName, workerName))
	sess.ResponseTrue(req.ID)

	if j := s.repo.Latest(); j != nil {
		return sess.SendJob(j)
	}
	return nil
}

// HandleJob implements messaging.JobHandler
func (s *StratumServer) HandleJob(ctx context.Context, j *job.JobEx) error {
	if j.ChainID != s.repo.ChainID() {
		s.logger.Warn("ignoring job for another chain", "job_chain_id", j.ChainID, "job_id", j.JobID)
		return nil
	}
	if !s.repo.Add(j) {
		s.logger.Debug("ignoring duplicate job", "job_id", j.JobID)
		return nil
	}

	if s.deps.Snapshots != nil {
		saveCtx, cancel := context.WithTimeout(ctx, snapshotWrite)
		if err := s.deps.Snapshots.Save(saveCtx, j); err != nil {
			s.logger.WithError(err).Warn("failed to save job snapshot", "job_id", j.JobID)
		}
		cancel()
	}

	s.broadcast(j)
	return nil
}

func (s *StratumServer) snapshotSessions() []*stratum.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]*stratum.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

func (s *StratumServer) broadcast(j *job.JobEx) {
	sent := 0
	for _, sess := range s.snapshotSessions() {
		if !sess.IsAuthenticated() {
			continue
		}
		if err := sess.SendJob(j); err != nil {
			sess.Logger().WithError(err).Debug("failed to send job", "job_id", j.JobID)
			continue
		}
		sent++
	}

	s.logger.Info("broadcast job", "job_id", j.JobID, "height", j.Payload.Height(), "miners", sent)
}

// RestoreJobs replays saved snapshots into the repository
func (s *StratumServer) RestoreJobs(ctx context.Context) (int, error) {
	if s.deps.Snapshots == nil {
		return 0, nil
	}

	start := time.Now()
	jobs, err := s.deps.Snapshots.LoadAll(ctx, s.repo.ChainID(), s.now())
	if err != nil {
		return 0, err
	}
	s.logger.LogDuration("restore_jobs", time.Since(start).Nanoseconds())

	restored := 0
	for _, j := range jobs {
		if s.repo.Add(j) {
			restored++
		}
	}
	s.repo.Expire(s.now())
	return restored, nil
}

// Maintain expires old jobs and reports counters every interval
func (s *StratumServer) Maintain(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.maintain(now)
		}
	}
}

func (s *StratumServer) maintain(now time.Time) {
	if expired := s.registry.Expire(now); expired > 0 {
		s.logger.Debug("expired jobs", "expired", expired, "remaining", s.repo.Len())
	}
	s.retarget(now)

	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
		if err := s.deps.Health(ctx); err != nil {
			s.logger.WithError(err).Warn("store health check failed")
		}
		cancel()
	}

	if s.deps.Telemetry == nil {
		return
	}
	s.deps.Telemetry.WriteConnectionMetric(s.cfg.ChainID, s.SessionCount(), s.limiters.Len())
	if s.deps.Stats != nil {
		published, dropped, failed := s.deps.Stats()
		s.deps.Telemetry.WritePublisherMetric(s.cfg.ChainID, published, dropped, failed)
	}
}

// retarget lets slow miners drop difficulty without waiting for a block
func (s *StratumServer) retarget(now time.Time) {
	for _, sess := range s.snapshotSessions() {
		if err := sess.Retarget(now); err != nil {
			sess.Logger().WithError(err).Debug("failed to retarget")
		}
	}
}

// SessionCount returns the number of open sessions
func (s *StratumServer) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Shutdown closes every session and waits for their goroutines
func (s *StratumServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server", "sessions", s.SessionCount())

	s.mu.RLock()
	for _, sess := range s.sessions {
		sess.Close()
	}
	s.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all connections closed")
		return nil
	case <-ctx.Done():
		s.logger.Warn("shutdown timeout exceeded")
		return ctx.Err()
	}
}
