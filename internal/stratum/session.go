package stratum

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bardlex/beampool/internal/job"
	"github.com/bardlex/beampool/internal/share"
	"github.com/bardlex/beampool/internal/vardiff"
	"github.com/bardlex/beampool/pkg/errors"
	"github.com/bardlex/beampool/pkg/log"
)

// State is the lifecycle state of a session
type State int32

const (
	StateConnected State = iota
	StateAuthenticated
)

// SessionConfig holds per-connection limits
type SessionConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int
	MaxLocalJobs   int
	OutboundQueue  int
	Vardiff        vardiff.Config
}

// MessageHandler handles decoded requests. Requests are released after
// HandleMessage returns and must not be retained.
type MessageHandler interface {
	HandleMessage(ctx context.Context, session *Session, req *Request) error
}

// Session is one miner connection. Requests of a session are handled in
// order on its read loop; jobs are assigned from the broadcaster goroutine.
type Session struct {
	id       uint32
	conn     net.Conn
	clientIP string
	logger   *log.Logger
	config   SessionConfig
	now      func() time.Time

	state  atomic.Int32
	mu     sync.RWMutex
	worker Worker

	tracker  *LocalJobTracker
	diff     *vardiff.Controller
	lastDiff uint64
	lastJob  *job.JobEx
	lastLJ   *LocalJob

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession creates a new session
func NewSession(id uint32, conn net.Conn, logger *log.Logger, config SessionConfig) *Session {
	if config.OutboundQueue <= 0 {
		config.OutboundQueue = 100
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = 4096
	}

	remote := conn.RemoteAddr().String()
	clientIP, _, err := net.SplitHostPort(remote)
	if err != nil {
		clientIP = remote
	}

	now := time.Now()
	return &Session{
		id:       id,
		conn:     conn,
		clientIP: clientIP,
		logger:   logger.WithFields("session_id", id, "remote_addr", remote),
		config:   config,
		now:      time.Now,
		tracker:  NewLocalJobTracker(config.MaxLocalJobs),
		diff:     vardiff.NewController(config.Vardiff, now),
		outbound: make(chan []byte, config.OutboundQueue),
		done:     make(chan struct{}),
	}
}

// Start serves the session until the connection ends or ctx is canceled
func (s *Session) Start(ctx context.Context, handler MessageHandler) error {
	s.logger.LogConnection("connected", s.conn.RemoteAddr().String())

	go s.writeLoop(ctx)

	return s.readLoop(ctx, handler)
}

func (s *Session) readLoop(ctx context.Context, handler MessageHandler) error {
	defer s.Close()

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, s.config.MaxMessageSize), s.config.MaxMessageSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}

		if s.config.ReadTimeout > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
				return errors.Wrap(err, errors.ErrorTypeNetwork, "set_read_deadline", "failed to set read deadline")
			}
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return errors.Wrap(err, errors.ErrorTypeNetwork, "read", "connection read failed")
			}
			s.logger.Info("client disconnected")
			return nil
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		s.logger.LogStratumMessage("received", string(line))

		req, err := ParseRequest(line)
		if err != nil {
			s.logger.WithError(err).Warn("failed to parse request")
			s.ResponseError(nil, share.StatusIllegalParams)
			continue
		}

		if err := handler.HandleMessage(ctx, s, req); err != nil {
			s.logger.WithError(err).Error("failed to handle message", "method", req.Method)
		}
		ReleaseRequest(req)
	}
}

func (s *Session) writeLoop(ctx context.Context) {
	defer func() {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("failed to close connection", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case data := <-s.outbound:
			if s.config.WriteTimeout > 0 {
				if err := s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
					s.logger.WithError(err).Error("failed to set write deadline")
					return
				}
			}

			if _, err := s.conn.Write(append(data, '\n')); err != nil {
				s.logger.WithError(err).Error("failed to write message")
				s.Close()
				return
			}

			s.logger.LogStratumMessage("sent", string(data))
		}
	}
}

// Send encodes v and queues it without blocking
func (s *Session) Send(v any) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}

	select {
	case s.outbound <- data:
		return nil
	case <-s.done:
		return errors.New(errors.ErrorTypeNetwork, "send", "session closed")
	default:
		return errors.New(errors.ErrorTypeNetwork, "send", "outbound queue full").
			WithContext("session_id", s.id)
	}
}

func (s *Session) send(v any) {
	if err := s.Send(v); err != nil {
		s.logger.WithError(err).Warn("failed to send message")
	}
}

// ResponseTrue answers an accepted share
func (s *Session) ResponseTrue(reqID any) {
	s.send(NewResultResponse(reqID, true, share.StatusAccept))
}

// ResponseFalse answers a rejected share with its status
func (s *Session) ResponseFalse(reqID any, status share.Status) {
	s.send(NewResultResponse(reqID, false, status))
}

// ResponseError answers a request that could not be processed
func (s *Session) ResponseError(reqID any, status share.Status) {
	s.send(NewErrorResponse(reqID, status))
}

// HandleShare answers the miner and feeds accepted shares to the difficulty
// controller. It returns whether the share is admitted downstream.
func (s *Session) HandleShare(reqID any, status share.Status, diff uint64) bool {
	if share.IsAccepted(status) {
		s.diff.AddAcceptedShare()
		s.ResponseTrue(reqID)
		return true
	}
	s.ResponseFalse(reqID, status)
	return false
}

// SendJob assigns j to the session at the difficulty the controller
// proposes and notifies the miner. Jobs assigned earlier keep the
// difficulty they were announced with.
func (s *Session) SendJob(j *job.JobEx) error {
	if !s.IsAuthenticated() {
		return nil
	}

	diff := s.diff.CalcCurDiff(s.now())
	lj := s.tracker.AddLocalJob(j.ChainID, j.JobID, diff)

	s.mu.Lock()
	s.lastDiff = diff
	s.lastJob = j
	s.lastLJ = lj
	s.mu.Unlock()

	return s.Send(NewJobNotification(j.JobID, j.Payload.WorkInput(), j.Payload.Height(), diff))
}

// SetDifficulty re-announces the latest job at diff. Shares for that job
// mined under its earlier difficulty still validate.
func (s *Session) SetDifficulty(diff uint64) error {
	s.mu.Lock()
	j, lj := s.lastJob, s.lastLJ
	if j == nil || diff == s.lastDiff {
		s.mu.Unlock()
		return nil
	}
	s.lastDiff = diff
	s.mu.Unlock()

	if !s.tracker.Retarget(lj, diff) {
		return nil
	}
	return s.Send(NewJobNotification(j.JobID, j.Payload.WorkInput(), j.Payload.Height(), diff))
}

// Retarget lowers the difficulty of the running job when the controller
// asks for less. Raises wait for the next job, so a late share is never
// credited above the difficulty it was mined at.
func (s *Session) Retarget(now time.Time) error {
	if !s.IsAuthenticated() {
		return nil
	}

	diff := s.diff.CalcCurDiff(now)

	s.mu.RLock()
	current := s.lastDiff
	s.mu.RUnlock()

	if current == 0 || diff >= current {
		return nil
	}
	s.logger.Debug("lowering difficulty", "from", current, "to", diff)
	return s.SetDifficulty(diff)
}

// FindLocalJob looks up a job the session was assigned
func (s *Session) FindLocalJob(jobID uint32) (*LocalJob, bool) {
	return s.tracker.FindLocalJob(jobID)
}

// AddLocalShare records a share for duplicate detection
func (s *Session) AddLocalShare(lj *LocalJob, ls LocalShare) bool {
	return s.tracker.AddLocalShare(lj, ls)
}

// DiffContext returns the difficulty state of a local job
func (s *Session) DiffContext(lj *LocalJob) (DiffContext, bool) {
	return s.tracker.DiffContext(lj)
}

// Authenticate moves the session to the authenticated state
func (s *Session) Authenticate(worker Worker) {
	s.mu.Lock()
	s.worker = worker
	s.mu.Unlock()
	s.state.Store(int32(StateAuthenticated))
	s.logger.WithWorker(worker.UserID, worker.FullName).Info("worker authenticated")
}

// State returns the lifecycle state
func (s *Session) State() State {
	return State(s.state.Load())
}

// IsAuthenticated reports whether login completed
func (s *Session) IsAuthenticated() bool {
	return s.State() == StateAuthenticated
}

// Worker returns the authenticated worker
func (s *Session) Worker() Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.worker
}

// SessionID returns the session id
func (s *Session) SessionID() uint32 {
	return s.id
}

// ClientIP returns the miner's address without port
func (s *Session) ClientIP() string {
	return s.clientIP
}

// Logger returns the session logger
func (s *Session) Logger() *log.Logger {
	return s.logger
}

// Done is closed when the session ends
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close ends the session
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.logger.LogConnection("disconnected", s.conn.RemoteAddr().String())
	})
}
