// Package log provides structured logging for beampool services.
// It wraps the standard library's slog package with pool-specific helpers.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey string

const (
	// RequestIDKey is the context key carrying a stratum request id
	RequestIDKey ctxKey = "request_id"
	// SessionIDKey is the context key carrying a session id
	SessionIDKey ctxKey = "session_id"
)

// Logger wraps slog.Logger with service identification and helpers
type Logger struct {
	*slog.Logger
	service string
	version string
}

// New creates a logger writing to stdout
func New(service, version, level, format string) *Logger {
	return NewWithWriter(os.Stdout, service, version, level, format)
}

// NewWithWriter creates a logger writing to w
func NewWithWriter(w io.Writer, service, version, level, format string) *Logger {
	logLevel := parseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger:  slog.New(handler).With("service", service, "version", version),
		service: service,
		version: version,
	}
}

// Discard returns a logger that drops everything, for tests
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) derive(logger *slog.Logger) *Logger {
	return &Logger{Logger: logger, service: l.service, version: l.version}
}

// WithContext returns a logger carrying request and session ids found in ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger
	if reqID := ctx.Value(RequestIDKey); reqID != nil {
		logger = logger.With("request_id", reqID)
	}
	if sessionID := ctx.Value(SessionIDKey); sessionID != nil {
		logger = logger.With("session_id", sessionID)
	}
	return l.derive(logger)
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields ...any) *Logger {
	return l.derive(l.With(fields...))
}

// WithComponent returns a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithChain returns a logger with chain fields
func (l *Logger) WithChain(chainID uint32, chainName string) *Logger {
	return l.WithFields("chain_id", chainID, "chain", chainName)
}

// WithWorker returns a logger with worker identity fields
func (l *Logger) WithWorker(userID int32, fullName string) *Logger {
	return l.WithFields("user_id", userID, "worker", fullName)
}

// WithError returns a logger with an error field
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields("error", err.Error())
}

// LogConnection logs connection events
func (l *Logger) LogConnection(event, remoteAddr string) {
	l.Info("connection event", "event", event, "remote_addr", remoteAddr)
}

// LogStratumMessage logs raw stratum traffic at debug level
func (l *Logger) LogStratumMessage(direction, message string) {
	l.Debug("stratum message", "direction", direction, "message", message)
}

// LogShare logs one evaluated share at debug level
func (l *Logger) LogShare(jobID uint32, nonce uint64, difficulty uint64, status string, accepted bool) {
	l.Debug("share evaluated",
		"job_id", jobID,
		"nonce", nonce,
		"share_diff", difficulty,
		"status", status,
		"accepted", accepted,
	)
}

// LogInvalidShareSpam logs a share whose publication was suppressed
func (l *Logger) LogInvalidShareSpam(userID int32, userName, clientIP string, difficulty uint64, invalidShares int64, status string) {
	l.Warn("invalid share spamming",
		"share_diff", difficulty,
		"user_id", userID,
		"user_name", userName,
		"ip", clientIP,
		"invalid_shares", invalidShares,
		"status", status,
	)
}

// LogSolvedShare logs a share that meets the network target
func (l *Logger) LogSolvedShare(jobID uint32, height uint32, worker string, difficulty uint64) {
	l.Info("solved share",
		"job_id", jobID,
		"height", height,
		"worker", worker,
		"share_diff", difficulty,
	)
}

// LogJobReceived logs a job entering a repository
func (l *Logger) LogJobReceived(chainID uint32, jobID uint32, height uint32, clean bool) {
	l.Info("job received",
		"chain_id", chainID,
		"job_id", jobID,
		"height", height,
		"clean_jobs", clean,
	)
}

// LogDuration logs the duration of an operation in nanoseconds
func (l *Logger) LogDuration(operation string, duration int64) {
	l.Debug("operation completed",
		"operation", operation,
		"duration_ns", duration,
		"duration_ms", float64(duration)/1e6,
	)
}
