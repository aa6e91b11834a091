// Package job holds the chain-wide job repositories that stratum sessions
// resolve submitted job ids against.
package job

import (
	"encoding/hex"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bardlex/beampool/pkg/errors"
)

// Payload is the chain-specific, immutable part of a job
type Payload interface {
	// WorkInput is the hex encoded header pre-image miners hash against
	WorkInput() string
	BlockBits() uint32
	Height() uint32
	// InputPrefix is the first 8 bytes of the work input as a uint64
	InputPrefix() uint64
}

// BeamJob is the payload of a Beam job
type BeamJob struct {
	input       string
	bits        uint32
	height      uint32
	inputPrefix uint64
}

// NewBeamJob validates input and precomputes its prefix
func NewBeamJob(input string, bits, height uint32) (*BeamJob, error) {
	if len(input) < 16 {
		return nil, errors.New(errors.ErrorTypeValidation, "new_beam_job", "work input shorter than 8 bytes").
			WithContext("input_len", len(input))
	}
	if _, err := hex.DecodeString(input); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "new_beam_job", "work input is not hex")
	}
	prefix, err := strconv.ParseUint(input[:16], 16, 64)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "new_beam_job", "invalid input prefix")
	}

	return &BeamJob{
		input:       input,
		bits:        bits,
		height:      height,
		inputPrefix: prefix,
	}, nil
}

func (j *BeamJob) WorkInput() string   { return j.input }
func (j *BeamJob) BlockBits() uint32   { return j.bits }
func (j *BeamJob) Height() uint32      { return j.height }
func (j *BeamJob) InputPrefix() uint64 { return j.inputPrefix }

// JobEx wraps a payload with repository bookkeeping. It is shared by pointer
// between the repository and in-flight submissions; only the stale flag
// changes after publication.
type JobEx struct {
	ChainID   uint32
	JobID     uint32
	CleanJobs bool
	CreatedAt time.Time
	Payload   Payload

	stale atomic.Bool
}

// NewJobEx creates a job wrapper
func NewJobEx(chainID, jobID uint32, payload Payload, clean bool, createdAt time.Time) *JobEx {
	return &JobEx{
		ChainID:   chainID,
		JobID:     jobID,
		CleanJobs: clean,
		CreatedAt: createdAt,
		Payload:   payload,
	}
}

// IsStale reports whether a newer clean job superseded this one
func (j *JobEx) IsStale() bool {
	return j.stale.Load()
}

func (j *JobEx) markStale() {
	j.stale.Store(true)
}
