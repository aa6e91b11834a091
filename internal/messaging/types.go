package messaging

import (
	"reflect"
	"time"

	"github.com/bytedance/sonic"

	"github.com/bardlex/beampool/internal/job"
	"github.com/bardlex/beampool/pkg/errors"
)

var fastJSON = sonic.ConfigDefault

func init() {
	_ = sonic.Pretouch(reflect.TypeOf(JobMessage{}))
	_ = sonic.Pretouch(reflect.TypeOf(SolvedShareMessage{}))
}

// JobMessage is a job published by the job maker
type JobMessage struct {
	ChainID   uint32    `json:"chain_id"`
	JobID     uint32    `json:"job_id"`
	Input     string    `json:"input"`
	BlockBits uint32    `json:"block_bits"`
	Height    uint32    `json:"height"`
	CleanJobs bool      `json:"clean_jobs"`
	CreatedAt time.Time `json:"created_at"`
}

// DecodeJobMessage parses a job from its JSON encoding
func DecodeJobMessage(data []byte) (*JobMessage, error) {
	var msg JobMessage
	if err := fastJSON.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSerialization, "decode_job", "invalid job message").
			WithContext("size", len(data))
	}
	return &msg, nil
}

// Encode returns the JSON encoding of the job
func (m *JobMessage) Encode() ([]byte, error) {
	data, err := fastJSON.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSerialization, "encode_job", "failed to encode job message")
	}
	return data, nil
}

// ToJobEx builds the repository entry for the job. A zero CreatedAt is
// replaced by now.
func (m *JobMessage) ToJobEx(now time.Time) (*job.JobEx, error) {
	payload, err := job.NewBeamJob(m.Input, m.BlockBits, m.Height)
	if err != nil {
		return nil, err
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return job.NewJobEx(m.ChainID, m.JobID, payload, m.CleanJobs, createdAt), nil
}

// JobMessageFrom is the inverse of ToJobEx
func JobMessageFrom(j *job.JobEx) *JobMessage {
	return &JobMessage{
		ChainID:   j.ChainID,
		JobID:     j.JobID,
		Input:     j.Payload.WorkInput(),
		BlockBits: j.Payload.BlockBits(),
		Height:    j.Payload.Height(),
		CleanJobs: j.CleanJobs,
		CreatedAt: j.CreatedAt,
	}
}

// SolvedShareMessage carries what the block submitter needs to rebuild a
// block from a solved share
type SolvedShareMessage struct {
	ChainID      uint32 `json:"chain_id"`
	Input        string `json:"input"`
	Output       string `json:"output"`
	Nonce        uint64 `json:"nonce"`
	Height       uint32 `json:"height"`
	BlockBits    uint32 `json:"block_bits"`
	ShareDiff    uint64 `json:"share_diff"`
	Status       int32  `json:"status"`
	UserID       int32  `json:"user_id"`
	WorkerHashID int64  `json:"worker_id"`
	WorkerName   string `json:"worker_name"`
	IP           string `json:"ip"`
	SessionID    uint32 `json:"session_id"`
	Timestamp    int64  `json:"timestamp"`
}
