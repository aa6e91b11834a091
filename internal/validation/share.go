// Package validation holds the reference share validator. It scores a
// solution by the double SHA-256 of input, nonce and output and compares it
// with share and network targets. This is not BeamHash: a SOLVED status from
// it is not a valid Beam block. Production deployments plug a BeamHash
// verifier in through the submit.Validator interface.
package validation

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/bardlex/beampool/internal/job"
	"github.com/bardlex/beampool/internal/share"
	"github.com/bardlex/beampool/pkg/log"
)

// Validator is the reference submit.Validator. It keeps no state between
// calls.
type Validator struct {
	powLimit *big.Int
	logger   *log.Logger
}

// NewValidator creates a validator whose difficulty 1 target is the
// compact-encoded powLimitBits
func NewValidator(powLimitBits uint32, logger *log.Logger) *Validator {
	return NewValidatorWithLimit(blockchain.CompactToBig(powLimitBits), logger)
}

// NewValidatorWithLimit creates a validator with an explicit difficulty 1
// target
func NewValidatorWithLimit(powLimit *big.Int, logger *log.Logger) *Validator {
	return &Validator{
		powLimit: new(big.Int).Set(powLimit),
		logger:   logger.WithComponent("validator"),
	}
}

// ShareTarget returns the target a hash must not exceed at difficulty diff
func (v *Validator) ShareTarget(diff uint64) *big.Int {
	if diff == 0 {
		diff = 1
	}
	return new(big.Int).Div(v.powLimit, new(big.Int).SetUint64(diff))
}

// PowHash is the reference proof hash: double SHA-256 over the work input,
// the little endian nonce and the miner's output
func PowHash(input []byte, nonce uint64, output []byte) chainhash.Hash {
	buf := make([]byte, 0, len(input)+8+len(output))
	buf = append(buf, input...)
	buf = binary.LittleEndian.AppendUint64(buf, nonce)
	buf = append(buf, output...)
	return chainhash.DoubleHashH(buf)
}

// CheckShare classifies a solution. The current difficulty is tried first,
// then every difficulty assigned earlier in the job's life.
func (v *Validator) CheckShare(chainID uint32, s share.Share, j *job.JobEx, output string, jobDiffs []uint64, workerFullName string) share.Status {
	input, err := hex.DecodeString(j.Payload.WorkInput())
	if err != nil {
		v.logger.WithError(err).Error("job input is not hex", "chain_id", chainID, "job_id", j.JobID)
		return share.StatusInternalError
	}
	out, err := hex.DecodeString(output)
	if err != nil || len(out) == 0 {
		return share.StatusInvalidSolution
	}

	hash := PowHash(input, s.Nonce, out)
	hashNum := blockchain.HashToBig(&hash)
	stale := j.IsStale()

	if hashNum.Cmp(blockchain.CompactToBig(j.Payload.BlockBits())) <= 0 {
		v.logger.Info("share meets network target",
			"chain_id", chainID,
			"job_id", j.JobID,
			"height", j.Payload.Height(),
			"worker", workerFullName,
			"hash", hash.String(),
			"stale", stale,
		)
		if stale {
			return share.StatusSolvedStale
		}
		return share.StatusSolved
	}

	if v.meetsAny(hashNum, s.ShareDiff, jobDiffs) {
		if stale {
			return share.StatusAcceptStale
		}
		return share.StatusAccept
	}

	v.logger.Debug("share below target",
		"chain_id", chainID,
		"job_id", j.JobID,
		"worker", workerFullName,
		"share_diff", s.ShareDiff,
	)
	return share.StatusLowDifficulty
}

func (v *Validator) meetsAny(hashNum *big.Int, current uint64, jobDiffs []uint64) bool {
	if hashNum.Cmp(v.ShareTarget(current)) <= 0 {
		return true
	}
	for _, diff := range jobDiffs {
		if diff == current {
			continue
		}
		if hashNum.Cmp(v.ShareTarget(diff)) <= 0 {
			return true
		}
	}
	return false
}
