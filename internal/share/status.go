package share

import "fmt"

// Status is the outcome of evaluating one share
type Status int32

// Reject range. Values stay stable on the wire.
const (
	StatusRejectNoReason  Status = 0
	StatusJobNotFound     Status = 21
	StatusDuplicateShare  Status = 22
	StatusLowDifficulty   Status = 23
	StatusUnauthorized    Status = 24
	StatusIllegalParams   Status = 27
	StatusInternalError   Status = 30
	StatusInvalidSolution Status = 34
	StatusStaleShare      Status = 37
)

// Accepted range. The magic values keep accepted shares distinguishable from
// small integer error codes in raw records.
const (
	StatusAccept            Status = 1798084231
	StatusAcceptStale       Status = 950395421
	StatusSolved            Status = 1422486894
	StatusSolvedStale       Status = 1713984938
	StatusSolvedPreliminary Status = 1835617709
)

var statusNames = map[Status]string{
	StatusRejectNoReason:    "REJECT_NO_REASON",
	StatusJobNotFound:       "JOB_NOT_FOUND",
	StatusDuplicateShare:    "DUPLICATE_SHARE",
	StatusLowDifficulty:     "LOW_DIFFICULTY",
	StatusUnauthorized:      "UNAUTHORIZED",
	StatusIllegalParams:     "ILLEGAL_PARAMS",
	StatusInternalError:     "INTERNAL_ERROR",
	StatusInvalidSolution:   "INVALID_SOLUTION",
	StatusStaleShare:        "STALE_SHARE",
	StatusAccept:            "ACCEPT",
	StatusAcceptStale:       "ACCEPT_STALE",
	StatusSolved:            "SOLVED",
	StatusSolvedStale:       "SOLVED_STALE",
	StatusSolvedPreliminary: "SOLVED_PRELIMINARY",
}

// String returns the status name
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", int32(s))
}

// Description is the human readable text sent to miners
func (s Status) Description() string {
	switch s {
	case StatusJobNotFound:
		return "Job not found (=stale)"
	case StatusDuplicateShare:
		return "Duplicate share"
	case StatusLowDifficulty:
		return "Low difficulty"
	case StatusUnauthorized:
		return "Unauthorized worker"
	case StatusIllegalParams:
		return "Illegal params"
	case StatusInternalError:
		return "Internal error"
	case StatusInvalidSolution:
		return "Invalid solution"
	case StatusStaleShare:
		return "Stale share"
	case StatusRejectNoReason:
		return "Reject no reason"
	}
	if IsAccepted(s) {
		return "Share accepted"
	}
	return "Unknown reason"
}

// IsAccepted reports whether the share counts toward payout
func IsAccepted(s Status) bool {
	switch s {
	case StatusAccept, StatusAcceptStale, StatusSolved, StatusSolvedStale, StatusSolvedPreliminary:
		return true
	}
	return false
}

// IsSolved reports whether the share also meets the network target
func IsSolved(s Status) bool {
	switch s {
	case StatusSolved, StatusSolvedStale, StatusSolvedPreliminary:
		return true
	}
	return false
}
