package stratum

import (
	"encoding/binary"
	"strings"

	"github.com/minio/sha256-simd"
)

// DefaultWorkerName is used when a login carries no worker suffix
const DefaultWorkerName = "__default__"

// Worker identifies the miner behind a session
type Worker struct {
	UserID       int32
	UserName     string
	WorkerName   string
	FullName     string
	WorkerHashID int64
}

// SplitLogin splits "user.worker" into its parts
func SplitLogin(login string) (userName, workerName string) {
	login = strings.TrimSpace(login)
	userName, workerName, _ = strings.Cut(login, ".")
	if workerName == "" {
		workerName = DefaultWorkerName
	}
	return userName, workerName
}

// NewWorker builds the identity of an authenticated worker
func NewWorker(userID int32, userName, workerName string) Worker {
	fullName := userName + "." + workerName
	return Worker{
		UserID:       userID,
		UserName:     userName,
		WorkerName:   workerName,
		FullName:     fullName,
		WorkerHashID: WorkerHashID(fullName),
	}
}

// WorkerHashID derives the numeric worker id from the full worker name
func WorkerHashID(fullName string) int64 {
	sum := sha256.Sum256([]byte(fullName))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
