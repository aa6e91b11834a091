package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bardlex/beampool/internal/job"
	"github.com/bardlex/beampool/internal/messaging"
	"github.com/bardlex/beampool/pkg/errors"
	"github.com/bardlex/beampool/pkg/log"
	"github.com/bardlex/beampool/pkg/retry"
)

const testInput = "0123456789abcdef00112233445566778899aabbccddeeff0011223344556677"

func newTestJob(t *testing.T, chainID, jobID uint32, createdAt time.Time) *job.JobEx {
	t.Helper()
	payload, err := job.NewBeamJob(testInput, 0x1c2ac4af, 1000+jobID)
	if err != nil {
		t.Fatalf("NewBeamJob() failed: %v", err)
	}
	return job.NewJobEx(chainID, jobID, payload, false, createdAt)
}

func TestJobKey(t *testing.T) {
	tests := []struct {
		chainID, jobID uint32
		want           string
	}{
		{0, 0, "job:0:0"},
		{1, 42, "job:1:42"},
		{7, 4294967295, "job:7:4294967295"},
	}

	for _, tt := range tests {
		if got := JobKey(tt.chainID, tt.jobID); got != tt.want {
			t.Errorf("JobKey(%d, %d) = %q, want %q", tt.chainID, tt.jobID, got, tt.want)
		}
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(&Config{URL: "http://not-redis"}, log.Discard())
	if !errors.IsType(err, errors.ErrorTypeValidation) {
		t.Errorf("NewClient() error = %v, want validation error", err)
	}
}

func TestNewClient_Options(t *testing.T) {
	c, err := NewClient(&Config{URL: "redis://localhost:6379/2", PoolSize: 7}, log.Discard())
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	defer c.Close()

	opts := c.rdb.Options()
	if opts.DB != 2 || opts.PoolSize != 7 {
		t.Errorf("options DB=%d PoolSize=%d, want 2 and 7", opts.DB, opts.PoolSize)
	}
}

func TestDecodeSnapshot(t *testing.T) {
	created := time.Unix(1_700_000_000, 0).UTC()
	data, err := messaging.JobMessageFrom(newTestJob(t, 1, 5, created)).Encode()
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	j, err := decodeSnapshot(data, time.Now())
	if err != nil {
		t.Fatalf("decodeSnapshot() failed: %v", err)
	}
	if j.ChainID != 1 || j.JobID != 5 || !j.CreatedAt.Equal(created) {
		t.Errorf("unexpected job: %+v", j)
	}

	if _, err := decodeSnapshot([]byte("garbage"), time.Now()); err == nil {
		t.Error("Expected error for undecodable snapshot")
	}
}

func TestSortByCreation(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	jobs := []*job.JobEx{
		newTestJob(t, 1, 3, base.Add(3*time.Second)),
		newTestJob(t, 1, 1, base.Add(time.Second)),
		newTestJob(t, 1, 2, base.Add(2*time.Second)),
	}

	sortByCreation(jobs)

	for i, j := range jobs {
		if j.JobID != uint32(i+1) {
			t.Fatalf("jobs[%d].JobID = %d, want %d", i, j.JobID, i+1)
		}
	}
}

func TestJobStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}

	c, err := NewClient(&Config{URL: url}, log.Discard())
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Ping(ctx, retry.DefaultConfig()); err != nil {
		t.Fatalf("Ping() failed: %v", err)
	}

	const chainID = 4000000001
	store := NewJobStore(c, time.Minute)
	base := time.Now().Add(-time.Minute).Truncate(time.Second)
	for id := uint32(2); id >= 1; id-- {
		if err := store.Save(ctx, newTestJob(t, chainID, id, base.Add(time.Duration(id)*time.Second))); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}
	defer c.rdb.Del(context.Background(), JobKey(chainID, 1), JobKey(chainID, 2))

	jobs, err := store.LoadAll(ctx, chainID, time.Now())
	if err != nil {
		t.Fatalf("LoadAll() failed: %v", err)
	}
	if len(jobs) != 2 || jobs[0].JobID != 1 || jobs[1].JobID != 2 {
		t.Fatalf("LoadAll() returned %d jobs in unexpected order", len(jobs))
	}
}
