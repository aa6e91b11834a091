package stratum

import (
	"slices"
	"sync"
)

// LocalShare is the dedup key of a submission. Chains without extra nonce
// components leave ExtraA and ExtraB at zero.
type LocalShare struct {
	Nonce  uint64
	ExtraA uint32
	ExtraB uint32
}

// LocalJob records that a session was assigned a job and the shares it
// submitted against it
type LocalJob struct {
	ChainID uint32
	JobID   uint32

	shares map[LocalShare]struct{}
}

// NewLocalJob creates an empty local job
func NewLocalJob(chainID, jobID uint32) *LocalJob {
	return &LocalJob{
		ChainID: chainID,
		JobID:   jobID,
		shares:  make(map[LocalShare]struct{}),
	}
}

// DiffContext is the difficulty state of one local job. JobDiffs lists every
// difficulty assigned while the job was live, oldest first.
type DiffContext struct {
	CurrentJobDiff uint64
	JobDiffs       []uint64
}

type trackedJob struct {
	job  *LocalJob
	diff *DiffContext
}

// LocalJobTracker holds a session's local jobs, bounded by capacity. The
// oldest job and its DiffContext are evicted first.
type LocalJobTracker struct {
	mu       sync.Mutex
	capacity int
	jobs     map[uint32]trackedJob
	order    []uint32
}

// NewLocalJobTracker creates a tracker holding at most capacity jobs
func NewLocalJobTracker(capacity int) *LocalJobTracker {
	if capacity <= 0 {
		capacity = 1
	}
	return &LocalJobTracker{
		capacity: capacity,
		jobs:     make(map[uint32]trackedJob, capacity),
	}
}

// AddLocalJob tracks a newly assigned job at difficulty diff. Re-adding a
// known job id replaces it.
func (t *LocalJobTracker) AddLocalJob(chainID, jobID uint32, diff uint64) *LocalJob {
	lj := NewLocalJob(chainID, jobID)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.jobs[jobID]; exists {
		t.order = slices.DeleteFunc(t.order, func(id uint32) bool { return id == jobID })
	}
	t.jobs[jobID] = trackedJob{
		job:  lj,
		diff: &DiffContext{CurrentJobDiff: diff, JobDiffs: []uint64{diff}},
	}
	t.order = append(t.order, jobID)

	for len(t.order) > t.capacity {
		delete(t.jobs, t.order[0])
		t.order = t.order[1:]
	}
	return lj
}

// FindLocalJob returns the local job with the given id
func (t *LocalJobTracker) FindLocalJob(jobID uint32) (*LocalJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tj, ok := t.jobs[jobID]
	if !ok {
		return nil, false
	}
	return tj.job, true
}

// AddLocalShare records ls against lj. It returns false, changing nothing,
// if ls was already recorded.
func (t *LocalJobTracker) AddLocalShare(lj *LocalJob, ls LocalShare) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := lj.shares[ls]; dup {
		return false
	}
	lj.shares[ls] = struct{}{}
	return true
}

// ShareCount returns how many shares were recorded against lj
func (t *LocalJobTracker) ShareCount(lj *LocalJob) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(lj.shares)
}

// DiffContext returns a copy of lj's difficulty state. It is absent once lj
// has been evicted.
func (t *LocalJobTracker) DiffContext(lj *LocalJob) (DiffContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tj, ok := t.jobs[lj.JobID]
	if !ok || tj.job != lj {
		return DiffContext{}, false
	}
	return DiffContext{
		CurrentJobDiff: tj.diff.CurrentJobDiff,
		JobDiffs:       slices.Clone(tj.diff.JobDiffs),
	}, true
}

// Retarget makes diff current for lj and adds it to the job's history, so
// shares mined under the earlier difficulty still validate. Other jobs keep
// the difficulty they were assigned with. It reports false once lj has been
// evicted.
func (t *LocalJobTracker) Retarget(lj *LocalJob, diff uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	tj, ok := t.jobs[lj.JobID]
	if !ok || tj.job != lj {
		return false
	}
	tj.diff.CurrentJobDiff = diff
	if !slices.Contains(tj.diff.JobDiffs, diff) {
		tj.diff.JobDiffs = append(tj.diff.JobDiffs, diff)
	}
	return true
}

// Len returns the number of tracked jobs
func (t *LocalJobTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}
