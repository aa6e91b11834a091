package job

import (
	"sync"
	"time"
)

// Repository holds the live jobs of one chain. Lookups run concurrently with
// rotation; entries are swapped, never mutated.
type Repository struct {
	chainID     uint32
	maxJobs     int
	maxLifetime time.Duration

	mu     sync.RWMutex
	jobs   map[uint32]*JobEx
	order  []uint32
	latest *JobEx
}

// NewRepository creates a repository bounded by count and age
func NewRepository(chainID uint32, maxJobs int, maxLifetime time.Duration) *Repository {
	return &Repository{
		chainID:     chainID,
		maxJobs:     maxJobs,
		maxLifetime: maxLifetime,
		jobs:        make(map[uint32]*JobEx, maxJobs),
	}
}

// ChainID returns the chain this repository serves
func (r *Repository) ChainID() uint32 {
	return r.chainID
}

// Add publishes a job. A clean job marks every older job stale. Returns false
// if the id is already present.
func (r *Repository) Add(j *JobEx) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[j.JobID]; exists {
		return false
	}

	if j.CleanJobs {
		for _, old := range r.jobs {
			old.markStale()
		}
	}

	r.jobs[j.JobID] = j
	r.order = append(r.order, j.JobID)
	r.latest = j

	for len(r.order) > r.maxJobs {
		delete(r.jobs, r.order[0])
		r.order = r.order[1:]
	}
	return true
}

// Get returns the job with the given id
func (r *Repository) Get(jobID uint32) (*JobEx, bool) {
	r.mu.RLock()
	j, ok := r.jobs[jobID]
	r.mu.RUnlock()
	return j, ok
}

// Latest returns the most recently added job
func (r *Repository) Latest() *JobEx {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Len returns the number of resident jobs
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Expire drops jobs older than the max lifetime, keeping the latest job.
// Returns the number of jobs removed.
func (r *Repository) Expire(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	kept := r.order[:0]
	for _, id := range r.order {
		j := r.jobs[id]
		if j != r.latest && now.Sub(j.CreatedAt) > r.maxLifetime {
			delete(r.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return removed
}

// Registry maps chain ids to repositories
type Registry struct {
	mu    sync.RWMutex
	repos map[uint32]*Repository
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{repos: make(map[uint32]*Repository)}
}

// Register adds a repository for its chain
func (r *Registry) Register(repo *Repository) {
	r.mu.Lock()
	r.repos[repo.ChainID()] = repo
	r.mu.Unlock()
}

// Get returns the repository for chainID
func (r *Registry) Get(chainID uint32) (*Repository, bool) {
	r.mu.RLock()
	repo, ok := r.repos[chainID]
	r.mu.RUnlock()
	return repo, ok
}

// Lookup resolves a job by chain and id
func (r *Registry) Lookup(chainID, jobID uint32) (*JobEx, bool) {
	repo, ok := r.Get(chainID)
	if !ok {
		return nil, false
	}
	return repo.Get(jobID)
}

// Expire runs Expire on every repository
func (r *Registry) Expire(now time.Time) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	removed := 0
	for _, repo := range r.repos {
		removed += repo.Expire(now)
	}
	return removed
}
