package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/lFer17/codebase-gen/internal/domain/generation"
)

type registryEntry struct {
	job       *generation.Job
	cancel    context.CancelFunc
	cancelled bool
}

// RegistryService tracks in-flight jobs process-wide. It enforces the job
// capacity and is the only way a job is cancelled from outside its run.
type RegistryService struct {
	mu      sync.Mutex
	maxJobs int
	entries map[string]*registryEntry
}

// NewRegistryService creates a registry admitting at most maxJobs jobs.
func NewRegistryService(maxJobs int) *RegistryService {
	if maxJobs < 1 {
		maxJobs = 1
	}
	return &RegistryService{maxJobs: maxJobs, entries: make(map[string]*registryEntry)}
}

// Register admits jobID. It fails immediately with ErrCapacity when the
// registry is full; it never queues.
func (r *RegistryService) Register(jobID string, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[jobID]; ok {
		return fmt.Errorf("job %s already registered", jobID)
	}
	if len(r.entries) >= r.maxJobs {
		return fmt.Errorf("%w: %d jobs active", generation.ErrCapacity, len(r.entries))
	}
	r.entries[jobID] = &registryEntry{cancel: cancel}
	return nil
}

// Bind attaches the planned job to its admission. A job bound after its
// admission was cancelled is cancelled at once.
func (r *RegistryService) Bind(jobID string, job *generation.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[jobID]
	if !ok {
		return
	}
	e.job = job
	if e.cancelled {
		job.Cancel()
	}
}

// Unregister releases jobID. It reports whether the job was registered.
func (r *RegistryService) Unregister(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[jobID]; !ok {
		return false
	}
	delete(r.entries, jobID)
	return true
}

// Cancel marks jobID cancelled and cancels its context. In-flight units are
// left to finish. It reports whether the job was registered.
func (r *RegistryService) Cancel(jobID string) bool {
	r.mu.Lock()
	e, ok := r.entries[jobID]
	if ok {
		e.cancelled = true
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	if e.job != nil && e.job.Cancel() {
		slog.Info("job cancelled", "job_id", jobID)
	}
	if e.cancel != nil {
		e.cancel()
	}
	return true
}

// CancelAll cancels every registered job.
func (r *RegistryService) CancelAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Cancel(id)
	}
}

// Active returns snapshots of bound jobs, oldest first.
func (r *RegistryService) Active() []generation.Snapshot {
	r.mu.Lock()
	jobs := make([]*generation.Job, 0, len(r.entries))
	for _, e := range r.entries {
		if e.job != nil {
			jobs = append(jobs, e.job)
		}
	}
	r.mu.Unlock()

	out := make([]generation.Snapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of admitted jobs.
func (r *RegistryService) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Cap returns the configured capacity.
func (r *RegistryService) Cap() int {
	return r.maxJobs
}
