package generation

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// State is the lifecycle state of a Job.
type State string

const (
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state can no longer change.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// ErrInvalidTransition is returned when a Job or unit mutation would break
// the monotonic state order.
var ErrInvalidTransition = errors.New("invalid state transition")

var allowedTransitions = map[State][]State{
	StateStarting: {StateRunning, StateCancelled},
	StateRunning:  {StateCompleted, StateFailed, StateCancelled},
}

func canTransition(from, to State) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Artifact is the stored archive of a settled job. The job holds the
// reference only, never the bytes.
type Artifact struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Job is the execution context of one accepted request. All mutation goes
// through its methods, which share one mutex; readers use Snapshot.
type Job struct {
	mu        sync.Mutex
	id        string
	request   Request
	units     []WorkUnit
	state     State
	produced  map[string]string
	archive   *Artifact
	reason    string
	createdAt time.Time
}

// NewJob creates a Job in the starting state owning copies of units.
func NewJob(id string, req Request, units []WorkUnit) *Job {
	owned := make([]WorkUnit, len(units))
	copy(owned, units)
	for i := range owned {
		owned[i].Index = i
		owned[i].State = UnitPending
	}
	return &Job{
		id:        id,
		request:   req,
		units:     owned,
		state:     StateStarting,
		produced:  make(map[string]string, len(owned)),
		createdAt: time.Now().UTC(),
	}
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

// Request returns the accepted request.
func (j *Job) Request() Request { return j.request }

// UnitCount returns the number of planned units.
func (j *Job) UnitCount() int { return len(j.units) }

// State returns the current job state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Start moves the job from starting to running.
func (j *Job) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(StateRunning)
}

// Cancel marks the job cancelled. It returns false when the job already
// reached a terminal state.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(StateCancelled) == nil
}

// Complete marks a running job completed. Every unit must have succeeded.
func (j *Job) Complete() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := range j.units {
		if j.units[i].State != UnitSucceeded {
			return fmt.Errorf("%w: unit %s is %s", ErrInvalidTransition, j.units[i].ID, j.units[i].State)
		}
	}
	return j.transitionLocked(StateCompleted)
}

// Fail marks a running job failed with reason.
func (j *Job) Fail(reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StateFailed); err != nil {
		return err
	}
	j.reason = reason
	return nil
}

func (j *Job) transitionLocked(to State) error {
	if !canTransition(j.state, to) {
		return fmt.Errorf("%w: job %s %s -> %s", ErrInvalidTransition, j.id, j.state, to)
	}
	j.state = to
	return nil
}

// BeginUnit marks unit idx running and counts one attempt. It returns false
// when the job is not running, which is how a cancelled job stops dispatch.
// A unit already running may begin again for a retry.
func (j *Job) BeginUnit(idx int) (WorkUnit, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateRunning || idx < 0 || idx >= len(j.units) {
		return WorkUnit{}, false
	}
	u := &j.units[idx]
	if u.State.Terminal() {
		return WorkUnit{}, false
	}
	u.State = UnitRunning
	u.Attempts++
	return *u, true
}

// SucceedUnit records produced content for a running unit.
func (j *Job) SucceedUnit(idx int, content string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	u, err := j.runningUnitLocked(idx)
	if err != nil {
		return err
	}
	u.State = UnitSucceeded
	u.Error = ""
	j.produced[u.Path] = content
	return nil
}

// FailUnit records a failure for a running unit.
func (j *Job) FailUnit(idx int, reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	u, err := j.runningUnitLocked(idx)
	if err != nil {
		return err
	}
	u.State = UnitFailed
	u.Error = reason
	return nil
}

func (j *Job) runningUnitLocked(idx int) (*WorkUnit, error) {
	if idx < 0 || idx >= len(j.units) {
		return nil, fmt.Errorf("unit index %d out of range", idx)
	}
	u := &j.units[idx]
	if u.State != UnitRunning {
		return nil, fmt.Errorf("%w: unit %s is %s", ErrInvalidTransition, u.ID, u.State)
	}
	return u, nil
}

// SetArchive attaches the stored archive reference. Only a running job,
// which has not been cancelled, can be archived.
func (j *Job) SetArchive(a Artifact) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateRunning {
		return fmt.Errorf("%w: archive for %s job", ErrInvalidTransition, j.state)
	}
	j.archive = &a
	return nil
}

// ProducedFiles returns a copy of the produced path to content mapping.
func (j *Job) ProducedFiles() map[string]string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string]string, len(j.produced))
	for k, v := range j.produced {
		out[k] = v
	}
	return out
}

// FailedUnits returns the ids of failed units in plan order.
func (j *Job) FailedUnits() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	var ids []string
	for i := range j.units {
		if j.units[i].State == UnitFailed {
			ids = append(ids, j.units[i].ID)
		}
	}
	return ids
}

// Snapshot is a consistent, detached view of a Job.
type Snapshot struct {
	ID          string     `json:"id"`
	Template    string     `json:"template"`
	Language    string     `json:"language"`
	ProjectName string     `json:"project_name"`
	WorkerCount int        `json:"worker_count"`
	State       State      `json:"state"`
	Units       []WorkUnit `json:"units"`
	Produced    []string   `json:"produced"`
	Archive     *Artifact  `json:"archive,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Snapshot returns a copy of the job state safe to hand to other goroutines.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	units := make([]WorkUnit, len(j.units))
	copy(units, j.units)
	produced := make([]string, 0, len(j.produced))
	for p := range j.produced {
		produced = append(produced, p)
	}
	sort.Strings(produced)

	var archive *Artifact
	if j.archive != nil {
		a := *j.archive
		archive = &a
	}
	return Snapshot{
		ID:          j.id,
		Template:    j.request.Template,
		Language:    j.request.Language,
		ProjectName: j.request.ProjectName,
		WorkerCount: j.request.WorkerCount,
		State:       j.state,
		Units:       units,
		Produced:    produced,
		Archive:     archive,
		Reason:      j.reason,
		CreatedAt:   j.createdAt,
	}
}
