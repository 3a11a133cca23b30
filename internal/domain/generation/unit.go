package generation

// UnitState is the lifecycle state of a WorkUnit.
type UnitState string

const (
	UnitPending   UnitState = "pending"
	UnitRunning   UnitState = "running"
	UnitSucceeded UnitState = "succeeded"
	UnitFailed    UnitState = "failed"
)

// Terminal reports whether the unit reached a final state.
func (s UnitState) Terminal() bool {
	return s == UnitSucceeded || s == UnitFailed
}

// UnitKind tells the worker how to produce a unit's content.
type UnitKind string

const (
	// KindGenerate units are produced by the generation backend.
	KindGenerate UnitKind = "generate"
	// KindStatic units are rendered from the template without a backend call.
	KindStatic UnitKind = "static"
)

// WorkUnit is one independently executable generation task, typically one
// output file. It is created by the planner and owned by exactly one Job.
type WorkUnit struct {
	ID       string    `json:"id"`    // cleaned, slash-separated file path
	Index    int       `json:"index"` // position in plan order
	Path     string    `json:"path"`
	Role     string    `json:"role,omitempty"`
	Kind     UnitKind  `json:"kind"`
	Hint     string    `json:"-"` // rendered skeleton or static content
	State    UnitState `json:"state"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
}

// Description is the generation-relevant context handed to the backend.
func (u *WorkUnit) Description() string {
	d := "File: " + u.Path
	if u.Role != "" {
		d += "\nRole: " + u.Role
	}
	if u.Hint != "" {
		d += "\nStarting point:\n" + u.Hint
	}
	return d
}
