package macro

import "time"

// Entry is a library listing row.
type Entry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Nodes     int       `json:"nodes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StoredMacro is the unit of persistence: a library entry and its tree.
type StoredMacro struct {
	Entry
	Tree Record `json:"tree"`
}

// DeepCopy creates a complete independent copy of the StoredMacro.
func (s *StoredMacro) DeepCopy() *StoredMacro {
	if s == nil {
		return nil
	}
	cpy := *s
	cpy.Tree = s.Tree.DeepCopy()
	return &cpy
}

// Run records one execution of a macro on a vessel, from its first tick
// until it finishes, is aborted or is replaced.
type Run struct {
	ID          string     `json:"id"`
	VesselID    string     `json:"vessel_id"`
	EntryID     *string    `json:"entry_id,omitempty"`
	MacroName   string     `json:"macro_name"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      RunStatus  `json:"status"`
	Ticks       int        `json:"ticks"`

	// LastNode is the name of the last node that became active.
	LastNode *string `json:"last_node,omitempty"`

	// Warnings holds load problems, e.g. skipped malformed nodes.
	Warnings []string `json:"warnings,omitempty"`

	DurationMS *int `json:"duration_ms,omitempty"`
}

// RunStatus represents the state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunAborted   RunStatus = "aborted"   // stopped by request or replaced by another load
	RunTimedOut  RunStatus = "timed_out" // hit the engine's tick limit
	// RunInterrupted means the pilot took the controls under the abort policy.
	RunInterrupted RunStatus = "interrupted"
)

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	return s != RunRunning
}
