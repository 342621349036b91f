package scheduler

import "context"

// TaskDescription is the contract every unit of schedulable work must
// satisfy. Implementations are the preparation task (internal/prepare),
// the update-index-store task (internal/indexfile), and the manager's
// build-graph and editor-preparation tasks (internal/manager); the scheduler itself never interprets T, only
// dispatches it.
type TaskDescription interface {
	// Execute runs the task body. It must be idempotent when IsIdempotent
	// reports true, must poll ctx at reasonable suspension points, and
	// must return promptly once ctx is done.
	Execute(ctx context.Context) error

	// IsIdempotent reports whether Execute may be safely re-run from
	// scratch after a cancel-and-reschedule.
	IsIdempotent() bool

	// EstimatedCPUCoreCount is the concurrency cost charged against the
	// admitting priority band's budget. Must be >= 1.
	EstimatedCPUCoreCount() int

	// Dependencies inspects the tasks currently executing and reports how
	// this task description relates to each of interest. Tasks absent
	// from currentlyExecuting need not be considered: a dependency only
	// has teeth while its target is actually running (once it finishes it
	// naturally disappears from the next round's currentlyExecuting, and
	// so from the next call's result).
	Dependencies(currentlyExecuting []*QueuedTask) []Dependency
}

// DependencyKind distinguishes the two dependency relations a
// TaskDescription may declare on another in-flight task.
type DependencyKind int

const (
	// DependencyWait means the declaring task cannot be admitted until the
	// referenced task finishes; the referenced task's priority is raised
	// to at least the declaring task's priority (priority inheritance).
	DependencyWait DependencyKind = iota

	// DependencyCancelAndReschedule requests that the referenced task be
	// preempted — cancelled and put back on the pending queue — so the
	// declaring task can run instead. The dispatcher may downgrade this to
	// DependencyWait; see scheduler.go's dispatch round.
	DependencyCancelAndReschedule
)

// Dependency is one element of a TaskDescription.Dependencies() result.
type Dependency struct {
	Kind DependencyKind
	Task *QueuedTask
}

// Wait builds a DependencyWait on t.
func Wait(t *QueuedTask) Dependency {
	return Dependency{Kind: DependencyWait, Task: t}
}

// CancelAndReschedule builds a DependencyCancelAndReschedule on t.
func CancelAndReschedule(t *QueuedTask) Dependency {
	return Dependency{Kind: DependencyCancelAndReschedule, Task: t}
}
