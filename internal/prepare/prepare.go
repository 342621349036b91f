// Package prepare implements the preparation TaskDescription: the
// scheduler unit of work that asks the build server to make a set of
// targets' dependencies ready for type-checking or indexing.
package prepare

import (
	"context"
	"time"

	"github.com/mvp-joe/cortexidx/internal/buildserver"
	"github.com/mvp-joe/cortexidx/internal/freshness"
	"github.com/mvp-joe/cortexidx/internal/model"
	"github.com/mvp-joe/cortexidx/internal/scheduler"
)

// Purpose distinguishes why a set of targets is being prepared. Editor
// purpose is higher priority and wins when two preparations for
// overlapping targets are merged.
type Purpose int

const (
	ForIndexing Purpose = iota
	ForEditorFunctionality
)

// Task is the TaskDescription that drives one preparation call. It
// satisfies scheduler.TaskDescription.
type Task struct {
	Purpose  Purpose
	Targets  []model.TargetID
	Build    buildserver.BuildServer
	Tracker  *freshness.Tracker[model.TargetID, freshness.Dummy]

	// now is overridable for tests; defaults to time.Now.
	now func() time.Time
}

// New constructs a preparation Task. tracker is the manager's shared
// preparation-freshness tracker.
func New(purpose Purpose, targets []model.TargetID, build buildserver.BuildServer, tracker *freshness.Tracker[model.TargetID, freshness.Dummy]) *Task {
	return &Task{Purpose: purpose, Targets: targets, Build: build, Tracker: tracker, now: time.Now}
}

// Execute filters out targets already up-to-date, invokes Build.Prepare on
// whatever remains, and marks them up-to-date on success.
func (t *Task) Execute(ctx context.Context) error {
	opStart := t.now()

	var remaining []model.TargetID
	for _, target := range t.Targets {
		if !t.Tracker.IsUpToDate(target, freshness.Dummy{}) {
			remaining = append(remaining, target)
		}
	}
	if len(remaining) == 0 {
		return nil
	}

	if err := t.Build.Prepare(ctx, remaining); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	pairs := make([]freshness.Pair[model.TargetID, freshness.Dummy], len(remaining))
	for i, target := range remaining {
		pairs[i] = freshness.Pair[model.TargetID, freshness.Dummy]{Primary: target, Secondary: freshness.Dummy{}}
	}
	t.Tracker.MarkUpToDate(pairs, opStart)
	return nil
}

// IsIdempotent is always true: re-running Prepare on the same targets is
// always safe.
func (t *Task) IsIdempotent() bool { return true }

// EstimatedCPUCoreCount is always 1: the build server governs its own
// internal parallelism.
func (t *Task) EstimatedCPUCoreCount() int { return 1 }

// Dependencies implements the merge rule: an editor-purpose
// preparation may cancel-and-reschedule an indexing-purpose preparation
// that shares a target (so the interactive request is not stuck behind a
// background one); every other pairing just waits.
func (t *Task) Dependencies(currentlyExecuting []*scheduler.QueuedTask) []scheduler.Dependency {
	var deps []scheduler.Dependency
	for _, other := range currentlyExecuting {
		otherTask, ok := other.Description().(*Task)
		if !ok || !sharesTarget(t.Targets, otherTask.Targets) {
			continue
		}
		if t.Purpose == ForEditorFunctionality && otherTask.Purpose == ForIndexing {
			deps = append(deps, scheduler.CancelAndReschedule(other))
		} else {
			deps = append(deps, scheduler.Wait(other))
		}
	}
	return deps
}

func sharesTarget(a, b []model.TargetID) bool {
	set := make(map[model.TargetID]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	for _, t := range b {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}
