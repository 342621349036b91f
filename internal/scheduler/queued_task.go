package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle stage of a QueuedTask as observed from outside
// the scheduler.
type State int

const (
	StatePending State = iota
	StateExecuting
	StateFinished
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateExecuting:
		return "executing"
	case StateFinished:
		return "finished"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// OnStateChange is invoked, outside any scheduler lock, whenever a
// QueuedTask's externally visible State changes.
type OnStateChange func(State)

// QueuedTask is the handle returned by Scheduler.Schedule. It exposes the
// owner-facing operations: wait, cancel, and priority
// elevation. Internally the scheduler also uses it to track dependency
// relationships (it is the T passed to TaskDescription.Dependencies).
type QueuedTask struct {
	id          uuid.UUID
	description TaskDescription
	onChange    OnStateChange

	priority atomic.Int32 // monotone non-decreasing; written under mu or via ElevatePriority

	mu          sync.Mutex
	state       State
	execCancel  context.CancelFunc // set while StateExecuting
	rescheduled bool               // dispatcher asked for cancel-and-reschedule
	ownerCancel bool               // owner asked for a terminal cancel
	err         error

	done chan struct{} // closed exactly once, when State becomes Finished or Cancelled

	seq       int64 // admission tie-break: lower seq was scheduled first
	scheduler *Scheduler
}

func newQueuedTask(s *Scheduler, seq int64, description TaskDescription, priority Priority, onChange OnStateChange) *QueuedTask {
	qt := &QueuedTask{
		id:          uuid.New(),
		description: description,
		onChange:    onChange,
		state:       StatePending,
		done:        make(chan struct{}),
		seq:         seq,
		scheduler:   s,
	}
	qt.priority.Store(int32(priority))
	return qt
}

// ID returns a stable identifier for this task, usable for log
// correlation across a partition's lifetime.
func (qt *QueuedTask) ID() uuid.UUID { return qt.id }

// Description returns the TaskDescription this handle wraps.
func (qt *QueuedTask) Description() TaskDescription { return qt.description }

// Priority returns the task's current priority.
func (qt *QueuedTask) Priority() Priority {
	return Priority(qt.priority.Load())
}

// State returns the task's current externally visible state.
func (qt *QueuedTask) State() State {
	qt.mu.Lock()
	defer qt.mu.Unlock()
	return qt.state
}

// ElevatePriority raises the task's priority to target if it is currently
// lower; priority is monotone non-decreasing for the lifetime of a task.
// Raising priority never revisits admission decisions already made for
// tasks that are already executing; it only affects future dispatch
// rounds. Safe to call from any goroutine, including dependency walks
// inside the dispatcher itself.
func (qt *QueuedTask) ElevatePriority(target Priority) {
	for {
		cur := Priority(qt.priority.Load())
		if cur >= target {
			return
		}
		if qt.priority.CompareAndSwap(int32(cur), int32(target)) {
			qt.scheduler.poke()
			return
		}
	}
}

// Cancel marks the task for owner-initiated, terminal cancellation.
// Execute() is not re-attempted: if the task is currently running, its
// context is cancelled; if still pending, it is removed without ever
// running. Distinct from the dispatcher's cancel-to-reschedule, which
// always re-attempts execution.
func (qt *QueuedTask) Cancel() {
	qt.mu.Lock()
	if qt.state == StateFinished || qt.state == StateCancelled {
		qt.mu.Unlock()
		return
	}
	qt.ownerCancel = true
	cancel := qt.execCancel
	pending := qt.state == StatePending
	qt.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if pending {
		qt.scheduler.removePending(qt)
		qt.finish(StateCancelled, context.Canceled)
	}
}

// Wait suspends until the task reaches a terminal state (Finished or
// Cancelled by the owner). Cancelling ctx stops waiting but does not
// cancel the task itself.
func (qt *QueuedTask) Wait(ctx context.Context) error {
	select {
	case <-qt.done:
		return qt.result()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitPropagatingCancellation is like Wait, but if ctx is cancelled while
// waiting, the task itself is also cancelled — appropriate when the
// caller is the task's sole owner.
func (qt *QueuedTask) WaitPropagatingCancellation(ctx context.Context) error {
	select {
	case <-qt.done:
		return qt.result()
	case <-ctx.Done():
		qt.Cancel()
		<-qt.done
		return ctx.Err()
	}
}

func (qt *QueuedTask) result() error {
	qt.mu.Lock()
	defer qt.mu.Unlock()
	return qt.err
}

// cancelToReschedule is the dispatcher's preemption primitive. If the task has not yet started
// executing, it is latched so the worker skips Execute entirely. If it is
// already executing, its context is cancelled so it can observe
// cancellation at its next suspension point.
func (qt *QueuedTask) cancelToReschedule() {
	qt.mu.Lock()
	qt.rescheduled = true
	cancel := qt.execCancel
	qt.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// tryStartExecuting transitions Pending -> Executing, unless the task was
// cancel-rescheduled or owner-cancelled before it had a chance to start.
// Returns the context to run Execute with, or ok=false if execution should
// be skipped (reschedule or cancel already latched).
func (qt *QueuedTask) tryStartExecuting() (ctx context.Context, ok bool) {
	qt.mu.Lock()
	defer qt.mu.Unlock()

	if qt.rescheduled || qt.ownerCancel {
		return nil, false
	}
	ctx, cancel := context.WithCancel(context.Background())
	qt.execCancel = cancel
	qt.state = StateExecuting
	qt.rescheduled = false
	return ctx, true
}

// completeExecution records the outcome of a finished Execute call and
// reports whether the scheduler should re-enqueue the task (cancelled to
// reschedule) rather than treat it as terminal.
func (qt *QueuedTask) completeExecution(err error) (reschedule bool) {
	qt.mu.Lock()
	wasOwnerCancel := qt.ownerCancel
	wasRescheduled := qt.rescheduled
	qt.execCancel = nil
	qt.mu.Unlock()

	if wasOwnerCancel {
		qt.finish(StateCancelled, err)
		return false
	}
	if wasRescheduled {
		qt.mu.Lock()
		qt.rescheduled = false
		qt.state = StatePending
		qt.mu.Unlock()
		qt.notify(StatePending)
		return true
	}
	qt.finish(StateFinished, err)
	return false
}

func (qt *QueuedTask) finish(state State, err error) {
	qt.mu.Lock()
	if qt.state == StateFinished || qt.state == StateCancelled {
		qt.mu.Unlock()
		return
	}
	qt.state = state
	qt.err = err
	qt.mu.Unlock()
	close(qt.done)
	qt.notify(state)
}

func (qt *QueuedTask) notify(state State) {
	if qt.onChange != nil {
		qt.onChange(state)
	}
}

// startPriorityInheritancePoll runs until stop is closed, periodically
// re-poking the scheduler so that any DependencyWait relationship pointed
// at this task keeps propagating priority elevation even without a fresh
// schedule/completion event via a periodic (e.g. 100ms) priority poll.
// Go has no first-class thread priority to sample, so this
// approximates the poll as "keep re-running the dependency walk" rather
// than literally reading a waiting thread's priority.
func startPriorityInheritancePoll(s *Scheduler, stop <-chan struct{}) {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.poke()
		}
	}
}
