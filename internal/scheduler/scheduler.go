// Package scheduler implements a generic priority-and-dependency task
// scheduler: it multiplexes heterogeneous jobs
// onto a bounded, priority-banded concurrency budget, with priority
// inheritance, cooperative cancellation, and a cancel-and-reschedule
// preemption policy. The scheduler has no notion of targets, files, or
// compilers — those live in internal/prepare, internal/indexfile, and
// internal/manager, which schedule their own TaskDescription
// implementations through it.
package scheduler

import (
	"log"
	"sort"
	"sync"
	"sync/atomic"
)

// Scheduler is the single admission point for a set of priority bands.
// It is safe for concurrent use.
type Scheduler struct {
	levels []Level // descending by Priority, validated at construction

	mu        sync.Mutex
	pending   []*QueuedTask
	executing []*QueuedTask

	seq atomic.Int64

	pokeCh    chan struct{}
	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New constructs a Scheduler governed by the given priority levels, which
// must be supplied sorted descending by Priority with a monotone
// non-increasing MaxConcurrentTasks.
func New(levels []Level) (*Scheduler, error) {
	if err := validateLevels(levels); err != nil {
		return nil, err
	}
	levelsCopy := append([]Level(nil), levels...)

	s := &Scheduler{
		levels: levelsCopy,
		pokeCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.dispatchLoop()
	}()
	go func() {
		defer s.wg.Done()
		startPriorityInheritancePoll(s, s.stopCh)
	}()

	return s, nil
}

// Close stops the dispatcher. It does not cancel in-flight or pending
// tasks; callers that need that should Cancel() their QueuedTasks first.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Schedule enqueues description at priority and wakes the dispatcher. It
// returns immediately; the task may not start executing for a while, or
// ever, if it is outranked or blocked on a dependency. onStateChange, if
// non-nil, is invoked (off any scheduler lock) on every externally visible
// state transition.
func (s *Scheduler) Schedule(priority Priority, description TaskDescription, onStateChange OnStateChange) *QueuedTask {
	qt := newQueuedTask(s, s.seq.Add(1), description, priority, onStateChange)

	s.mu.Lock()
	s.pending = append(s.pending, qt)
	s.mu.Unlock()

	s.poke()
	return qt
}

func (s *Scheduler) poke() {
	select {
	case s.pokeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) dispatchLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.pokeCh:
			s.dispatchRound()
		}
	}
}

// dispatchRound implements the admission algorithm: sort pending by
// priority, then admit as many as the per-level CPU budget allows,
// resolving each candidate's declared dependencies first. A cancellation
// issued mid-round ends the round immediately without admitting anything
// further; the round resumes, from scratch, on the next poke (which
// arrives once the cancelled task actually stops).
func (s *Scheduler) dispatchRound() {
	s.mu.Lock()

	sorted := append([]*QueuedTask(nil), s.pending...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := sorted[i].Priority(), sorted[j].Priority()
		if pi != pj {
			return pi > pj
		}
		return sorted[i].seq < sorted[j].seq
	})

	executingSnapshot := append([]*QueuedTask(nil), s.executing...)
	totalCPU := 0
	for _, t := range executingSnapshot {
		totalCPU += t.Description().EstimatedCPUCoreCount()
	}

	var newPending []*QueuedTask
	var admitted []*QueuedTask

	for i, p := range sorted {
		if totalCPU >= maxConcurrentTasks(s.levels, p.Priority()) {
			newPending = append(newPending, sorted[i:]...)
			break
		}

		deps := p.Description().Dependencies(executingSnapshot)

		var waitTargets []*QueuedTask
		cancelIssued := false

		for _, dep := range deps {
			switch dep.Kind {
			case DependencyWait:
				dep.Task.ElevatePriority(p.Priority())
				waitTargets = append(waitTargets, dep.Task)

			case DependencyCancelAndReschedule:
				d := dep.Task
				switch {
				case d.Priority() > p.Priority():
					// Never preempt a more important task.
					d.ElevatePriority(p.Priority())
					waitTargets = append(waitTargets, d)
				case !d.Description().IsIdempotent():
					log.Printf("scheduler: programming fault: task %s requested cancel-and-reschedule of non-idempotent task %s; downgrading to wait", p.ID(), d.ID())
					d.ElevatePriority(p.Priority())
					waitTargets = append(waitTargets, d)
				default:
					d.cancelToReschedule()
					cancelIssued = true
				}
			}
		}

		if cancelIssued {
			newPending = append(newPending, sorted[i:]...)
			break
		}

		if len(waitTargets) > 0 {
			newPending = append(newPending, p)
			continue
		}

		admitted = append(admitted, p)
		totalCPU += p.Description().EstimatedCPUCoreCount()
	}

	s.pending = newPending
	s.executing = append(s.executing, admitted...)
	s.mu.Unlock()

	for _, qt := range admitted {
		go s.runTask(qt)
	}
}

func (s *Scheduler) runTask(qt *QueuedTask) {
	ctx, ok := qt.tryStartExecuting()
	var err error
	if ok {
		qt.notify(StateExecuting)
		err = qt.description.Execute(ctx)
	}
	reschedule := qt.completeExecution(err)
	s.onTaskDone(qt, reschedule)
}

func (s *Scheduler) onTaskDone(qt *QueuedTask, reschedule bool) {
	s.mu.Lock()
	for i, t := range s.executing {
		if t == qt {
			s.executing = append(s.executing[:i], s.executing[i+1:]...)
			break
		}
	}
	if reschedule {
		s.pending = append(s.pending, qt)
	}
	s.mu.Unlock()

	s.poke()
}

func (s *Scheduler) removePending(qt *QueuedTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.pending {
		if t == qt {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// Stats is a point-in-time snapshot useful for progress reporting and
// tests; it makes no ordering or freshness guarantee beyond "true at some
// instant during the call".
type Stats struct {
	Pending   int
	Executing int
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Pending: len(s.pending), Executing: len(s.executing)}
}
