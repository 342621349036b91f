package scheduler_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/cortexidx/internal/scheduler"
)

// fakeTask is a minimal TaskDescription for exercising the dispatcher in
// isolation from any real indexing work.
type fakeTask struct {
	name      string
	cpu       int
	idemp     bool
	deps      func([]*scheduler.QueuedTask) []scheduler.Dependency
	onExecute func(ctx context.Context) error

	started  chan struct{}
	release  chan struct{}
	executed atomic.Int32
}

func newFakeTask(name string) *fakeTask {
	return &fakeTask{
		name:    name,
		cpu:     1,
		idemp:   true,
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (f *fakeTask) Execute(ctx context.Context) error {
	f.executed.Add(1)
	f.started <- struct{}{}
	if f.onExecute != nil {
		return f.onExecute(ctx)
	}
	select {
	case <-f.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTask) IsIdempotent() bool          { return f.idemp }
func (f *fakeTask) EstimatedCPUCoreCount() int  { return f.cpu }
func (f *fakeTask) Dependencies(cur []*scheduler.QueuedTask) []scheduler.Dependency {
	if f.deps == nil {
		return nil
	}
	return f.deps(cur)
}

func levels(maxConcurrent int) []scheduler.Level {
	return []scheduler.Level{
		{Priority: scheduler.PriorityHigh, MaxConcurrentTasks: maxConcurrent},
		{Priority: scheduler.PriorityMedium, MaxConcurrentTasks: maxConcurrent},
		{Priority: scheduler.PriorityLow, MaxConcurrentTasks: maxConcurrent},
		{Priority: scheduler.PriorityBackground, MaxConcurrentTasks: maxConcurrent},
	}
}

func TestNewRejectsBadLevels(t *testing.T) {
	_, err := scheduler.New(nil)
	require.Error(t, err)

	_, err = scheduler.New([]scheduler.Level{
		{Priority: scheduler.PriorityLow, MaxConcurrentTasks: 4},
		{Priority: scheduler.PriorityHigh, MaxConcurrentTasks: 4},
	})
	require.Error(t, err, "levels must be strictly descending")

	_, err = scheduler.New([]scheduler.Level{
		{Priority: scheduler.PriorityHigh, MaxConcurrentTasks: 2},
		{Priority: scheduler.PriorityLow, MaxConcurrentTasks: 4},
	})
	require.Error(t, err, "concurrency must be monotone non-increasing")
}

// P1: |currently_executing| never exceeds max_concurrent_tasks at a level.
func TestConcurrencyCapRespected(t *testing.T) {
	s, err := scheduler.New(levels(2))
	require.NoError(t, err)
	defer s.Close()

	tasks := make([]*fakeTask, 5)
	handles := make([]*scheduler.QueuedTask, 5)
	for i := range tasks {
		tasks[i] = newFakeTask("t")
		handles[i] = s.Schedule(scheduler.PriorityMedium, tasks[i], nil)
	}

	// Exactly 2 should have started; wait briefly and assert the cap held.
	deadline := time.After(2 * time.Second)
	started := 0
	for started < 2 {
		select {
		case <-tasks[0].started:
			started++
		case <-tasks[1].started:
			started++
		case <-tasks[2].started:
			started++
		case <-tasks[3].started:
			started++
		case <-tasks[4].started:
			started++
		case <-deadline:
			t.Fatal("timed out waiting for tasks to start")
		}
	}

	time.Sleep(50 * time.Millisecond)
	stats := s.Stats()
	assert.LessOrEqual(t, stats.Executing, 2)

	// Release all and let everything finish.
	for _, ft := range tasks {
		close(ft.release)
	}
	for _, h := range handles {
		require.NoError(t, h.Wait(context.Background()))
	}
}

func TestWaitDependencyBlocksAdmission(t *testing.T) {
	s, err := scheduler.New(levels(4))
	require.NoError(t, err)
	defer s.Close()

	blocker := newFakeTask("blocker")
	blockerHandle := s.Schedule(scheduler.PriorityLow, blocker, nil)
	<-blocker.started

	waiter := newFakeTask("waiter")
	var waiterHandle *scheduler.QueuedTask
	waiter.deps = func(cur []*scheduler.QueuedTask) []scheduler.Dependency {
		for _, c := range cur {
			if c == blockerHandle {
				return []scheduler.Dependency{scheduler.Wait(c)}
			}
		}
		return nil
	}
	waiterHandle = s.Schedule(scheduler.PriorityLow, waiter, nil)

	select {
	case <-waiter.started:
		t.Fatal("waiter should not start while its dependency is executing")
	case <-time.After(150 * time.Millisecond):
	}

	close(blocker.release)
	require.NoError(t, blockerHandle.Wait(context.Background()))

	select {
	case <-waiter.started:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never started after dependency finished")
	}
	close(waiter.release)
	require.NoError(t, waiterHandle.Wait(context.Background()))
}

// P2: a non-idempotent task is never cancelled-to-reschedule.
func TestNonIdempotentNeverCancelled(t *testing.T) {
	s, err := scheduler.New([]scheduler.Level{
		{Priority: scheduler.PriorityHigh, MaxConcurrentTasks: 2},
		{Priority: scheduler.PriorityLow, MaxConcurrentTasks: 1},
	})
	require.NoError(t, err)
	defer s.Close()

	victim := newFakeTask("victim")
	victim.idemp = false
	victimHandle := s.Schedule(scheduler.PriorityLow, victim, nil)
	<-victim.started

	preemptor := newFakeTask("preemptor")
	preemptor.deps = func(cur []*scheduler.QueuedTask) []scheduler.Dependency {
		for _, c := range cur {
			if c == victimHandle {
				return []scheduler.Dependency{scheduler.CancelAndReschedule(c)}
			}
		}
		return nil
	}
	s.Schedule(scheduler.PriorityHigh, preemptor, nil)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), victim.executed.Load(), "non-idempotent victim must not be restarted")
	assert.Equal(t, scheduler.StateExecuting, victimHandle.State())

	close(victim.release)
	require.NoError(t, victimHandle.Wait(context.Background()))
}

func TestIdempotentCancelAndReschedule(t *testing.T) {
	s, err := scheduler.New([]scheduler.Level{
		{Priority: scheduler.PriorityHigh, MaxConcurrentTasks: 2},
		{Priority: scheduler.PriorityLow, MaxConcurrentTasks: 1},
	})
	require.NoError(t, err)
	defer s.Close()

	var mu sync.Mutex
	executions := 0

	victim := newFakeTask("victim")
	victim.onExecute = func(ctx context.Context) error {
		mu.Lock()
		executions++
		mu.Unlock()
		select {
		case <-victim.release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	victimHandle := s.Schedule(scheduler.PriorityLow, victim, nil)
	<-victim.started

	preemptor := newFakeTask("preemptor")
	preemptor.deps = func(cur []*scheduler.QueuedTask) []scheduler.Dependency {
		for _, c := range cur {
			if c == victimHandle {
				return []scheduler.Dependency{scheduler.CancelAndReschedule(c)}
			}
		}
		return nil
	}
	preemptorHandle := s.Schedule(scheduler.PriorityHigh, preemptor, nil)
	close(preemptor.release)

	require.NoError(t, preemptorHandle.Wait(context.Background()))

	// Victim should be restarted (and this time simply finish).
	select {
	case <-victim.started:
	case <-time.After(2 * time.Second):
		t.Fatal("victim never restarted")
	}
	close(victim.release)
	require.NoError(t, victimHandle.Wait(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, executions, 2)
}

func TestHigherPriorityDependencyIsNeverPreempted(t *testing.T) {
	s, err := scheduler.New(levels(2))
	require.NoError(t, err)
	defer s.Close()

	victim := newFakeTask("victim")
	victimHandle := s.Schedule(scheduler.PriorityHigh, victim, nil)
	<-victim.started

	preemptor := newFakeTask("preemptor")
	preemptor.deps = func(cur []*scheduler.QueuedTask) []scheduler.Dependency {
		for _, c := range cur {
			if c == victimHandle {
				return []scheduler.Dependency{scheduler.CancelAndReschedule(c)}
			}
		}
		return nil
	}
	s.Schedule(scheduler.PriorityLow, preemptor, nil)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), victim.executed.Load())
	close(victim.release)
	require.NoError(t, victimHandle.Wait(context.Background()))
}

func TestOwnerCancelPending(t *testing.T) {
	s, err := scheduler.New(levels(1))
	require.NoError(t, err)
	defer s.Close()

	blocker := newFakeTask("blocker")
	s.Schedule(scheduler.PriorityMedium, blocker, nil)
	<-blocker.started

	queued := newFakeTask("queued")
	qh := s.Schedule(scheduler.PriorityMedium, queued, nil)
	qh.Cancel()

	err = qh.Wait(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(0), queued.executed.Load())

	close(blocker.release)
}

func TestWaitPropagatingCancellationCancelsTask(t *testing.T) {
	s, err := scheduler.New(levels(1))
	require.NoError(t, err)
	defer s.Close()

	task := newFakeTask("t")
	qh := s.Schedule(scheduler.PriorityMedium, task, nil)
	<-task.started

	ctx, cancel := context.WithCancel(context.Background())
	var waitErr error
	done := make(chan struct{})
	go func() {
		waitErr = qh.WaitPropagatingCancellation(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitPropagatingCancellation did not return")
	}
	assert.Error(t, waitErr)
	assert.Equal(t, scheduler.StateCancelled, qh.State())
}

func TestElevatePriorityIsMonotone(t *testing.T) {
	s, err := scheduler.New(levels(4))
	require.NoError(t, err)
	defer s.Close()

	task := newFakeTask("t")
	qh := s.Schedule(scheduler.PriorityLow, task, nil)
	qh.ElevatePriority(scheduler.PriorityHigh)
	assert.Equal(t, scheduler.PriorityHigh, qh.Priority())

	qh.ElevatePriority(scheduler.PriorityLow)
	assert.Equal(t, scheduler.PriorityHigh, qh.Priority(), "priority must never decrease")

	<-task.started
	close(task.release)
	require.NoError(t, qh.Wait(context.Background()))
}
