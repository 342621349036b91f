package manager

import (
	"context"

	"github.com/google/uuid"

	"github.com/mvp-joe/cortexidx/internal/freshness"
	"github.com/mvp-joe/cortexidx/internal/model"
	"github.com/mvp-joe/cortexidx/internal/prepare"
	"github.com/mvp-joe/cortexidx/internal/scheduler"
)

// SchedulePreparationForEditorFunctionality: at most one
// editor-preparation task is ever outstanding; requesting the same document
// again is a no-op, and requesting a different one cancels the previous
// request only if it has not yet started executing (a running preparation
// always runs to completion).
func (m *Manager) SchedulePreparationForEditorFunctionality(uri model.DocumentURI, priority scheduler.Priority) {
	m.mu.Lock()
	if m.inProgressEditorPrep != nil && m.inProgressEditorPrep.document == uri {
		m.mu.Unlock()
		return
	}
	prev := m.inProgressEditorPrep
	m.inProgressEditorPrep = nil
	m.mu.Unlock()

	if prev != nil && prev.task.State() == scheduler.StatePending {
		prev.task.Cancel()
	}

	id := uuid.New()
	task := &editorPrepTask{manager: m, uri: uri, preparePriority: priority}
	qt := m.scheduler.Schedule(priority, task, func(state scheduler.State) {
		if state != scheduler.StateFinished && state != scheduler.StateCancelled {
			return
		}
		m.mu.Lock()
		if m.inProgressEditorPrep != nil && m.inProgressEditorPrep.id == id {
			m.inProgressEditorPrep = nil
		}
		m.mu.Unlock()
		m.notifyProgress()
	})

	m.mu.Lock()
	m.inProgressEditorPrep = &editorPrepEntry{id: id, document: uri, task: qt}
	m.mu.Unlock()
	m.notifyProgress()
}

// editorPrepTask resolves uri's canonical target and prepares it for editor
// functionality.
type editorPrepTask struct {
	manager         *Manager
	uri             model.DocumentURI
	preparePriority scheduler.Priority
}

func (t *editorPrepTask) IsIdempotent() bool         { return true }
func (t *editorPrepTask) EstimatedCPUCoreCount() int { return 1 }
func (t *editorPrepTask) Dependencies(_ []*scheduler.QueuedTask) []scheduler.Dependency {
	return nil
}

func (t *editorPrepTask) Execute(ctx context.Context) error {
	m := t.manager
	target, ok, err := m.build.CanonicalTarget(ctx, t.uri)
	if err != nil || !ok {
		return err
	}
	prepTask := prepare.New(prepare.ForEditorFunctionality, []model.TargetID{target}, m.build, m.preparationTracker)
	qt := m.scheduler.Schedule(t.preparePriority, prepTask, nil)
	return qt.Wait(ctx)
}

// PrepareTargetsForSourcekitOptions returns false without doing
// anything if target is already up-to-date, otherwise prepares it for
// editor functionality and returns true.
func (m *Manager) PrepareTargetsForSourcekitOptions(ctx context.Context, target model.TargetID) (bool, error) {
	if m.preparationTracker.IsUpToDate(target, freshness.Dummy{}) {
		return false, nil
	}
	prepTask := prepare.New(prepare.ForEditorFunctionality, []model.TargetID{target}, m.build, m.preparationTracker)
	qt := m.scheduler.Schedule(scheduler.PriorityHigh, prepTask, nil)
	if err := qt.Wait(ctx); err != nil {
		return false, err
	}
	return true, nil
}
