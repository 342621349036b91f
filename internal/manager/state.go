package manager

import (
	"github.com/google/uuid"

	"github.com/mvp-joe/cortexidx/internal/model"
	"github.com/mvp-joe/cortexidx/internal/prepare"
	"github.com/mvp-joe/cortexidx/internal/scheduler"
)

// InProgressIndexState is one file's position in the per-file state
// machine: absent -> Waiting -> Preparing -> UpdatingIndexStore -> absent.
// "absent" is represented by the file having no entry in
// Manager.inProgressIndexTasks at all.
type InProgressIndexState int

const (
	StateWaitingForPreparation InProgressIndexState = iota
	StatePreparing
	StateUpdatingIndexStore
)

func (s InProgressIndexState) String() string {
	switch s {
	case StateWaitingForPreparation:
		return "waiting_for_preparation"
	case StatePreparing:
		return "preparing"
	case StateUpdatingIndexStore:
		return "updating_index_store"
	default:
		return "unknown"
	}
}

// fileEntry is one file's in_progress_index_tasks entry.
type fileEntry struct {
	state  InProgressIndexState
	target model.TargetID

	prepTask   *scheduler.QueuedTask // the preparation task this file is or was waiting on
	updateTask *scheduler.QueuedTask // set once state is StateUpdatingIndexStore
}

// prepEntry is one target's in_progress_prep_tasks entry.
type prepEntry struct {
	queued  *scheduler.QueuedTask
	purpose prepare.Purpose
}

// editorPrepEntry is the manager's single in_progress_prepare_for_editor
// slot.
type editorPrepEntry struct {
	id       uuid.UUID
	document model.DocumentURI
	task     *scheduler.QueuedTask
}
