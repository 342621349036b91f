// Package manager implements the semantic index manager: the orchestrator
// that batches files by target, drives preparation and
// update-index-store tasks through the scheduler, and exposes the
// operations an editor integration and a background indexing loop both
// need (schedule-all, reindex, wait-for-up-to-date, files-did-change,
// editor-functionality preparation, and a progress summary).
package manager

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mvp-joe/cortexidx/internal/buildserver"
	"github.com/mvp-joe/cortexidx/internal/freshness"
	"github.com/mvp-joe/cortexidx/internal/fsstate"
	"github.com/mvp-joe/cortexidx/internal/indexfile"
	"github.com/mvp-joe/cortexidx/internal/indexstore"
	"github.com/mvp-joe/cortexidx/internal/model"
	"github.com/mvp-joe/cortexidx/internal/scheduler"
)

// Config wires a Manager to its collaborators. All fields except
// DocumentManager, Log, OnProgressChange and WorkDir are required; an
// empty WorkDir makes the update-index-store task use os.TempDir.
type Config struct {
	Scheduler       *scheduler.Scheduler
	Build           buildserver.BuildServer
	Database        indexstore.Database
	CheckLevel      fsstate.CheckLevel
	DocumentManager fsstate.DocumentManager

	UpdateIndexStoreTimeout time.Duration
	WorkDir                 string
	Log                     indexfile.LogFunc

	// OnProgressChange is invoked, off any internal lock, whenever a
	// transition could affect ProgressStatus.
	OnProgressChange func(ProgressStatus)
}

// Manager is the semantic index manager. It is safe for concurrent use.
type Manager struct {
	scheduler  *scheduler.Scheduler
	build      buildserver.BuildServer
	database   indexstore.Database
	checkLevel fsstate.CheckLevel
	docManager fsstate.DocumentManager

	updateIndexStoreTimeout time.Duration
	workDir                 string
	logFn                   indexfile.LogFunc
	onProgressChange        func(ProgressStatus)

	preparationTracker *freshness.Tracker[model.TargetID, freshness.Dummy]
	indexTracker        *freshness.Tracker[string, model.TargetID]

	mu                    sync.Mutex
	inProgressPrepTasks   map[model.TargetID]prepEntry
	inProgressIndexTasks  map[model.DocumentURI]*fileEntry
	scheduleTasks         map[uuid.UUID]*scheduler.QueuedTask
	inProgressEditorPrep  *editorPrepEntry

	now func() time.Time
}

// New constructs a Manager from cfg.
func New(cfg Config) *Manager {
	return &Manager{
		scheduler:               cfg.Scheduler,
		build:                   cfg.Build,
		database:                cfg.Database,
		checkLevel:              cfg.CheckLevel,
		docManager:              cfg.DocumentManager,
		updateIndexStoreTimeout: cfg.UpdateIndexStoreTimeout,
		workDir:                 cfg.WorkDir,
		logFn:                   cfg.Log,
		onProgressChange:        cfg.OnProgressChange,

		preparationTracker: freshness.New[model.TargetID, freshness.Dummy](),
		indexTracker:       freshness.New[string, model.TargetID](),

		inProgressPrepTasks:  make(map[model.TargetID]prepEntry),
		inProgressIndexTasks: make(map[model.DocumentURI]*fileEntry),
		scheduleTasks:        make(map[uuid.UUID]*scheduler.QueuedTask),

		now: time.Now,
	}
}
