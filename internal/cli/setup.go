package cli

import (
	"fmt"
	"time"

	"github.com/mvp-joe/cortexidx/internal/buildserver"
	"github.com/mvp-joe/cortexidx/internal/config"
	"github.com/mvp-joe/cortexidx/internal/fsstate"
	"github.com/mvp-joe/cortexidx/internal/indexlock"
	"github.com/mvp-joe/cortexidx/internal/indexstore"
	"github.com/mvp-joe/cortexidx/internal/manager"
	"github.com/mvp-joe/cortexidx/internal/model"
	"github.com/mvp-joe/cortexidx/internal/scheduler"
)

// daemon bundles the assembled collaborators a CLI command drives, plus
// their teardown.
type daemon struct {
	Manager *manager.Manager

	db    *indexstore.SQLiteDatabase
	sched *scheduler.Scheduler
	lock  *indexlock.Lock
}

// newDaemon loads configuration from rootDir, discovers targets on disk,
// and assembles a Manager wired to a real SQLite index store and
// compiler toolchain.
func newDaemon(rootDir string, onProgress func(manager.ProgressStatus)) (*daemon, error) {
	cfg, err := config.LoadConfigFromDir(rootDir)
	if err != nil {
		return nil, fmt.Errorf("cli: loading configuration: %w", err)
	}

	lock, err := indexlock.Acquire(cfg.Storage.IndexStoreDir)
	if err != nil {
		return nil, fmt.Errorf("cli: acquiring index-store lock: %w", err)
	}
	if lock == nil {
		return nil, fmt.Errorf("cli: another cortexidxd instance already owns %s", cfg.Storage.IndexStoreDir)
	}

	targets, err := buildserver.DiscoverTargets(rootDir, buildserver.LanguagePatterns{
		Swift:  cfg.Paths.Swift,
		Clang:  cfg.Paths.Clang,
		Ignore: cfg.Paths.Ignore,
	}, toolchainFromConfig(cfg))
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("cli: discovering targets: %w", err)
	}

	build, err := buildserver.NewMapBuildServer(targets, nil, cfg.Storage.IndexStoreDir)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("cli: building target map: %w", err)
	}

	db, err := indexstore.Open(cfg.Storage.DatabasePath)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("cli: opening index database: %w", err)
	}

	sched, err := scheduler.New([]scheduler.Level{
		{Priority: scheduler.PriorityHigh, MaxConcurrentTasks: cfg.Scheduler.HighConcurrency},
		{Priority: scheduler.PriorityMedium, MaxConcurrentTasks: cfg.Scheduler.MediumConcurrency},
		{Priority: scheduler.PriorityLow, MaxConcurrentTasks: cfg.Scheduler.LowConcurrency},
		{Priority: scheduler.PriorityBackground, MaxConcurrentTasks: cfg.Scheduler.BackgroundConcurrency},
	})
	if err != nil {
		db.Close()
		lock.Release()
		return nil, fmt.Errorf("cli: constructing scheduler: %w", err)
	}

	m := manager.New(manager.Config{
		Scheduler:               sched,
		Build:                   build,
		Database:                db,
		CheckLevel:              fsstate.ModifiedFiles,
		UpdateIndexStoreTimeout: time.Duration(cfg.Storage.UpdateIndexStoreTimeoutSeconds) * time.Second,
		WorkDir:                 cfg.Storage.IndexStoreDir,
		OnProgressChange:        onProgress,
	})

	return &daemon{Manager: m, db: db, sched: sched, lock: lock}, nil
}

func toolchainFromConfig(cfg *config.Config) model.Toolchain {
	return model.Toolchain{
		Identifier: "cortexidx-discovered",
		SwiftC:     cfg.Toolchain.SwiftC,
		Clang:      cfg.Toolchain.Clang,
	}
}

// Close releases every collaborator the daemon owns, in reverse
// acquisition order.
func (d *daemon) Close() {
	d.sched.Close()
	d.db.Close()
	d.lock.Release()
}
