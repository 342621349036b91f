// Package buildserver defines the build-server collaborator contract and a
// concrete in-memory default implementation of it, MapBuildServer,
// suitable both as a real single-process build description and as a test
// double for the scheduler-facing packages.
package buildserver

import (
	"context"

	"github.com/mvp-joe/cortexidx/internal/model"
)

// BuildServer is the narrow interface internal/prepare, internal/indexfile,
// and internal/manager depend on. Production code never assumes anything
// beyond this contract.
type BuildServer interface {
	// WaitForUpToDateBuildGraph blocks until the build description is
	// known to be current.
	WaitForUpToDateBuildGraph(ctx context.Context) error

	// SourceFiles returns every known source file. When
	// includeNonBuildable is false, files with no resolvable target are
	// omitted.
	SourceFiles(ctx context.Context, includeNonBuildable bool) ([]model.DocumentURI, error)

	// Targets returns every target uri belongs to.
	Targets(ctx context.Context, uri model.DocumentURI) ([]model.TargetID, error)

	// CanonicalTarget returns the single target chosen to represent uri,
	// if any.
	CanonicalTarget(ctx context.Context, uri model.DocumentURI) (model.TargetID, bool, error)

	// TargetsDependingOn returns every target that (transitively) depends
	// on any of targets.
	TargetsDependingOn(ctx context.Context, targets []model.TargetID) ([]model.TargetID, error)

	// TopologicalSort returns targets ordered low-level first: a target
	// never precedes one of its dependencies.
	TopologicalSort(ctx context.Context, targets []model.TargetID) ([]model.TargetID, error)

	// DefaultLanguage returns the language the build server would assume
	// for uri if none is given explicitly, scoped to target when target is
	// non-empty.
	DefaultLanguage(ctx context.Context, uri model.DocumentURI, target model.TargetID) (model.Language, bool, error)

	// BuildSettings resolves uri's compiler invocation in target for
	// language. When fallbackAfterTimeout is true, a fallback (is_fallback
	// = true) result may be returned rather than blocking indefinitely.
	BuildSettings(ctx context.Context, uri model.DocumentURI, target model.TargetID, language model.Language, fallbackAfterTimeout bool) (model.BuildSettings, bool, error)

	// Toolchain returns the compiler handle for target (or uri if target
	// is empty) in language.
	Toolchain(ctx context.Context, uri model.DocumentURI, target model.TargetID, language model.Language) (model.Toolchain, bool, error)

	// Prepare builds targets' dependencies so their sources can be
	// type-checked or indexed.
	Prepare(ctx context.Context, targets []model.TargetID) error

	// IndexStorePath is the directory the build server declares for
	// compiler-written index stores, if any.
	IndexStorePath(ctx context.Context) (string, bool, error)
}
