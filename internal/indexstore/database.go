// Package indexstore defines the opaque index-database collaborator and a
// concrete SQLite-backed implementation of it. Production code in
// internal/checkedindex and internal/indexfile depends only on the
// Database interface; SQLiteDatabase is one way to satisfy it, built on a
// SQLite+squirrel storage layer.
package indexstore

import (
	"context"
	"time"

	"github.com/mvp-joe/cortexidx/internal/model"
)

// Database is the opaque index database collaborator. It never interprets
// freshness itself — that is CheckedIndex's job — it only stores and
// retrieves what compilers reported.
type Database interface {
	// ForEachSymbolOccurrence streams occurrences of usr matching any of
	// roles to cb. Iteration stops early if cb returns false.
	ForEachSymbolOccurrence(ctx context.Context, usr string, roles model.SymbolRole, cb func(model.Occurrence) bool) error

	// OccurrencesOfUSR returns every occurrence of usr matching roles.
	OccurrencesOfUSR(ctx context.Context, usr string, roles model.SymbolRole) ([]model.Occurrence, error)

	// OccurrencesRelatedToUSR returns every occurrence related to usr
	// (via RelatedUSRs) matching roles.
	OccurrencesRelatedToUSR(ctx context.Context, usr string, roles model.SymbolRole) ([]model.Occurrence, error)

	// SymbolsInFile returns every symbol declared or defined in path.
	SymbolsInFile(ctx context.Context, path string) ([]model.Symbol, error)

	// UnitTests returns every occurrence tagged RoleUnitTest, optionally
	// restricted to ones whose main file is in mainFiles.
	UnitTests(ctx context.Context, mainFiles []string) ([]model.Occurrence, error)

	// DateOfLatestUnitFor returns the timestamp of the most recently
	// written unit whose source is path, and whether any unit exists.
	DateOfLatestUnitFor(ctx context.Context, path string) (time.Time, bool, error)

	// DateOfUnitFor returns the timestamp of the unit recorded under the
	// exact output path, and whether it exists.
	DateOfUnitFor(ctx context.Context, outputPath string) (time.Time, bool, error)

	// ProcessUnitsForOutputPathsAndWait ingests any newly written units at
	// the given output paths and blocks until they are visible to readers.
	ProcessUnitsForOutputPathsAndWait(ctx context.Context, outputPaths []string) error

	// PollForUnitChangesAndWait blocks until the database has scanned for
	// any unit files written outside of ProcessUnitsForOutputPathsAndWait
	// (e.g. by another process) and ingested them.
	PollForUnitChangesAndWait(ctx context.Context) error

	// CanonicalSymbolOccurrences returns one representative occurrence per
	// symbol whose name matches pattern according to opts: a definition if
	// one exists for that symbol, else a declaration. The SQLite
	// implementation returns them in (path, line, column) order.
	CanonicalSymbolOccurrences(ctx context.Context, pattern string, opts NameMatchOptions) ([]model.Occurrence, error)

	// MainFilesContainingFile returns the main files that include path,
	// optionally considering cross-language inclusion (e.g. a header
	// included from both Swift bridging headers and Clang TUs).
	MainFilesContainingFile(ctx context.Context, path string, crossLanguage bool) ([]string, error)

	// Close releases the database's resources. After Close, every
	// operation must return ErrClosed rather than block or panic.
	Close() error
}

// NameMatchOptions controls how CanonicalSymbolOccurrences matches a
// symbol's name against a pattern.
type NameMatchOptions struct {
	// AnchorStart requires the match to begin at the first character of
	// the name (or, with Subsequence, the first matched character to be
	// the name's first character).
	AnchorStart bool
	// AnchorEnd requires the match to end at the last character of the
	// name (or, with Subsequence, the last matched character to be the
	// name's last character).
	AnchorEnd bool
	// Subsequence matches pattern as an in-order, non-contiguous
	// subsequence of the name rather than a contiguous substring.
	Subsequence bool
	// IgnoreCase folds both name and pattern before comparing.
	IgnoreCase bool
}

// UnitRecord is one compilation-unit row as written by an update-index-
// store task, used by both WriteUnit and test doubles.
type UnitRecord struct {
	SourcePath string
	OutputPath string
	MainPath   string
	Target     string
	Timestamp  time.Time
}
