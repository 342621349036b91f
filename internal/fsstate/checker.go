// Package fsstate implements the mtime/existence checker used to decide
// whether index data is still fresh.
// A Checker is scoped to a single consumer request: its caches are never
// invalidated, so holding one across requests would silently serve stale
// answers forever.
package fsstate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/maypok86/otter"
)

// MaxSymlinkDepth bounds the chain-following walk in mtime(); exceeding it
// is treated as a cycle, since a real filesystem cannot nest real symlinks
// this deep.
const MaxSymlinkDepth = 40

// ErrSymlinkCycle identifies a symlink chain that revisits a path or
// exceeds MaxSymlinkDepth. Mtime does not return it: it reports such
// chains as NotExist.
var ErrSymlinkCycle = errors.New("fsstate: symlink cycle detected")

// Mtime is the result of resolving a URI's modification time: either a
// concrete instant, or NotExist if no file is reachable at the end of the
// (possibly empty) symlink chain.
type Mtime struct {
	NotExist bool
	Time     time.Time
}

// DocumentManager reports whether a document has unsaved, in-memory edits
// not yet reflected on disk — the collaborator behind CheckLevel
// InMemoryModifiedFiles.
type DocumentManager interface {
	HasUnsavedEdits(uri string) bool
}

// CheckLevel controls how aggressively a Checker considers index data
// stale.
type CheckLevel int

const (
	// DeletedFiles treats the index as stale only when the source file no
	// longer exists.
	DeletedFiles CheckLevel = iota
	// ModifiedFiles additionally treats it as stale when the on-disk mtime
	// is newer than the recorded unit timestamp.
	ModifiedFiles
	// InMemoryModifiedFiles additionally treats it as stale when the
	// document manager reports unsaved edits.
	InMemoryModifiedFiles
)

// Checker caches filesystem existence and mtime lookups for the lifetime of
// one consumer request. It is not safe to reuse across requests and is safe
// for concurrent use within one.
type Checker struct {
	level CheckLevel
	dm    DocumentManager

	mtimeCache  otter.Cache[string, Mtime]
	existsCache otter.Cache[string, bool]
}

// maxCacheEntries bounds the per-request cache; a single consumer request
// (one build-graph scan, one editor round-trip) touches at most a few
// thousand distinct paths in practice.
const maxCacheEntries = 1 << 16

// New constructs a Checker at the given level. dm may be nil unless level
// is InMemoryModifiedFiles.
func New(level CheckLevel, dm DocumentManager) (*Checker, error) {
	mtimeCache, err := otter.MustBuilder[string, Mtime](maxCacheEntries).Build()
	if err != nil {
		return nil, fmt.Errorf("fsstate: building mtime cache: %w", err)
	}
	existsCache, err := otter.MustBuilder[string, bool](maxCacheEntries).Build()
	if err != nil {
		return nil, fmt.Errorf("fsstate: building exists cache: %w", err)
	}
	return &Checker{level: level, dm: dm, mtimeCache: mtimeCache, existsCache: existsCache}, nil
}

// Level reports the CheckLevel this instance was constructed with.
func (c *Checker) Level() CheckLevel { return c.level }

// Exists reports whether path resolves to an existing file, following
// symlinks. Results are cached for the lifetime of the Checker.
func (c *Checker) Exists(path string) bool {
	if v, ok := c.existsCache.Get(path); ok {
		return v
	}
	m := c.Mtime(path)
	exists := !m.NotExist
	c.existsCache.Set(path, exists)
	return exists
}

// Mtime returns the maximum modification time observed across path's
// symlink chain: a symlink's effective freshness is the newest of every
// link and the final target. Missing files, and chains
// that exceed MaxSymlinkDepth or revisit a path, map to NotExist (cycles
// are deliberately swallowed into NotExist so callers do not need to
// distinguish them from "not found").
func (c *Checker) Mtime(path string) Mtime {
	if v, ok := c.mtimeCache.Get(path); ok {
		return v
	}
	m := c.resolveMtime(path)
	c.mtimeCache.Set(path, m)
	return m
}

func (c *Checker) resolveMtime(path string) Mtime {
	seen := make(map[string]struct{}, 4)
	cur := path
	var max time.Time
	haveAny := false

	for depth := 0; ; depth++ {
		if depth > MaxSymlinkDepth {
			return Mtime{NotExist: true}
		}
		if _, ok := seen[cur]; ok {
			return Mtime{NotExist: true}
		}
		seen[cur] = struct{}{}

		info, err := os.Lstat(cur)
		if err != nil {
			return Mtime{NotExist: true}
		}

		if mt := info.ModTime(); !haveAny || mt.After(max) {
			max = mt
		}
		haveAny = true

		if info.Mode()&os.ModeSymlink == 0 {
			return Mtime{Time: max}
		}

		target, err := os.Readlink(cur)
		if err != nil {
			return Mtime{NotExist: true}
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(cur), target)
		}
		cur = target
	}
}

// HasUnsavedEdits reports whether the document manager (if any) has
// in-memory edits for uri. Always false when the Checker's level is below
// InMemoryModifiedFiles or no document manager was supplied.
func (c *Checker) HasUnsavedEdits(uri string) bool {
	if c.level < InMemoryModifiedFiles || c.dm == nil {
		return false
	}
	return c.dm.HasUnsavedEdits(uri)
}

// IsStale evaluates staleness at the Checker's configured level:
// recordedUnitTime is the modification time the index recorded for path
// when its unit was last written.
func (c *Checker) IsStale(path string, recordedUnitTime time.Time) bool {
	m := c.Mtime(path)
	if m.NotExist {
		return true
	}
	if c.level == DeletedFiles {
		return false
	}
	if m.Time.After(recordedUnitTime) {
		return true
	}
	if c.level == InMemoryModifiedFiles && c.HasUnsavedEdits(path) {
		return true
	}
	return false
}
