package buildserver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dominikbraun/graph"

	"github.com/mvp-joe/cortexidx/internal/model"
)

// TargetDescription is one target's static description as known to
// MapBuildServer: its member files, its declared dependencies, the
// language/build-settings for each member, and the toolchain it builds
// with.
type TargetDescription struct {
	ID           model.TargetID
	Dependencies []model.TargetID
	Files        []model.DocumentURI
	Language     model.Language
	Settings     model.BuildSettings
	Toolchain    model.Toolchain
}

// MapBuildServer is a straightforward, in-memory BuildServer grounded on a
// fixed map of targets — the shape a single-process indexer or a test
// harness populates up front, as opposed to the real sourcekit-lsp build
// server protocol this module does not implement (see DESIGN.md). Its
// dependency graph is held as a dominikbraun/graph graph so
// TopologicalSort and TargetsDependingOn reuse one well-tested traversal.
type MapBuildServer struct {
	mu           sync.RWMutex
	targets      map[model.TargetID]TargetDescription
	canonical    map[model.DocumentURI]model.TargetID
	indexStoreDir string

	depGraph graph.Graph[string, string]

	prepareFn func(ctx context.Context, targets []model.TargetID) error
}

// NewMapBuildServer constructs a MapBuildServer from a fixed set of target
// descriptions. canonical assigns each file its single representative
// target when it belongs to more than one.
func NewMapBuildServer(targets []TargetDescription, canonical map[model.DocumentURI]model.TargetID, indexStoreDir string) (*MapBuildServer, error) {
	s := &MapBuildServer{
		targets:       make(map[model.TargetID]TargetDescription, len(targets)),
		canonical:     canonical,
		indexStoreDir: indexStoreDir,
		depGraph:      graph.New(graph.StringHash, graph.Directed()),
	}
	if s.canonical == nil {
		s.canonical = make(map[model.DocumentURI]model.TargetID)
	}

	for _, t := range targets {
		s.targets[t.ID] = t
		if err := s.depGraph.AddVertex(string(t.ID)); err != nil && err != graph.ErrVertexAlreadyExists {
			return nil, fmt.Errorf("buildserver: adding target %s: %w", t.ID, err)
		}
	}
	for _, t := range targets {
		for _, dep := range t.Dependencies {
			if err := s.depGraph.AddEdge(string(dep), string(t.ID)); err != nil {
				return nil, fmt.Errorf("buildserver: adding dependency %s -> %s: %w", dep, t.ID, err)
			}
		}
	}

	return s, nil
}

// SetPrepareFunc installs the behavior Prepare invokes; useful for tests
// that want to observe or fail preparation without a real toolchain.
func (s *MapBuildServer) SetPrepareFunc(fn func(ctx context.Context, targets []model.TargetID) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepareFn = fn
}

func (s *MapBuildServer) WaitForUpToDateBuildGraph(ctx context.Context) error {
	return nil // the map is supplied fully formed; there is nothing to await
}

func (s *MapBuildServer) SourceFiles(ctx context.Context, includeNonBuildable bool) ([]model.DocumentURI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[model.DocumentURI]struct{})
	var out []model.DocumentURI
	for _, t := range s.targets {
		for _, f := range t.Files {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MapBuildServer) Targets(ctx context.Context, uri model.DocumentURI) ([]model.TargetID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.TargetID
	for _, t := range s.targets {
		for _, f := range t.Files {
			if f == uri {
				out = append(out, t.ID)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MapBuildServer) CanonicalTarget(ctx context.Context, uri model.DocumentURI) (model.TargetID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.canonical[uri]; ok {
		return t, true, nil
	}
	targets, err := s.Targets(ctx, uri)
	if err != nil || len(targets) == 0 {
		return "", false, err
	}
	return targets[0], true, nil
}

func (s *MapBuildServer) TargetsDependingOn(ctx context.Context, targets []model.TargetID) ([]model.TargetID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seed := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		seed[string(t)] = struct{}{}
	}

	adjacency, err := s.depGraph.AdjacencyMap()
	if err != nil {
		return nil, fmt.Errorf("buildserver: computing adjacency map: %w", err)
	}

	result := make(map[string]struct{})
	var visit func(id string)
	visit = func(id string) {
		for dependent := range adjacency[id] {
			if _, ok := result[dependent]; ok {
				continue
			}
			result[dependent] = struct{}{}
			visit(dependent)
		}
	}
	for t := range seed {
		visit(t)
	}

	out := make([]model.TargetID, 0, len(result))
	for id := range result {
		out = append(out, model.TargetID(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// TopologicalSort returns targets ordered low-level first. When targets is
// non-empty, the full-graph order is filtered down to just the requested
// set, preserving relative order.
func (s *MapBuildServer) TopologicalSort(ctx context.Context, targets []model.TargetID) ([]model.TargetID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, err := graph.TopologicalSort(s.depGraph)
	if err != nil {
		return nil, fmt.Errorf("buildserver: topological sort: %w", err)
	}

	if len(targets) == 0 {
		out := make([]model.TargetID, len(order))
		for i, id := range order {
			out[i] = model.TargetID(id)
		}
		return out, nil
	}

	want := make(map[model.TargetID]struct{}, len(targets))
	for _, t := range targets {
		want[t] = struct{}{}
	}
	var out []model.TargetID
	for _, id := range order {
		tid := model.TargetID(id)
		if _, ok := want[tid]; ok {
			out = append(out, tid)
		}
	}
	return out, nil
}

func (s *MapBuildServer) DefaultLanguage(ctx context.Context, uri model.DocumentURI, target model.TargetID) (model.Language, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if target != "" {
		t, ok := s.targets[target]
		if !ok {
			return model.Language{}, false, nil
		}
		return t.Language, true, nil
	}
	targets, err := s.Targets(ctx, uri)
	if err != nil || len(targets) == 0 {
		return model.Language{}, false, err
	}
	return s.targets[targets[0]].Language, true, nil
}

func (s *MapBuildServer) BuildSettings(ctx context.Context, uri model.DocumentURI, target model.TargetID, language model.Language, fallbackAfterTimeout bool) (model.BuildSettings, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.targets[target]
	if !ok {
		return model.BuildSettings{}, false, nil
	}
	return t.Settings, true, nil
}

func (s *MapBuildServer) Toolchain(ctx context.Context, uri model.DocumentURI, target model.TargetID, language model.Language) (model.Toolchain, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if target == "" {
		targets, err := s.Targets(ctx, uri)
		if err != nil || len(targets) == 0 {
			return model.Toolchain{}, false, err
		}
		target = targets[0]
	}
	t, ok := s.targets[target]
	if !ok {
		return model.Toolchain{}, false, nil
	}
	return t.Toolchain, true, nil
}

func (s *MapBuildServer) Prepare(ctx context.Context, targets []model.TargetID) error {
	s.mu.RLock()
	fn := s.prepareFn
	s.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, targets)
}

func (s *MapBuildServer) IndexStorePath(ctx context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.indexStoreDir == "" {
		return "", false, nil
	}
	return s.indexStoreDir, true, nil
}

var _ BuildServer = (*MapBuildServer)(nil)
