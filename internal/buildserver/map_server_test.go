package buildserver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/cortexidx/internal/buildserver"
	"github.com/mvp-joe/cortexidx/internal/model"
)

func fixtureServer(t *testing.T) *buildserver.MapBuildServer {
	t.Helper()
	targets := []buildserver.TargetDescription{
		{ID: "Core", Files: []model.DocumentURI{"/repo/Core/A.swift"}, Language: model.LanguageSwift},
		{ID: "App", Dependencies: []model.TargetID{"Core"}, Files: []model.DocumentURI{"/repo/App/B.swift"}, Language: model.LanguageSwift},
		{ID: "AppTests", Dependencies: []model.TargetID{"App"}, Files: []model.DocumentURI{"/repo/AppTests/BTests.swift"}, Language: model.LanguageSwift},
	}
	s, err := buildserver.NewMapBuildServer(targets, nil, "/repo/.index-store")
	require.NoError(t, err)
	return s
}

func TestTopologicalSortOrdersDependenciesFirst(t *testing.T) {
	s := fixtureServer(t)
	order, err := s.TopologicalSort(context.Background(), nil)
	require.NoError(t, err)

	pos := make(map[model.TargetID]int, len(order))
	for i, t := range order {
		pos[t] = i
	}
	assert.Less(t, pos["Core"], pos["App"])
	assert.Less(t, pos["App"], pos["AppTests"])
}

func TestTopologicalSortFiltersToRequestedSubset(t *testing.T) {
	s := fixtureServer(t)
	order, err := s.TopologicalSort(context.Background(), []model.TargetID{"AppTests", "Core"})
	require.NoError(t, err)
	assert.Equal(t, []model.TargetID{"Core", "AppTests"}, order)
}

func TestTargetsDependingOn(t *testing.T) {
	s := fixtureServer(t)
	dependents, err := s.TargetsDependingOn(context.Background(), []model.TargetID{"Core"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.TargetID{"App", "AppTests"}, dependents)
}

func TestCanonicalTargetFallsBackToFirstMatch(t *testing.T) {
	s := fixtureServer(t)
	target, ok, err := s.CanonicalTarget(context.Background(), "/repo/Core/A.swift")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.TargetID("Core"), target)
}

func TestPrepareInvokesInstalledFunc(t *testing.T) {
	s := fixtureServer(t)
	var got []model.TargetID
	s.SetPrepareFunc(func(ctx context.Context, targets []model.TargetID) error {
		got = targets
		return nil
	})

	require.NoError(t, s.Prepare(context.Background(), []model.TargetID{"Core"}))
	assert.Equal(t, []model.TargetID{"Core"}, got)
}

func TestSourceFilesIsDeduplicatedAndSorted(t *testing.T) {
	s := fixtureServer(t)
	files, err := s.SourceFiles(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []model.DocumentURI{
		"/repo/App/B.swift",
		"/repo/AppTests/BTests.swift",
		"/repo/Core/A.swift",
	}, files)
}
