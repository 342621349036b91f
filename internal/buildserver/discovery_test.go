package buildserver

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/cortexidx/internal/model"
)

func writeTestFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("// x"), 0o644))
}

func TestDiscoverTargetsGroupsByDirectoryAndLanguage(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "Sources/Foo/A.swift")
	writeTestFile(t, root, "Sources/Foo/B.swift")
	writeTestFile(t, root, "Sources/CFoo/c.c")
	writeTestFile(t, root, "Sources/Foo/ignored.txt")
	writeTestFile(t, root, "build/generated.swift")

	targets, err := DiscoverTargets(root, LanguagePatterns{
		Swift:  []string{"**/*.swift"},
		Clang:  []string{"**/*.c"},
		Ignore: []string{"build/**"},
	}, model.Toolchain{SwiftC: "swiftc", Clang: "clang"})
	require.NoError(t, err)
	require.Len(t, targets, 2)

	byID := make(map[model.TargetID]TargetDescription, len(targets))
	for _, tgt := range targets {
		byID[tgt.ID] = tgt
	}

	swiftTarget, ok := byID[model.TargetID("Sources/Foo:swift")]
	require.True(t, ok)
	assert.Equal(t, model.LanguageSwift, swiftTarget.Language)
	assert.Len(t, swiftTarget.Files, 2)

	cTarget, ok := byID[model.TargetID("Sources/CFoo:c")]
	require.True(t, ok)
	assert.Equal(t, model.LanguageC, cTarget.Language)
	assert.Len(t, cTarget.Files, 1)
}

func TestDiscoverTargetsClassifiesObjectiveCVariants(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "Sources/a.m")
	writeTestFile(t, root, "Sources/b.mm")
	writeTestFile(t, root, "Sources/c.cpp")

	targets, err := DiscoverTargets(root, LanguagePatterns{
		Clang: []string{"**/*.m", "**/*.mm", "**/*.cpp"},
	}, model.Toolchain{Clang: "clang"})
	require.NoError(t, err)

	langs := make(map[string]model.Language)
	for _, tgt := range targets {
		langs[string(tgt.ID)] = tgt.Language
	}
	var ids []string
	for id := range langs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	assert.Equal(t, model.LanguageObjectiveC, langs["Sources:objective-c"])
	assert.Equal(t, model.LanguageObjectiveCpp, langs["Sources:objective-c++"])
	assert.Equal(t, model.LanguageCpp, langs["Sources:cpp"])
}

func TestDiscoverTargetsReturnsEmptyForNoMatches(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "README.md")

	targets, err := DiscoverTargets(root, LanguagePatterns{Swift: []string{"**/*.swift"}}, model.Toolchain{})
	require.NoError(t, err)
	assert.Empty(t, targets)
}
