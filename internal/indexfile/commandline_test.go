package indexfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSwiftCommandLineStripsBuildGeneratingFlags(t *testing.T) {
	argv, overrode := SwiftCommandLine(
		"/usr/bin/swiftc",
		[]string{"-c", "-emit-module", "-o", "out.o", "-target", "arm64-apple-macos13.0"},
		"/repo/.index-store",
		"",
		[]string{"/repo/A.swift"},
	)

	assert.False(t, overrode)
	assert.NotContains(t, argv, "-c")
	assert.NotContains(t, argv, "-emit-module")
	assert.NotContains(t, argv, "-o")
	assert.NotContains(t, argv, "out.o")
	assert.Contains(t, argv, "-target")
	assert.Contains(t, argv, "-index-file")
	assert.Contains(t, argv, "-disable-batch-mode")
	assert.Contains(t, argv, "-index-store-path")
	assert.Contains(t, argv, "/repo/.index-store")
	assert.Contains(t, argv, "-index-file-path")
	assert.Contains(t, argv, "/repo/A.swift")
}

func TestSwiftCommandLineOverridesConflictingIndexStorePath(t *testing.T) {
	_, overrode := SwiftCommandLine(
		"/usr/bin/swiftc",
		[]string{"-index-store-path", "/wrong/path"},
		"/repo/.index-store",
		"",
		[]string{"/repo/A.swift"},
	)
	assert.True(t, overrode)
}

func TestSwiftCommandLineMultiFileIncludesOutputFileMap(t *testing.T) {
	argv, _ := SwiftCommandLine(
		"/usr/bin/swiftc",
		nil,
		"/repo/.index-store",
		"/tmp/map.json",
		[]string{"/repo/A.swift", "/repo/B.swift"},
	)
	assert.Contains(t, argv, "-output-file-map")
	assert.Contains(t, argv, "/tmp/map.json")

	count := 0
	for _, a := range argv {
		if a == "-index-file-path" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestClangCommandLineStripsDependencyFlags(t *testing.T) {
	argv, _ := ClangCommandLine(
		"/usr/bin/clang",
		[]string{"-MD", "-MF", "deps.d", "-Wall"},
		"/repo/.index-store",
		"/repo/a.c",
	)

	assert.NotContains(t, argv, "-MD")
	assert.NotContains(t, argv, "-MF")
	assert.NotContains(t, argv, "deps.d")
	assert.Contains(t, argv, "-Wall")
	assert.Contains(t, argv, "-fsyntax-only")
	assert.Contains(t, argv, "-Xclang")
	assert.Contains(t, argv, "-fretain-comments-from-system-headers")
}

func TestStripFlagsHandlesEqualsSeparator(t *testing.T) {
	out := stripFlags([]string{"-emit-module-path=/out/x.swiftmodule", "-Wall"}, swiftStrippedFlags, swiftStrippedValueFlags)
	assert.Equal(t, []string{"-Wall"}, out)
}
