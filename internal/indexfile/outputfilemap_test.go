package indexfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// An output-file-map emitted for Swift multi-file indexing parses back to
// exactly the input map.
func TestOutputFileMapRoundTrip(t *testing.T) {
	dir := t.TempDir()
	entries := map[string]string{
		"/repo/A.swift": "/out/A.o",
		"/repo/B.swift": "/out/B.o",
	}

	path, err := writeOutputFileMap(dir, entries)
	require.NoError(t, err)

	got, err := parseOutputFileMap(path)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestOutputFileMapUsesUniqueNames(t *testing.T) {
	dir := t.TempDir()
	p1, err := writeOutputFileMap(dir, map[string]string{"/a": "/b"})
	require.NoError(t, err)
	p2, err := writeOutputFileMap(dir, map[string]string{"/a": "/b"})
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}
