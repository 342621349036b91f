package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spf13/cobra"
)

func writeFakeCompiler(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-compiler.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	return path
}

func writeProjectConfig(t *testing.T, root, swiftc, clang string) {
	t.Helper()
	cortexDir := filepath.Join(root, ".cortexidx")
	require.NoError(t, os.MkdirAll(cortexDir, 0o755))
	content := "toolchain:\n  swiftc: " + swiftc + "\n  clang: " + clang + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(cortexDir, "config.yaml"), []byte(content), 0o644))
}

func TestRunIndexAndStatusAndReindexEndToEnd(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Sources", "Foo"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Sources", "Foo", "A.swift"), []byte("x"), 0o644))

	compiler := writeFakeCompiler(t)
	writeProjectConfig(t, root, compiler, compiler)

	prevDir, quietPrev := cfgDir, quiet
	cfgDir = root
	quiet = true
	defer func() { cfgDir, quiet = prevDir, quietPrev }()

	require.NoError(t, runIndex(&cobra.Command{}, nil))
	require.NoError(t, runStatus(&cobra.Command{}, nil))
	require.NoError(t, runReindex(&cobra.Command{}, nil))
}

func TestNewDaemonFailsWhenAlreadyLocked(t *testing.T) {
	root := t.TempDir()
	compiler := writeFakeCompiler(t)
	writeProjectConfig(t, root, compiler, compiler)

	first, err := newDaemon(root, nil)
	require.NoError(t, err)
	defer first.Close()

	_, err = newDaemon(root, nil)
	assert.Error(t, err)
}
