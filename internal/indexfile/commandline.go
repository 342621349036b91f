// Package indexfile implements the update-index-store TaskDescription:
// it turns a batch of FileIndexInfo sharing a target and
// language into one or more compiler invocations in indexing mode, runs
// them, and feeds the results back into the index database and freshness
// trackers.
package indexfile

import "strings"

// swiftStrippedFlags are build-generating Swift switches removed from the
// original compiler arguments before indexing flags are appended, so the
// indexing invocation is otherwise bit-exact with the real build.
var swiftStrippedFlags = map[string]bool{
	"-c": true, "-disable-cmo": true, "-emit-dependencies": true, "-emit-module": true,
	"-emit-module-interface": true, "-emit-objc-header": true, "-incremental": true,
	"-no-color-diagnostics": true, "-parseable-output": true, "-save-temps": true,
	"-serialize-diagnostics": true, "-use-frontend-parseable-output": true,
	"-validate-clang-modules-once": true, "-whole-module-optimization": true,
}

// swiftStrippedValueFlags take a value, either as a separate argument or
// via "=", and both the flag and its value are removed.
var swiftStrippedValueFlags = map[string]bool{
	"-clang-build-session-file": true, "-emit-module-path": true, "-emit-module-interface-path": true,
	"-emit-objc-header-path": true, "-emit-package-module-interface-path": true,
	"-emit-private-module-interface-path": true, "-num-threads": true, "-o": true,
	"-output-file-map": true,
}

var clangStrippedFlags = map[string]bool{
	"-M": true, "-MD": true, "-MMD": true, "-MG": true, "-MM": true, "-MV": true,
	"-MP": true, "-MJ": true, "-c": true, "-fmodules-validate-once-per-build-session": true,
}

var clangStrippedValueFlags = map[string]bool{
	"-MT": true, "-MF": true, "-MQ": true,
	"-serialize-diagnostics": true, "--serialize-diagnostics": true,
	"-fbuild-session-file": true,
}

// swiftIndexingSupplementalFlags are appended to every Swift indexing
// invocation, verbatim, after stripping.
var swiftIndexingSupplementalFlags = []string{
	"-Xfrontend", "-experimental-allow-module-with-compiler-errors",
	"-Xfrontend", "-empty-abi-descriptor",
}

// clangIndexingSupplementalFlags are appended to every Clang indexing
// invocation, verbatim.
var clangIndexingSupplementalFlags = []string{
	"-fretain-comments-from-system-headers",
	"-Xclang", "-detailed-preprocessing-record",
	"-Xclang", "-fmodule-format=raw",
	"-Xclang", "-fallow-pch-with-compiler-errors",
	"-Xclang", "-fallow-pcm-with-compiler-errors",
	"-Wno-non-modular-include-in-framework-module",
	"-Wno-incomplete-umbrella",
	"-fmodules-validate-system-headers",
}

// stripFlags removes every flag in plain/valued, tolerating "-flag val",
// "-flag=val", and (for single-character-prefixed spellings that Swift/
// Clang also accept) "-flagval" concatenation.
func stripFlags(args []string, plain, valued map[string]bool) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]

		if name, _, ok := strings.Cut(a, "="); ok && valued[name] {
			continue
		}
		if plain[a] {
			continue
		}
		if valued[a] {
			i++ // drop the following value argument too
			continue
		}
		if matched := matchConcatenatedValueFlag(a, valued); matched {
			continue
		}
		out = append(out, a)
	}
	return out
}

// matchConcatenatedValueFlag handles the "-flagval" spelling (no separator)
// some single-dash options accept.
func matchConcatenatedValueFlag(arg string, valued map[string]bool) bool {
	for flag := range valued {
		if len(flag) > 1 && strings.HasPrefix(arg, flag) && arg != flag {
			return true
		}
	}
	return false
}

// replaceIndexStorePath ensures exactly one "-index-store-path <dir>" is
// present, stripping any pre-existing (possibly conflicting) occurrence
// first. The caller is responsible for logging when an override occurred.
func replaceIndexStorePath(args []string, dir string) (out []string, overrode bool) {
	out = make([]string, 0, len(args)+2)
	for i := 0; i < len(args); i++ {
		if args[i] == "-index-store-path" {
			overrode = true
			i++ // skip old value
			continue
		}
		out = append(out, args[i])
	}
	out = append(out, "-index-store-path", dir)
	return out, overrode
}

// SwiftCommandLine builds the compiler argv for one Swift partition:
// compilerPath + stripped original args + Swift indexing flags + exactly
// one -index-store-path + (for multi-file) -output-file-map + one
// -index-file-path per file.
func SwiftCommandLine(compilerPath string, originalArgs []string, indexStoreDir string, outputFileMapPath string, files []string) (argv []string, indexStorePathOverridden bool) {
	args := stripFlags(originalArgs, swiftStrippedFlags, swiftStrippedValueFlags)
	args, overrode := replaceIndexStorePath(args, indexStoreDir)

	argv = append([]string{compilerPath}, args...)
	argv = append(argv, "-index-file", "-disable-batch-mode")
	argv = append(argv, swiftIndexingSupplementalFlags...)

	if outputFileMapPath != "" {
		argv = append(argv, "-output-file-map", outputFileMapPath)
	}
	for _, f := range files {
		argv = append(argv, "-index-file-path", f)
	}
	return argv, overrode
}

// ClangCommandLine builds the compiler argv for one Clang single-file
// partition.
func ClangCommandLine(compilerPath string, originalArgs []string, indexStoreDir string, file string) (argv []string, indexStorePathOverridden bool) {
	args := stripFlags(originalArgs, clangStrippedFlags, clangStrippedValueFlags)
	args, overrode := replaceIndexStorePath(args, indexStoreDir)

	argv = append([]string{compilerPath}, args...)
	argv = append(argv, "-fsyntax-only")
	argv = append(argv, clangIndexingSupplementalFlags...)
	argv = append(argv, "-index-file-path", file)
	return argv, overrode
}
