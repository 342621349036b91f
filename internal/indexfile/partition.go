package indexfile

import (
	"context"
	"log"
	"sort"

	"github.com/mvp-joe/cortexidx/internal/buildserver"
	"github.com/mvp-joe/cortexidx/internal/model"
)

// partition is one equivalence class of files compiled together in a
// single invocation.
type partition struct {
	files    []model.FileIndexInfo
	settings model.BuildSettings // zero value for Clang/unsupported single-file partitions
}

// buildPartitions splits a batch into per-compiler-invocation groups: Clang
// and unsupported-language files each get their own single-file partition;
// Swift files are
// grouped by exact build-settings equality into one multi-file partition
// per group (or split into singles when the toolchain cannot index
// multiple files per invocation).
func buildPartitions(ctx context.Context, files []model.FileIndexInfo, build buildserver.BuildServer, target model.TargetID, toolchain model.Toolchain) []partition {
	var partitions []partition

	var swiftFiles []model.FileIndexInfo
	var swiftSettings []model.BuildSettings

	for _, f := range files {
		switch f.Language.SemanticKind() {
		case model.SemanticKindSwift:
			settings, ok, err := build.BuildSettings(ctx, f.File.SourceFile(), target, f.Language, false)
			if err != nil {
				log.Printf("indexfile: resolving build settings for %s: %v", f.File.SourceFile(), err)
				continue
			}
			if !ok || settings.IsFallback {
				log.Printf("indexfile: dropping %s: no non-fallback build settings available", f.File.SourceFile())
				continue
			}
			swiftFiles = append(swiftFiles, f)
			swiftSettings = append(swiftSettings, settings)
		default:
			settings, ok, err := build.BuildSettings(ctx, f.File.SourceFile(), target, f.Language, false)
			if err != nil {
				log.Printf("indexfile: resolving build settings for %s: %v", f.File.SourceFile(), err)
				continue
			}
			if !ok {
				settings = model.BuildSettings{}
			}
			partitions = append(partitions, partition{files: []model.FileIndexInfo{f}, settings: settings})
		}
	}

	partitions = append(partitions, groupSwiftFiles(swiftFiles, swiftSettings, toolchain)...)
	return partitions
}

// groupSwiftFiles implements the "exact equality of build settings, after
// removing -index-unit-output-path" grouping rule.
func groupSwiftFiles(files []model.FileIndexInfo, settings []model.BuildSettings, toolchain model.Toolchain) []partition {
	type group struct {
		settings model.BuildSettings
		files    []model.FileIndexInfo
	}
	var groups []*group

	for i, f := range files {
		s := settings[i]
		var match *group
		for _, g := range groups {
			if g.settings.Equal(s) {
				match = g
				break
			}
		}
		if match == nil {
			match = &group{settings: s}
			groups = append(groups, match)
		}
		match.files = append(match.files, f)
	}

	var partitions []partition
	for _, g := range groups {
		if toolchain.CanIndexMultipleSwiftFilesInSingleInvocation {
			partitions = append(partitions, partition{files: g.files, settings: g.settings})
			continue
		}
		for _, f := range g.files {
			partitions = append(partitions, partition{files: []model.FileIndexInfo{f}, settings: g.settings})
		}
	}

	sort.SliceStable(partitions, func(i, j int) bool {
		return len(partitions[i].files) > len(partitions[j].files)
	})
	return partitions
}
