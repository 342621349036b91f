package indexfile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/cortexidx/internal/buildserver"
	"github.com/mvp-joe/cortexidx/internal/model"
)

func fileInfo(uri string, lang model.Language) model.FileIndexInfo {
	return model.FileIndexInfo{
		File:     model.FileToIndex{URI: model.DocumentURI(uri)},
		Target:   "T",
		Language: lang,
	}
}

func TestBuildPartitionsGroupsClangAsSingleFile(t *testing.T) {
	srv, err := buildserver.NewMapBuildServer([]buildserver.TargetDescription{
		{ID: "T", Settings: model.BuildSettings{Language: model.LanguageC}},
	}, nil, "")
	require.NoError(t, err)

	files := []model.FileIndexInfo{
		fileInfo("/a.c", model.LanguageC),
		fileInfo("/b.c", model.LanguageC),
	}

	partitions := buildPartitions(context.Background(), files, srv, "T", model.Toolchain{})
	require.Len(t, partitions, 2)
	for _, p := range partitions {
		require.Len(t, p.files, 1)
	}
}

func TestBuildPartitionsGroupsSwiftByEqualSettings(t *testing.T) {
	settings := model.BuildSettings{CompilerArguments: []string{"-target", "arm64"}, Language: model.LanguageSwift}
	srv, err := buildserver.NewMapBuildServer([]buildserver.TargetDescription{
		{ID: "T", Settings: settings},
	}, nil, "")
	require.NoError(t, err)

	files := []model.FileIndexInfo{
		fileInfo("/a.swift", model.LanguageSwift),
		fileInfo("/b.swift", model.LanguageSwift),
	}

	multiToolchain := model.Toolchain{CanIndexMultipleSwiftFilesInSingleInvocation: true}
	partitions := buildPartitions(context.Background(), files, srv, "T", multiToolchain)
	require.Len(t, partitions, 1)
	require.Len(t, partitions[0].files, 2)

	singleToolchain := model.Toolchain{CanIndexMultipleSwiftFilesInSingleInvocation: false}
	partitions = buildPartitions(context.Background(), files, srv, "T", singleToolchain)
	require.Len(t, partitions, 2)
	for _, p := range partitions {
		require.Len(t, p.files, 1)
	}
}

func TestBuildPartitionsDropsFallbackSwiftSettings(t *testing.T) {
	srv, err := buildserver.NewMapBuildServer([]buildserver.TargetDescription{
		{ID: "T", Settings: model.BuildSettings{Language: model.LanguageSwift, IsFallback: true}},
	}, nil, "")
	require.NoError(t, err)

	files := []model.FileIndexInfo{fileInfo("/a.swift", model.LanguageSwift)}
	partitions := buildPartitions(context.Background(), files, srv, "T", model.Toolchain{})
	require.Empty(t, partitions)
}
