// Package model holds the data types shared across the indexing pipeline:
// document and target identifiers, languages, build settings, and the
// symbol/occurrence vocabulary the checked index speaks. None of these
// types carry behavior beyond simple predicates — they are the nouns every
// other package (scheduler task descriptions, the checked index, the
// manager) is built from.
package model

import "strings"

// DocumentURI is an opaque, normalized handle to a source document. Two
// DocumentURIs are equal iff their normalized string forms are equal.
type DocumentURI string

// Normalize returns a DocumentURI in its canonical comparable form. File
// paths are not resolved against the filesystem here — only syntactically
// normalized (no trailing slash, consistent separators).
func Normalize(raw string) DocumentURI {
	return DocumentURI(strings.TrimRight(raw, "/"))
}

// TargetID is an opaque handle identifying a build target: a logical
// grouping of source files that share build settings.
type TargetID string

// OutputPath identifies the per-file unit key used by the index database.
// NotSupported means the collaborator cannot report one.
type OutputPath struct {
	Path         string
	NotSupported bool
}

// Language is the source language of a file, with a derived SemanticKind
// grouping languages that share a compiler frontend and indexing strategy.
type Language struct {
	Tag string // "swift", "c", "cpp", "objective-c", "objective-c++", or any other tag
}

var (
	LanguageSwift        = Language{Tag: "swift"}
	LanguageC             = Language{Tag: "c"}
	LanguageCpp           = Language{Tag: "cpp"}
	LanguageObjectiveC    = Language{Tag: "objective-c"}
	LanguageObjectiveCpp  = Language{Tag: "objective-c++"}
)

// SemanticKind groups languages by the compiler frontend that indexes them.
type SemanticKind int

const (
	SemanticKindNone SemanticKind = iota
	SemanticKindSwift
	SemanticKindClang
)

// SemanticKind derives the indexing frontend for l.
func (l Language) SemanticKind() SemanticKind {
	switch l.Tag {
	case LanguageSwift.Tag:
		return SemanticKindSwift
	case LanguageC.Tag, LanguageCpp.Tag, LanguageObjectiveC.Tag, LanguageObjectiveCpp.Tag:
		return SemanticKindClang
	default:
		return SemanticKindNone
	}
}

// BuildSettings is the compiler invocation a build server resolved for one
// file in one target.
type BuildSettings struct {
	CompilerArguments []string
	WorkingDirectory  string // empty means "not set"
	Language          Language
	IsFallback        bool
}

// Equal reports whether two BuildSettings are interchangeable for the
// purpose of grouping files into a single compile-command partition, after
// removing any -index-unit-output-path from the comparison.
func (b BuildSettings) Equal(other BuildSettings) bool {
	if b.WorkingDirectory != other.WorkingDirectory || b.Language != other.Language || b.IsFallback != other.IsFallback {
		return false
	}
	return stringsEqual(stripOutputPathFlag(b.CompilerArguments), stripOutputPathFlag(other.CompilerArguments))
}

func stripOutputPathFlag(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "-index-unit-output-path" {
			i++ // skip its value
			continue
		}
		if strings.HasPrefix(a, "-index-unit-output-path=") {
			continue
		}
		out = append(out, a)
	}
	return out
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FileToIndex is either a plain indexable source, or a header paired with
// the main file the compiler must actually be invoked on.
type FileToIndex struct {
	URI     DocumentURI
	IsHeader bool
	MainURI DocumentURI // only meaningful when IsHeader
}

// SourceFile returns the user-visible file.
func (f FileToIndex) SourceFile() DocumentURI { return f.URI }

// MainFile returns the file the compiler should be invoked on.
func (f FileToIndex) MainFile() DocumentURI {
	if f.IsHeader {
		return f.MainURI
	}
	return f.URI
}

// FileIndexInfo is one file's complete scheduling input for the
// update-index-store task.
type FileIndexInfo struct {
	File       FileToIndex
	Target     TargetID
	OutputPath OutputPath
	Language   Language
}

// Toolchain is the compiler handle a build server returns for a language.
type Toolchain struct {
	Identifier                          string
	SwiftC                              string // empty if unavailable
	Clang                               string // empty if unavailable
	CanIndexMultipleSwiftFilesInSingleInvocation bool
}
