package buildserver

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"

	"github.com/mvp-joe/cortexidx/internal/model"
)

// LanguagePatterns classifies files under a discovery root by glob pattern,
// picking a model.Language for each matched file rather than a generic
// content category.
type LanguagePatterns struct {
	Swift  []string
	Clang  []string
	Ignore []string
}

type compiledPatterns struct {
	swift  []glob.Glob
	clang  []glob.Glob
	ignore []glob.Glob
}

func compilePatterns(p LanguagePatterns) (compiledPatterns, error) {
	var c compiledPatterns
	for _, group := range []struct {
		patterns []string
		dst      *[]glob.Glob
	}{
		{p.Swift, &c.swift},
		{p.Clang, &c.clang},
		{p.Ignore, &c.ignore},
	} {
		for _, pattern := range group.patterns {
			g, err := glob.Compile(pattern, '/')
			if err != nil {
				return compiledPatterns{}, fmt.Errorf("buildserver: compiling pattern %q: %w", pattern, err)
			}
			*group.dst = append(*group.dst, g)
		}
	}
	return c, nil
}

func (c compiledPatterns) ignored(relPath string) bool {
	for _, g := range c.ignore {
		if g.Match(relPath) {
			return true
		}
	}
	return false
}

func (c compiledPatterns) classify(relPath string) (model.Language, bool) {
	for _, g := range c.swift {
		if g.Match(relPath) {
			return model.LanguageSwift, true
		}
	}
	for _, g := range c.clang {
		if g.Match(relPath) {
			return clangLanguageForExt(relPath), true
		}
	}
	return model.Language{}, false
}

func clangLanguageForExt(relPath string) model.Language {
	switch filepath.Ext(relPath) {
	case ".m":
		return model.LanguageObjectiveC
	case ".mm":
		return model.LanguageObjectiveCpp
	case ".cpp", ".cc", ".hpp":
		return model.LanguageCpp
	default:
		return model.LanguageC
	}
}

// DiscoverTargets walks rootDir and groups matched files into one target
// per (immediate containing directory, language) pair — the simplest
// grouping that lets files sharing a directory and a compiler frontend
// share build settings, bucketing by classification in a single tree walk
// rather than consulting an external build description. toolchain is
// applied to every discovered target.
func DiscoverTargets(rootDir string, patterns LanguagePatterns, toolchain model.Toolchain) ([]TargetDescription, error) {
	compiled, err := compilePatterns(patterns)
	if err != nil {
		return nil, err
	}

	type key struct {
		dir  string
		lang model.Language
	}
	buckets := make(map[key][]model.DocumentURI)
	var order []key

	err = filepath.Walk(rootDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(rootDir, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if compiled.ignored(relPath) {
			return nil
		}
		lang, ok := compiled.classify(relPath)
		if !ok {
			return nil
		}

		k := key{dir: filepath.Dir(relPath), lang: lang}
		if _, seen := buckets[k]; !seen {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], model.DocumentURI(path))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("buildserver: discovering targets under %s: %w", rootDir, err)
	}

	targets := make([]TargetDescription, 0, len(order))
	for _, k := range order {
		targets = append(targets, TargetDescription{
			ID:       model.TargetID(fmt.Sprintf("%s:%s", k.dir, k.lang.Tag)),
			Files:    buckets[k],
			Language: k.lang,
			Settings: model.BuildSettings{Language: k.lang},
			Toolchain: toolchain,
		})
	}
	return targets, nil
}
