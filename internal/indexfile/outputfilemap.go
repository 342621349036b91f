package indexfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// outputFileMapEntry is one file's value in the JSON map.
type outputFileMapEntry struct {
	IndexUnitOutputPath string `json:"index-unit-output-path"`
}

// writeOutputFileMap writes a UUID-named JSON output-file-map under dir
// mapping each absolute source path to its output path, returning the
// temp file's path. The caller must remove it on every exit path.
func writeOutputFileMap(dir string, entries map[string]string) (string, error) {
	m := make(map[string]outputFileMapEntry, len(entries))
	for source, output := range entries {
		m[source] = outputFileMapEntry{IndexUnitOutputPath: output}
	}

	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("indexfile: marshaling output-file-map: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("cortexidx-output-file-map-%s.json", uuid.New().String()))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("indexfile: writing output-file-map: %w", err)
	}
	return path, nil
}

// parseOutputFileMap re-reads an output-file-map written by
// writeOutputFileMap, used by tests to assert round-trip fidelity.
func parseOutputFileMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]outputFileMapEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = v.IndexUnitOutputPath
	}
	return out, nil
}
