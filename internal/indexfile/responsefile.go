package indexfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// writeResponseFile shell-quotes argv and writes it to a UUID-named file
// under dir, for the "@response_file" fallback used when the OS rejects a
// command line as too long.
func writeResponseFile(dir string, argv []string) (string, error) {
	var b strings.Builder
	for i, a := range argv {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(shellQuote(a))
	}

	path := filepath.Join(dir, fmt.Sprintf("cortexidx-response-%s.txt", uuid.New().String()))
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return "", fmt.Errorf("indexfile: writing response file: %w", err)
	}
	return path, nil
}

// shellQuote wraps arg in single quotes, escaping any embedded single
// quote the POSIX-portable way.
func shellQuote(arg string) string {
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
