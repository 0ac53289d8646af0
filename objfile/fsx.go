package objfile

import (
	"os"
	"path/filepath"
)

// OpenWithFallback opens path; if that fails and fallbackDir is
// non-empty, it retries against filepath.Join(fallbackDir,
// filepath.Base(path)) (spec §4.4 step 1, "a fallback search
// directory").
func OpenWithFallback(path, fallbackDir string) (*os.File, string, error) {
	f, err := os.Open(path)
	if err == nil {
		return f, path, nil
	}
	if fallbackDir == "" {
		return nil, "", err
	}
	alt := filepath.Join(fallbackDir, filepath.Base(path))
	f, altErr := os.Open(alt)
	if altErr != nil {
		return nil, "", err
	}
	return f, alt, nil
}
