package engine

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveModelPath picks the first candidate whose directory exists and
// falls back to the last candidate otherwise. The returned path is
// absolute. The chosen file itself must exist.
func ResolveModelPath(candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no candidate paths configured", ErrModelNotFound)
	}
	chosen := candidates[len(candidates)-1]
	for _, c := range candidates[:len(candidates)-1] {
		if dirExists(filepath.Dir(c)) {
			chosen = c
			break
		}
	}
	abs, err := filepath.Abs(chosen)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", chosen, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrModelNotFound, abs)
		}
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrModelNotFound, abs)
	}
	return abs, nil
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
