package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aretw0/mqlua/pkg/domain"
)

// Loader implements ports.ProgramSource using the local filesystem.
// Relative paths are resolved against BaseDir, or the working directory when
// BaseDir is empty.
type Loader struct {
	BaseDir string
}

// NewLoader creates a filesystem loader rooted at baseDir.
func NewLoader(baseDir string) *Loader {
	return &Loader{BaseDir: baseDir}
}

func (l *Loader) resolve(path string) string {
	if l.BaseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.BaseDir, path)
}

// Fetch reads the program file.
func (l *Loader) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.resolve(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProgramNotFound, path)
		}
		return nil, fmt.Errorf("failed to read program: %w", err)
	}
	return data, nil
}

// List returns the .lua files directly under BaseDir.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	dir := l.BaseDir
	if dir == "" {
		dir = "."
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(dir, m)
		if err != nil {
			rel = m
		}
		out = append(out, rel)
	}
	return out, nil
}
