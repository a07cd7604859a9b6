package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/mqlua/pkg/domain"
)

// Loader implements ports.ProgramSource using an in-memory map.
// It is meant for embedding and tests.
type Loader struct {
	mu       sync.RWMutex
	programs map[string][]byte
}

// NewLoader creates a new Loader with the provided programs (path -> source).
func NewLoader(programs map[string]string) *Loader {
	data := make(map[string][]byte, len(programs))
	for k, v := range programs {
		data[k] = []byte(v)
	}
	return &Loader{programs: data}
}

// Put stores or replaces a program.
func (l *Loader) Put(path, source string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.programs[path] = []byte(source)
}

// Fetch returns the program stored under path.
func (l *Loader) Fetch(_ context.Context, path string) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	content, ok := l.programs[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProgramNotFound, path)
	}
	out := make([]byte, len(content))
	copy(out, content)
	return out, nil
}

// List returns all available program paths.
func (l *Loader) List(_ context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]string, 0, len(l.programs))
	for k := range l.programs {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Deterministic order
	return keys, nil
}
