package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/mqlua/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces program keys.
const DefaultPrefix = "mqlua:program:"

// Loader implements ports.ProgramSource using Redis. Each program is a plain
// string key named prefix+path.
type Loader struct {
	client  *backend.Client
	prefix  string
	timeout time.Duration
}

type Option func(*Loader)

// WithPrefix sets the key prefix for programs.
func WithPrefix(prefix string) Option {
	return func(l *Loader) {
		l.prefix = prefix
	}
}

// WithTimeout bounds every Redis round trip.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		l.timeout = d
	}
}

// New creates a new Redis loader with options.
func New(address, password string, db int, opts ...Option) *Loader {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis loader from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Loader {
	l := &Loader{
		client:  client,
		prefix:  DefaultPrefix,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) key(path string) string {
	return l.prefix + path
}

func (l *Loader) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.timeout)
}

// Fetch retrieves the program source stored under path.
func (l *Loader) Fetch(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	data, err := l.client.Get(ctx, l.key(path)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProgramNotFound, path)
		}
		return nil, fmt.Errorf("redis error fetching program: %w", err)
	}
	return data, nil
}

// Put stores a program so nodes can be created from it.
func (l *Loader) Put(ctx context.Context, path string, source []byte) error {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	if err := l.client.Set(ctx, l.key(path), source, 0).Err(); err != nil {
		return fmt.Errorf("failed to store program %s: %w", path, err)
	}
	return nil
}

// List returns the paths of all stored programs.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	var paths []string
	iter := l.client.Scan(ctx, 0, l.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		paths = append(paths, strings.TrimPrefix(iter.Val(), l.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	return paths, nil
}

// Close releases the client connection pool.
func (l *Loader) Close() error {
	return l.client.Close()
}
