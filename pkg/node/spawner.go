package node

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/aretw0/mqlua/internal/logging"
	"github.com/aretw0/mqlua/pkg/domain"
	"github.com/aretw0/mqlua/pkg/marshal"
	"github.com/aretw0/mqlua/pkg/messaging"
	"github.com/aretw0/mqlua/pkg/ports"
	lua "github.com/yuin/gopher-lua"
	"golang.org/x/sync/semaphore"
)

// Spawner creates nodes: a fresh interpreter state, a loaded program, the
// marshaled arguments and a goroutine that owns all of them.
//
// A Spawner is safe for concurrent use; nodes spawn further nodes through
// the same Spawner.
type Spawner struct {
	msgCtx   *messaging.Context
	source   ports.ProgramSource
	compiler *Compiler
	marshal  *marshal.Marshaler
	events   ports.EventPublisher // nil disables lifecycle tracking
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	globals  *domain.Table
	modules  map[string]lua.LGFunction
	baseCtx  context.Context

	maxNodes int64
	slots    *semaphore.Weighted

	nextID atomic.Uint64
	pid    int
}

// Option configures the Spawner.
type Option func(*Spawner)

// WithEvents enables lifecycle tracking: NodeStarting and NodeTerminated
// events are published to p.
func WithEvents(p ports.EventPublisher) Option {
	return func(s *Spawner) {
		s.events = p
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Spawner) {
		s.hooks = hooks
	}
}

// WithLogger sets the logger used for node diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Spawner) {
		s.logger = logger
	}
}

// WithMarshaler replaces the default Marshaler.
func WithMarshaler(m *marshal.Marshaler) Option {
	return func(s *Spawner) {
		s.marshal = m
	}
}

// WithCompiler replaces the default (uncached) Compiler.
func WithCompiler(c *Compiler) Option {
	return func(s *Spawner) {
		s.compiler = c
	}
}

// WithMaxNodes caps the number of nodes running at once. Spawning beyond
// the cap fails with domain.ErrThreadCreation. Zero means no cap.
func WithMaxNodes(n int) Option {
	return func(s *Spawner) {
		s.maxNodes = int64(n)
	}
}

// WithGlobals installs the entries of t as globals of every node state.
func WithGlobals(t *domain.Table) Option {
	return func(s *Spawner) {
		s.globals = t
	}
}

// WithModules preloads extra Go modules in every state, next to the node
// module. Scripts reach them with require(name).
func WithModules(mods map[string]lua.LGFunction) Option {
	return func(s *Spawner) {
		s.modules = mods
	}
}

// WithContext sets the context used by script-initiated spawns for
// program fetching.
func WithContext(ctx context.Context) Option {
	return func(s *Spawner) {
		s.baseCtx = ctx
	}
}

// NewSpawner creates a Spawner. msgCtx is shared, by reference, with every node.
func NewSpawner(msgCtx *messaging.Context, source ports.ProgramSource, opts ...Option) *Spawner {
	s := &Spawner{
		msgCtx:   msgCtx,
		source:   source,
		compiler: NewCompiler(false),
		marshal:  marshal.New(),
		logger:   logging.NewNop(),
		baseCtx:  context.Background(),
		pid:      os.Getpid(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxNodes > 0 {
		s.slots = semaphore.NewWeighted(s.maxNodes)
	}
	return s
}

// Marshaler returns the marshaler used for arguments.
func (s *Spawner) Marshaler() *marshal.Marshaler { return s.marshal }

// Tracking reports whether lifecycle events are published.
func (s *Spawner) Tracking() bool { return s.events != nil }

// NewState creates an interpreter state with the standard libraries and the
// node module preloaded, so code running in it can spawn nodes itself.
// The caller owns both the state and the returned Env and must Close them.
func (s *Spawner) NewState() (*lua.LState, *Env) {
	env := &Env{
		ID:      domain.NodeID(s.nextID.Add(1)),
		spawner: s,
		sockets: make(map[*messaging.Socket]struct{}),
	}
	L := lua.NewState()
	for name, loader := range s.modules {
		L.PreloadModule(name, loader)
	}
	L.PreloadModule(ModuleName, env.open)
	return L, env
}

// Spawn creates a node running the program at path with args as its
// positional parameters and returns its identifier. Errors are returned
// before any goroutine starts and leave no trace of the node behind.
func (s *Spawner) Spawn(ctx context.Context, path string, args ...domain.Value) (domain.NodeID, error) {
	L, env := s.NewState()

	fail := func(err error) (domain.NodeID, error) {
		env.Close()
		L.Close()
		s.logger.Debug("spawn failed", "path", path, "err", err)
		if s.hooks.OnSpawnError != nil {
			s.hooks.OnSpawnError(ctx, path, err)
		}
		return 0, err
	}

	fn, err := s.load(ctx, L, path)
	if err != nil {
		return fail(&domain.LoadError{Path: path, Err: err})
	}
	if s.globals != nil {
		if err := s.marshal.SetGlobals(L, s.globals); err != nil {
			return fail(err)
		}
	}
	L.Push(fn)
	if err := s.marshal.PushArgs(L, args); err != nil {
		return fail(err)
	}

	if s.slots != nil && !s.slots.TryAcquire(1) {
		return fail(fmt.Errorf("%w: %d nodes already running", domain.ErrThreadCreation, s.maxNodes))
	}

	n := &node{
		env:     env,
		path:    path,
		state:   L,
		nargs:   len(args),
		started: time.Now(),
	}

	// Starting is published before the goroutine exists so that a node's own
	// Terminated event can never be observed first.
	if s.events != nil {
		s.events.Publish(domain.NodeStarting)
	}
	if s.hooks.OnNodeStart != nil {
		s.hooks.OnNodeStart(ctx, &domain.NodeEvent{
			Timestamp: n.started,
			NodeID:    env.ID,
			Path:      path,
			Args:      n.nargs,
		})
	}
	s.logger.Debug("node starting", "node", env.ID, "path", path, "args", n.nargs)

	go s.run(n)
	return env.ID, nil
}

func (s *Spawner) load(ctx context.Context, L *lua.LState, path string) (*lua.LFunction, error) {
	src, err := s.source.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	proto, err := s.compiler.Compile(path, src)
	if err != nil {
		return nil, err
	}
	return L.NewFunctionFromProto(proto), nil
}

// Load fetches and compiles the program at path into L without running it.
func (s *Spawner) Load(ctx context.Context, L *lua.LState, path string) (*lua.LFunction, error) {
	fn, err := s.load(ctx, L, path)
	if err != nil {
		return nil, &domain.LoadError{Path: path, Err: err}
	}
	return fn, nil
}
