package mqlua

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/mqlua/internal/logging"
	"github.com/aretw0/mqlua/pkg/adapters/file"
	"github.com/aretw0/mqlua/pkg/domain"
	"github.com/aretw0/mqlua/pkg/housekeeping"
	"github.com/aretw0/mqlua/pkg/marshal"
	"github.com/aretw0/mqlua/pkg/messaging"
	"github.com/aretw0/mqlua/pkg/node"
	"github.com/aretw0/mqlua/pkg/ports"
	lua "github.com/yuin/gopher-lua"
)

// Runtime is the coordinating side of mqlua: the shared messaging context,
// the root interpreter state running the control program, the spawner and,
// when housekeeping is enabled, the tracker that waits for nodes on shutdown.
type Runtime struct {
	msgCtx  *messaging.Context
	spawner *node.Spawner
	tracker *housekeeping.Tracker

	root    *lua.LState
	rootEnv *node.Env

	source       ports.ProgramSource
	housekeeping bool
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
	maxNodes     int
	limits       marshal.Limits
	globals      *domain.Table
	modules      map[string]lua.LGFunction
	cache        bool
}

// Option defines a functional option for configuring the Runtime.
type Option func(*Runtime)

// WithSource sets where programs are loaded from. Defaults to the file system
// relative to the working directory.
func WithSource(src ports.ProgramSource) Option {
	return func(r *Runtime) {
		r.source = src
	}
}

// WithHousekeeping enables or disables lifecycle tracking (default: enabled).
// Without it Shutdown does not wait for running nodes.
func WithHousekeeping(enabled bool) Option {
	return func(r *Runtime) {
		r.housekeeping = enabled
	}
}

// WithLifecycleHooks registers observability hooks for every node.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runtime) {
		r.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithMaxNodes caps concurrently running nodes. Zero means no cap.
func WithMaxNodes(n int) Option {
	return func(r *Runtime) {
		r.maxNodes = n
	}
}

// WithLimits bounds the size of values marshaled between states.
func WithLimits(l marshal.Limits) Option {
	return func(r *Runtime) {
		r.limits = l
	}
}

// WithGlobals installs the entries of t as globals in every state.
func WithGlobals(t *domain.Table) Option {
	return func(r *Runtime) {
		r.globals = t
	}
}

// WithModules preloads Go modules in the root state and every node, so the
// embedding program can expose its own functions to scripts.
func WithModules(mods map[string]lua.LGFunction) Option {
	return func(r *Runtime) {
		r.modules = mods
	}
}

// WithCompileCache keeps compiled programs so repeated spawns of the same
// path skip parsing.
func WithCompileCache(enabled bool) Option {
	return func(r *Runtime) {
		r.cache = enabled
	}
}

// New creates the messaging context, the root state and the spawner.
// It fails with domain.ErrContextCreation if the messaging context can not
// be created.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		housekeeping: true,
		logger:       logging.NewNop(),
		limits:       marshal.DefaultLimits,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.source == nil {
		r.source = file.NewLoader("")
	}

	msgCtx, err := messaging.New(ctx, messaging.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	r.msgCtx = msgCtx

	nodeOpts := []node.Option{
		node.WithLogger(r.logger),
		node.WithLifecycleHooks(r.hooks),
		node.WithMarshaler(marshal.New(marshal.WithLimits(r.limits))),
		node.WithCompiler(node.NewCompiler(r.cache)),
		node.WithMaxNodes(r.maxNodes),
		node.WithContext(ctx),
	}
	if r.globals != nil {
		nodeOpts = append(nodeOpts, node.WithGlobals(r.globals))
	}
	if len(r.modules) > 0 {
		nodeOpts = append(nodeOpts, node.WithModules(r.modules))
	}
	if r.housekeeping {
		r.tracker = housekeeping.NewTracker(housekeeping.NewBus(), housekeeping.WithLogger(r.logger))
		nodeOpts = append(nodeOpts, node.WithEvents(r.tracker.Bus()))
	}
	r.spawner = node.NewSpawner(msgCtx, r.source, nodeOpts...)

	r.root, r.rootEnv = r.spawner.NewState()
	if r.globals != nil {
		if err := r.spawner.Marshaler().SetGlobals(r.root, r.globals); err != nil {
			r.close()
			return nil, err
		}
	}
	return r, nil
}

// Run executes the control program at path in the root state. args are
// exposed to it as the global table arg, indexed from 1.
//
// The returned error is a *domain.LoadError when the program can not be
// loaded, and the raised error otherwise.
func (r *Runtime) Run(ctx context.Context, path string, args []string) error {
	vals := make([]domain.Value, len(args))
	for i, a := range args {
		vals[i] = domain.String(a)
	}
	if _, err := r.spawner.Marshaler().Transfer(r.root, domain.TableValue(domain.List(vals...)), marshal.Global, "arg"); err != nil {
		return err
	}

	fn, err := r.spawner.Load(ctx, r.root, path)
	if err != nil {
		return err
	}

	r.root.SetContext(ctx)
	defer r.root.RemoveContext()

	r.logger.Debug("running control program", "path", path, "args", len(args))
	r.root.Push(fn)
	err = r.root.PCall(0, lua.MultRet, nil)
	r.root.SetTop(0)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Exec runs a chunk of code in the root state, as typed at the console.
func (r *Runtime) Exec(chunk string) error {
	return r.root.DoString(chunk)
}

// Spawner returns the spawner shared by the root state and all nodes.
func (r *Runtime) Spawner() *node.Spawner { return r.spawner }

// Tracking reports whether housekeeping is enabled.
func (r *Runtime) Tracking() bool { return r.tracker != nil }

// Active reports the number of running nodes seen by the tracker. It is only
// meaningful during Shutdown.
func (r *Runtime) Active() int64 {
	if r.tracker == nil {
		return 0
	}
	return r.tracker.Active()
}

// Shutdown waits for running nodes when housekeeping is enabled, then
// releases the root state and the messaging context.
//
// A node that never returns blocks Shutdown forever.
func (r *Runtime) Shutdown() error {
	if r.tracker != nil {
		n := r.tracker.Drain()
		r.logger.Debug("housekeeping drained", "events", n)
	}
	return r.close()
}

func (r *Runtime) close() error {
	r.rootEnv.Close()
	r.root.Close()
	return r.msgCtx.Close()
}

// Close releases the root state and the messaging context without waiting
// for nodes.
func (r *Runtime) Close() error {
	return r.close()
}
