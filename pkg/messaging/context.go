package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/mqlua/internal/logging"
	"github.com/aretw0/mqlua/pkg/domain"
	"github.com/go-zeromq/zmq4"
)

// Context is the process-wide messaging context. It is created once before
// any node exists, shared by reference with every node, and closed by the
// coordinating process after the housekeeping drain. Nodes never close it.
//
// Socket creation is safe from any number of goroutines.
type Context struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	sockets map[*Socket]struct{}

	logger    *slog.Logger
	dialRetry time.Duration
}

// Option configures the Context.
type Option func(*Context)

// WithLogger configures a logger; transport diagnostics are logged at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) {
		c.logger = logger
	}
}

// WithDialRetry sets the delay between connection attempts of Connect.
func WithDialRetry(d time.Duration) Option {
	return func(c *Context) {
		c.dialRetry = d
	}
}

// New creates the messaging context. Sockets created from it stop when
// parent is cancelled or when Close is called.
func New(parent context.Context, opts ...Option) (*Context, error) {
	if err := parent.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrContextCreation, err)
	}
	c := &Context{
		sockets: make(map[*Socket]struct{}),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(parent)
	return c, nil
}

// Socket creates a socket of pattern p owned by the caller.
func (c *Context) Socket(p Pattern) (*Socket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, domain.ErrContextClosed
	}

	opts := []zmq4.Option{
		zmq4.WithLogger(slog.NewLogLogger(c.logger.Handler(), slog.LevelDebug)),
	}
	if c.dialRetry > 0 {
		opts = append(opts, zmq4.WithDialerRetry(c.dialRetry))
	}

	var sock transport
	switch p {
	case Pub:
		sock = zmq4.NewPub(c.ctx, opts...)
	case Sub:
		sock = zmq4.NewSub(c.ctx, opts...)
	case XPub:
		sock = zmq4.NewXPub(c.ctx, opts...)
	case XSub:
		sock = zmq4.NewXSub(c.ctx, opts...)
	case Push:
		sock = zmq4.NewPush(c.ctx, opts...)
	case Pull:
		sock = zmq4.NewPull(c.ctx, opts...)
	case Pair:
		sock = zmq4.NewPair(c.ctx, opts...)
	case Req:
		sock = zmq4.NewReq(c.ctx, opts...)
	case Rep:
		sock = zmq4.NewRep(c.ctx, opts...)
	case Dealer:
		sock = zmq4.NewDealer(c.ctx, opts...)
	case Router:
		sock = zmq4.NewRouter(c.ctx, opts...)
	case Stream:
		sock = newStreamSocket(c.ctx)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPattern, p)
	}

	s := &Socket{owner: c, pattern: p, sock: sock}
	c.sockets[s] = struct{}{}
	c.logger.Debug("socket created", "pattern", p.String())
	return s, nil
}

// Open reports how many sockets are still open.
func (c *Context) Open() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sockets)
}

func (c *Context) forget(s *Socket) {
	c.mu.Lock()
	delete(c.sockets, s)
	c.mu.Unlock()
}

// Close closes every socket still open and ends the context. Further calls
// are no-ops.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	leftovers := make([]*Socket, 0, len(c.sockets))
	for s := range c.sockets {
		leftovers = append(leftovers, s)
	}
	c.mu.Unlock()

	if len(leftovers) > 0 {
		c.logger.Debug("closing leftover sockets", "count", len(leftovers))
	}
	var firstErr error
	for _, s := range leftovers {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.cancel()
	return firstErr
}
