package housekeeping

import (
	"log/slog"
	"sync/atomic"

	"github.com/aretw0/mqlua/internal/logging"
	"github.com/aretw0/mqlua/pkg/domain"
)

// Tracker counts active nodes from the events on a Bus so the coordinating
// process can wait for them before shutting down.
type Tracker struct {
	bus    *Bus
	active atomic.Int64 // written by Drain only
	logger *slog.Logger
}

// Option configures the Tracker.
type Option func(*Tracker)

// WithLogger configures a logger for drain diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker creates a Tracker consuming bus.
func NewTracker(bus *Bus, opts ...Option) *Tracker {
	t := &Tracker{
		bus:    bus,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Bus returns the bus the tracker consumes.
func (t *Tracker) Bus() *Bus { return t.bus }

// Active returns the Active-Node Counter as last seen by Drain.
func (t *Tracker) Active() int64 { return t.active.Load() }

// Drain makes one non-blocking check for pending events. If there are any,
// it receives events and adjusts the counter until the counter is back to
// zero, and returns the number of events consumed.
//
// Drain has no timeout: a node that never returns blocks it forever. It is
// also best effort. A node whose Starting and Terminated events are both
// consumed before another node's Starting event arrives can bring the
// counter to zero early, and a node started after the initial check is not
// waited for at all.
func (t *Tracker) Drain() int {
	if !t.bus.Pending() {
		t.logger.Debug("housekeeping idle", "bus", Address)
		return 0
	}

	consumed := 0
	for {
		ev := t.bus.Receive()
		consumed++
		var n int64
		switch ev {
		case domain.NodeStarting:
			n = t.active.Add(1)
		case domain.NodeTerminated:
			n = t.active.Add(-1)
		default:
			n = t.active.Load()
		}
		t.logger.Debug("housekeeping event", "event", ev.String(), "active", n)
		if n <= 0 {
			break
		}
	}
	t.logger.Debug("housekeeping drained", "events", consumed)
	return consumed
}
