package node

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/mqlua/pkg/domain"
	lua "github.com/yuin/gopher-lua"
)

// node is the pairing of one exclusively owned state with the goroutine
// running it. Nothing outside run holds a reference to it.
type node struct {
	env     *Env
	path    string
	state   *lua.LState
	nargs   int
	started time.Time
	phase   domain.NodeState
}

func (s *Spawner) enter(n *node, phase domain.NodeState) {
	n.phase = phase
	s.logger.Debug("node transition", "node", n.env.ID, "state", phase.String())
}

// run is the node body. Goroutines are never joined, so there is nothing to
// detach from. Failures stay inside the node: they are logged and the node
// still cleans up and reports termination exactly once.
func (s *Spawner) run(n *node) {
	s.enter(n, domain.NodeRunning)
	err := call(n.state, n.nargs)
	if err != nil {
		s.enter(n, domain.NodeFailed)
		s.logger.Error("pcall failed", "node", n.env.ID, "path", n.path, "err", err)
	} else {
		s.enter(n, domain.NodeCompleted)
	}

	s.enter(n, domain.NodeCleanup)
	n.env.Close()
	n.state.Close()
	n.state = nil
	if s.slots != nil {
		s.slots.Release(1)
	}
	s.enter(n, domain.NodeDone)

	if s.hooks.OnNodeExit != nil {
		s.hooks.OnNodeExit(context.Background(), &domain.NodeEvent{
			Timestamp: time.Now(),
			NodeID:    n.env.ID,
			Path:      n.path,
			Args:      n.nargs,
			Failed:    err != nil,
			Err:       err,
			Duration:  time.Since(n.started),
		})
	}
	// Published last so a drained tracker implies every exit hook has run.
	if s.events != nil {
		s.events.Publish(domain.NodeTerminated)
	}
}

// call runs the function on top of the stack in protected mode. Go panics
// raised by bindings are turned into errors as well.
func call(L *lua.LState, nargs int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return L.PCall(nargs, 0, nil)
}
