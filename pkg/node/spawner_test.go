package node_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/mqlua/pkg/adapters/memory"
	"github.com/aretw0/mqlua/pkg/domain"
	"github.com/aretw0/mqlua/pkg/housekeeping"
	"github.com/aretw0/mqlua/pkg/messaging"
	"github.com/aretw0/mqlua/pkg/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

// exits records node exit events delivered through lifecycle hooks.
type exits struct {
	mu     sync.Mutex
	events []domain.NodeEvent
}

func (e *exits) record(_ context.Context, ev *domain.NodeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, *ev)
}

func (e *exits) all() []domain.NodeEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.NodeEvent(nil), e.events...)
}

type harness struct {
	spawner *node.Spawner
	tracker *housekeeping.Tracker
	bus     *housekeeping.Bus
	msgCtx  *messaging.Context
	loader  *memory.Loader
	exits   *exits
}

func newHarness(t *testing.T, programs map[string]string, opts ...node.Option) *harness {
	t.Helper()
	msgCtx, err := messaging.New(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = msgCtx.Close() })

	h := &harness{
		bus:    housekeeping.NewBus(),
		msgCtx: msgCtx,
		loader: memory.NewLoader(programs),
		exits:  &exits{},
	}
	h.tracker = housekeeping.NewTracker(h.bus)
	base := []node.Option{
		node.WithEvents(h.bus),
		node.WithLifecycleHooks(domain.LifecycleHooks{OnNodeExit: h.exits.record}),
	}
	h.spawner = node.NewSpawner(msgCtx, h.loader, append(base, opts...)...)
	return h
}

// drain waits for the tracker with a safety timeout.
func (h *harness) drain(t *testing.T) int {
	t.Helper()
	done := make(chan int, 1)
	go func() { done <- h.tracker.Drain() }()
	select {
	case n := <-done:
		return n
	case <-time.After(10 * time.Second):
		require.FailNow(t, "housekeeping drain timed out")
		return 0
	}
}

const workerProgram = `
local n, greeting = ...
assert(n == 42, "n = " .. tostring(n))
assert(greeting == "hello", "greeting = " .. tostring(greeting))
`

func TestSpawn_WorkerReadsArguments(t *testing.T) {
	h := newHarness(t, map[string]string{"worker.lua": workerProgram})

	id, err := h.spawner.Spawn(context.Background(), "worker.lua", domain.Int(42), domain.String("hello"))
	require.NoError(t, err)
	assert.NotZero(t, id)

	assert.Equal(t, 2, h.drain(t))
	assert.Equal(t, int64(0), h.tracker.Active())

	ev := h.exits.all()
	require.Len(t, ev, 1)
	assert.Equal(t, id, ev[0].NodeID)
	assert.False(t, ev[0].Failed, "worker failed: %v", ev[0].Err)
	assert.Equal(t, 2, ev[0].Args)
}

func TestSpawn_MissingProgram(t *testing.T) {
	h := newHarness(t, nil)

	id, err := h.spawner.Spawn(context.Background(), "missing.lua")
	assert.Zero(t, id)
	assert.ErrorIs(t, err, domain.ErrLoad)
	assert.ErrorIs(t, err, domain.ErrProgramNotFound)

	var le *domain.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "missing.lua", le.Path)

	assert.False(t, h.bus.Pending(), "no lifecycle event for a failed spawn")
	assert.Equal(t, 0, h.tracker.Drain())
}

func TestSpawn_SyntaxErrorIsLoadError(t *testing.T) {
	h := newHarness(t, map[string]string{"broken.lua": "local = ="})

	_, err := h.spawner.Spawn(context.Background(), "broken.lua")
	assert.ErrorIs(t, err, domain.ErrLoad)
	assert.False(t, h.bus.Pending())
}

func TestSpawn_UnsupportedArgument(t *testing.T) {
	h := newHarness(t, map[string]string{"bad.lua": "return"})

	_, err := h.spawner.Spawn(context.Background(), "bad.lua", domain.Int(1), domain.Unsupported("function"))
	var mte *domain.MarshalTypeError
	require.ErrorAs(t, err, &mte)
	assert.Equal(t, "function", mte.Kind)
	assert.Equal(t, "argument", mte.Where)
	assert.False(t, h.bus.Pending())
}

func TestSpawn_FailingNodeStillTerminates(t *testing.T) {
	h := newHarness(t, map[string]string{"fail.lua": `error("boom")`})

	_, err := h.spawner.Spawn(context.Background(), "fail.lua")
	require.NoError(t, err)

	assert.Equal(t, 2, h.drain(t))
	ev := h.exits.all()
	require.Len(t, ev, 1)
	assert.True(t, ev[0].Failed)
	assert.Contains(t, ev[0].Err.Error(), "boom")
}

// gateModule returns a module whose wait() blocks until open is closed.
// Nodes calling it cannot terminate before the test lets them, so every
// Starting event is queued ahead of the first Terminated one.
func gateModule(open <-chan struct{}) lua.LGFunction {
	return func(L *lua.LState) int {
		L.Push(L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
			"wait": func(*lua.LState) int {
				<-open
				return 0
			},
		}))
		return 1
	}
}

func TestSpawn_LeakFreeAccounting(t *testing.T) {
	for _, n := range []int{0, 1, 5, 50} {
		t.Run(fmt.Sprintf("%d nodes", n), func(t *testing.T) {
			open := make(chan struct{})
			h := newHarness(t, map[string]string{
				"ok.lua":   `require("gate").wait() local x = ... return x`,
				"fail.lua": `require("gate").wait() error('nope')`,
			}, node.WithModules(map[string]lua.LGFunction{"gate": gateModule(open)}))

			for i := 0; i < n; i++ {
				path := "ok.lua"
				if i%3 == 0 {
					path = "fail.lua"
				}
				_, err := h.spawner.Spawn(context.Background(), path, domain.Int(int64(i)))
				require.NoError(t, err)
			}
			close(open)

			assert.Equal(t, 2*n, h.drain(t))
			assert.Equal(t, int64(0), h.tracker.Active())
			assert.Len(t, h.exits.all(), n)
		})
	}
}

func TestSpawn_ModulesAreIsolatedPerState(t *testing.T) {
	var loads sync.WaitGroup
	loads.Add(2)
	counter := func(L *lua.LState) int {
		loads.Done()
		L.Push(L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
			"answer": func(L *lua.LState) int {
				L.Push(lua.LNumber(42))
				return 1
			},
		}))
		return 1
	}
	h := newHarness(t, map[string]string{
		"m.lua": `assert(require("extra").answer() == 42)`,
	}, node.WithModules(map[string]lua.LGFunction{"extra": counter}))

	for i := 0; i < 2; i++ {
		_, err := h.spawner.Spawn(context.Background(), "m.lua")
		require.NoError(t, err)
	}
	loads.Wait()
	h.drain(t)
	for _, ev := range h.exits.all() {
		assert.False(t, ev.Failed, "%v", ev.Err)
	}
}

func TestSpawn_NodesSpawnNodes(t *testing.T) {
	h := newHarness(t, map[string]string{
		"parent.lua": `
			local node = require "node"
			local id = node.create("child.lua", { depth = 1, list = { "a", "b" } })
			assert(type(id) == "number" and id > 0)
		`,
		"child.lua": `
			local cfg = ...
			assert(cfg.depth == 1)
			assert(cfg.list[2] == "b")
		`,
	})

	_, err := h.spawner.Spawn(context.Background(), "parent.lua")
	require.NoError(t, err)

	assert.Equal(t, 4, h.drain(t))
	for _, ev := range h.exits.all() {
		assert.False(t, ev.Failed, "%s failed: %v", ev.Path, ev.Err)
	}
}

func TestSpawn_ScriptSeesSpawnErrors(t *testing.T) {
	h := newHarness(t, map[string]string{
		"control.lua": `
			local node = require "node"
			local ok, err = pcall(node.create, "missing.lua")
			assert(not ok)
			assert(string.find(err, "missing.lua", 1, true), err)

			ok, err = pcall(node.create, "bad.lua", function() end)
			assert(not ok)
			assert(string.find(err, "argument must not be function", 1, true), err)

			ok, err = pcall(node.create, "bad.lua", { f = print })
			assert(not ok)
			assert(string.find(err, "table value must not be function", 1, true), err)
		`,
		"bad.lua": "return",
	})

	_, err := h.spawner.Spawn(context.Background(), "control.lua")
	require.NoError(t, err)

	// Only the control node itself produced events.
	assert.Equal(t, 2, h.drain(t))
	ev := h.exits.all()
	require.Len(t, ev, 1)
	assert.False(t, ev[0].Failed, "control failed: %v", ev[0].Err)
}

func TestSpawn_MaxNodes(t *testing.T) {
	h := newHarness(t, map[string]string{
		"busy.lua": `local t = os.clock() while os.clock() - t < 0.3 do end`,
	}, node.WithMaxNodes(1))

	_, err := h.spawner.Spawn(context.Background(), "busy.lua")
	require.NoError(t, err)

	_, err = h.spawner.Spawn(context.Background(), "busy.lua")
	assert.ErrorIs(t, err, domain.ErrThreadCreation)

	assert.Equal(t, 2, h.drain(t))

	// The slot is free again once the node is gone.
	_, err = h.spawner.Spawn(context.Background(), "busy.lua")
	require.NoError(t, err)
	assert.Equal(t, 2, h.drain(t))
}

func TestSpawn_Globals(t *testing.T) {
	globals := domain.NewTable()
	globals.Set(domain.StringKey("region"), domain.String("eu"))
	globals.Set(domain.StringKey("limits"), domain.FromGo(map[string]any{"max": 3}))

	h := newHarness(t, map[string]string{
		"g.lua": `assert(region == "eu"); assert(limits.max == 3)`,
	}, node.WithGlobals(globals))

	_, err := h.spawner.Spawn(context.Background(), "g.lua")
	require.NoError(t, err)
	h.drain(t)
	ev := h.exits.all()
	require.Len(t, ev, 1)
	assert.False(t, ev[0].Failed, "%v", ev[0].Err)
}

func TestSpawn_WithoutTracking(t *testing.T) {
	msgCtx, err := messaging.New(context.Background())
	require.NoError(t, err)
	defer msgCtx.Close()

	done := make(chan struct{})
	s := node.NewSpawner(msgCtx, memory.NewLoader(map[string]string{"a.lua": "return"}),
		node.WithLifecycleHooks(domain.LifecycleHooks{
			OnNodeExit: func(context.Context, *domain.NodeEvent) { close(done) },
		}))
	assert.False(t, s.Tracking())

	_, err = s.Spawn(context.Background(), "a.lua")
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("node did not finish")
	}
}

func TestNewState_SelfID(t *testing.T) {
	h := newHarness(t, nil)
	L, env := h.spawner.NewState()
	defer L.Close()
	defer env.Close()

	require.NoError(t, L.DoString(`
		local node = require "node"
		tid, pid = node.selfId()
		aliasTid = node.id()
		version = node._VERSION
	`))
	assert.Equal(t, lua.LNumber(env.ID), L.GetGlobal("tid"))
	assert.Equal(t, lua.LNumber(os.Getpid()), L.GetGlobal("pid"))
	assert.Equal(t, lua.LNumber(env.ID), L.GetGlobal("aliasTid"))
	assert.Equal(t, lua.LString(node.ModuleVersion), L.GetGlobal("version"))
}

func TestNewState_IsolatedStates(t *testing.T) {
	h := newHarness(t, nil)
	a, envA := h.spawner.NewState()
	defer a.Close()
	defer envA.Close()
	b, envB := h.spawner.NewState()
	defer b.Close()
	defer envB.Close()

	assert.NotEqual(t, envA.ID, envB.ID)
	require.NoError(t, a.DoString(`shared = "a"`))
	assert.Equal(t, lua.LNil, b.GetGlobal("shared"))
}

func TestCompiler_Cache(t *testing.T) {
	c := node.NewCompiler(true)
	p1, err := c.Compile("a.lua", []byte("return 1"))
	require.NoError(t, err)
	p2, err := c.Compile("a.lua", []byte("return 1"))
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	_, err = c.Compile("a.lua", []byte("return 2"))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Cached())

	_, err = node.NewCompiler(false).Compile("x.lua", []byte("return +"))
	assert.Error(t, err)
}
