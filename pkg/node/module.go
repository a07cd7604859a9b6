package node

import (
	"sync"

	"github.com/aretw0/mqlua/pkg/domain"
	"github.com/aretw0/mqlua/pkg/messaging"
	lua "github.com/yuin/gopher-lua"
)

// ModuleName is the name scripts require to reach the node functions.
const ModuleName = "node"

// ModuleVersion is reported as node._VERSION.
const ModuleVersion = "node 1.1.0"

// Env is the per-state side of a node: its identifier and the sockets it
// created. It belongs to the goroutine that owns the state.
type Env struct {
	ID domain.NodeID

	spawner *Spawner

	mu      sync.Mutex
	sockets map[*messaging.Socket]struct{}
}

func (e *Env) track(s *messaging.Socket) {
	e.mu.Lock()
	e.sockets[s] = struct{}{}
	e.mu.Unlock()
}

func (e *Env) untrack(s *messaging.Socket) {
	e.mu.Lock()
	delete(e.sockets, s)
	e.mu.Unlock()
}

// Close closes every socket the state created and did not close itself.
func (e *Env) Close() {
	e.mu.Lock()
	open := make([]*messaging.Socket, 0, len(e.sockets))
	for s := range e.sockets {
		open = append(open, s)
	}
	e.sockets = make(map[*messaging.Socket]struct{})
	e.mu.Unlock()

	for _, s := range open {
		_ = s.Close()
	}
}

// open is the package.preload loader of the node module.
func (e *Env) open(L *lua.LState) int {
	registerSocketTypes(L)

	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"create":        e.create,
		"sharedContext": e.sharedContext,
		"zmq_context":   e.sharedContext,
		"selfId":        e.selfID,
		"id":            e.selfID,
		"socket":        e.socket,
	})
	L.SetField(mod, "_DESCRIPTION", lua.LString("Lua nodes"))
	L.SetField(mod, "_VERSION", lua.LString(ModuleVersion))
	L.Push(mod)
	return 1
}

// create(path, ...) -> nodeId
func (e *Env) create(L *lua.LState) int {
	path := L.CheckString(1)

	top := L.GetTop()
	args := make([]domain.Value, 0, top-1)
	for i := 2; i <= top; i++ {
		v, err := e.spawner.marshal.FromLua(L.Get(i))
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		args = append(args, v)
	}

	ctx := L.Context()
	if ctx == nil {
		ctx = e.spawner.baseCtx
	}
	id, err := e.spawner.Spawn(ctx, path, args...)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(lua.LNumber(id))
	return 1
}

// selfId() -> nodeId, processId
func (e *Env) selfID(L *lua.LState) int {
	L.Push(lua.LNumber(e.ID))
	L.Push(lua.LNumber(e.spawner.pid))
	return 2
}

// sharedContext() -> context handle
func (e *Env) sharedContext(L *lua.LState) int {
	ud := L.NewUserData()
	ud.Value = &contextHandle{env: e, ctx: e.spawner.msgCtx}
	L.SetMetatable(ud, L.GetTypeMetatable(contextTypeName))
	L.Push(ud)
	return 1
}

// socket(pattern) -> socket handle
func (e *Env) socket(L *lua.LState) int {
	return newSocket(L, e, e.spawner.msgCtx, 1)
}
