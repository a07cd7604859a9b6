package node

import (
	"fmt"

	"github.com/aretw0/mqlua/pkg/messaging"
	lua "github.com/yuin/gopher-lua"
)

const (
	contextTypeName = "mqlua.context"
	socketTypeName  = "mqlua.socket"
)

type contextHandle struct {
	env *Env
	ctx *messaging.Context
}

type socketHandle struct {
	env  *Env
	sock *messaging.Socket // nil once closed
}

func registerSocketTypes(L *lua.LState) {
	cmt := L.NewTypeMetatable(contextTypeName)
	L.SetField(cmt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"socket": contextSocket,
	}))
	L.SetField(cmt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString("zmq context"))
		return 1
	}))

	smt := L.NewTypeMetatable(socketTypeName)
	L.SetField(smt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"bind":        socketBind,
		"connect":     socketConnect,
		"send":        socketSend,
		"recv":        socketRecv,
		"subscribe":   socketSubscribe,
		"unsubscribe": socketUnsubscribe,
		"close":       socketClose,
		"type":        socketType,
	}))
	L.SetField(smt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		h := checkSocket(L, 1, true)
		if h.sock == nil {
			L.Push(lua.LString("zmq socket (closed)"))
		} else {
			L.Push(lua.LString(fmt.Sprintf("zmq socket (%s)", h.sock.Pattern())))
		}
		return 1
	}))
}

func newSocket(L *lua.LState, env *Env, ctx *messaging.Context, arg int) int {
	p, err := messaging.ParsePattern(L.CheckString(arg))
	if err != nil {
		L.ArgError(arg, err.Error())
		return 0
	}
	sock, err := ctx.Socket(p)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	env.track(sock)

	ud := L.NewUserData()
	ud.Value = &socketHandle{env: env, sock: sock}
	L.SetMetatable(ud, L.GetTypeMetatable(socketTypeName))
	L.Push(ud)
	return 1
}

func contextSocket(L *lua.LState) int {
	ud := L.CheckUserData(1)
	h, ok := ud.Value.(*contextHandle)
	if !ok {
		L.ArgError(1, "zmq context expected")
		return 0
	}
	return newSocket(L, h.env, h.ctx, 2)
}

func checkSocket(L *lua.LState, n int, allowClosed bool) *socketHandle {
	ud := L.CheckUserData(n)
	h, ok := ud.Value.(*socketHandle)
	if !ok {
		L.ArgError(n, "zmq socket expected")
		return nil
	}
	if h.sock == nil && !allowClosed {
		L.ArgError(n, "socket is closed")
		return nil
	}
	return h
}

// result pushes true, or nil plus the error message.
func result(L *lua.LState, err error) int {
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

func socketBind(L *lua.LState) int {
	h := checkSocket(L, 1, false)
	return result(L, h.sock.Bind(L.CheckString(2)))
}

func socketConnect(L *lua.LState) int {
	h := checkSocket(L, 1, false)
	return result(L, h.sock.Connect(L.CheckString(2)))
}

// send(frame, ...) sends a multipart message when given several frames.
func socketSend(L *lua.LState) int {
	h := checkSocket(L, 1, false)
	top := L.GetTop()
	if top < 2 {
		L.ArgError(2, "frame expected")
		return 0
	}
	frames := make([][]byte, 0, top-1)
	for i := 2; i <= top; i++ {
		frames = append(frames, []byte(L.CheckString(i)))
	}
	return result(L, h.sock.Send(frames...))
}

// recv() returns every frame of the next message as separate strings.
func socketRecv(L *lua.LState) int {
	h := checkSocket(L, 1, false)
	frames, err := h.sock.Recv()
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	for _, f := range frames {
		L.Push(lua.LString(f))
	}
	return len(frames)
}

func socketSubscribe(L *lua.LState) int {
	h := checkSocket(L, 1, false)
	return result(L, h.sock.Subscribe(L.OptString(2, "")))
}

func socketUnsubscribe(L *lua.LState) int {
	h := checkSocket(L, 1, false)
	return result(L, h.sock.Unsubscribe(L.OptString(2, "")))
}

func socketClose(L *lua.LState) int {
	h := checkSocket(L, 1, true)
	if h.sock == nil {
		L.Push(lua.LTrue)
		return 1
	}
	sock := h.sock
	h.sock = nil
	h.env.untrack(sock)
	return result(L, sock.Close())
}

func socketType(L *lua.LState) int {
	h := checkSocket(L, 1, true)
	if h.sock == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(h.sock.Pattern().String()))
	return 1
}
