/*
Package node runs Lua programs as nodes.

A node is one interpreter state plus the goroutine that owns it. States are
never shared: arguments cross from the spawning state into the new one as
domain.Value trees produced by package marshal.

	msgCtx, _ := messaging.New(ctx)
	spawner := node.NewSpawner(msgCtx, file.NewLoader(""), node.WithEvents(bus))
	id, err := spawner.Spawn(ctx, "worker.lua", domain.Int(42), domain.String("hello"))

Programs reach the same functionality through the preloaded "node" module:

	local node = require "node"
	local id = node.create("worker.lua", 42, "hello")
	local push = node.socket("push")
	push:connect("inproc://results")
	push:send("done", tostring(id))

Spawn errors (load, marshal, slot limit) are reported synchronously to the
caller. Errors raised while a node runs are logged and end only that node.
*/
package node
