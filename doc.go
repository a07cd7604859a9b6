/*
Package mqlua runs Lua programs in separate goroutines, connected with ZeroMQ.

Every program runs as a node: one interpreter state owned by exactly one
goroutine. Nodes never share Lua values. Arguments given to a new node are
deep-copied from the spawning state, and everything else nodes exchange goes
over ZeroMQ sockets created from one shared messaging context.

# Usage

A Runtime executes a control program, which usually does nothing but create
the working nodes, and then waits for them on Shutdown:

	rt, err := mqlua.New(ctx)
	if err != nil {
		log.Fatal(err)
	}
	if err := rt.Run(ctx, "control.lua", os.Args[2:]); err != nil {
		log.Fatal(err)
	}
	rt.Shutdown()

The control program and every node reach the runtime through the "node"
module:

	local node = require "node"

	for i = 1, 4 do
		node.create("worker.lua", i, { endpoint = "inproc://jobs" })
	end

	local jobs = node.socket("push")
	jobs:bind("inproc://jobs")

# Housekeeping

With housekeeping enabled (the default) every node reports its start and
termination on an internal bus. Shutdown counts these events and returns once
the number of running nodes drops to zero. It only starts waiting if an event
is already pending, and it has no timeout: a node that never returns keeps
Shutdown blocked.

# Errors

Spawn errors (domain.LoadError, domain.MarshalTypeError, domain.ErrThreadCreation)
are raised in the calling script at the node.create call. Errors raised while a
node runs are logged and end that node only.
*/
package mqlua
