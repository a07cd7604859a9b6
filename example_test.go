package mqlua_test

import (
	"context"
	"log"

	"github.com/aretw0/mqlua"
	"github.com/aretw0/mqlua/pkg/adapters/memory"
)

// ExampleRuntime runs a control program that starts one worker and waits for
// it on shutdown.
func ExampleRuntime() {
	programs := memory.NewLoader(map[string]string{
		"control.lua": `
			local node = require "node"
			local id = node.create("worker.lua", arg[1])
			print("started worker", id > 0)
		`,
		"worker.lua": `local name = ... assert(name == "alpha")`,
	})

	ctx := context.Background()
	rt, err := mqlua.New(ctx, mqlua.WithSource(programs))
	if err != nil {
		log.Fatal(err)
	}
	if err := rt.Run(ctx, "control.lua", []string{"alpha"}); err != nil {
		log.Fatal(err)
	}
	if err := rt.Shutdown(); err != nil {
		log.Fatal(err)
	}

	// Output:
	// started worker	true
}
