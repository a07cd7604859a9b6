package ports

import "context"

// ProgramSource defines where node programs come from.
// This allows the loading strategy (filesystem, Redis, memory) to be decoupled
// from the spawner, which only compiles what it is given.
type ProgramSource interface {
	// Fetch returns the Lua source stored under path.
	// It returns domain.ErrProgramNotFound (possibly wrapped) if there is none.
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// ProgramLister is implemented by sources that can enumerate their programs.
// The list subcommand uses it; Fetch remains the only requirement for nodes.
type ProgramLister interface {
	List(ctx context.Context) ([]string, error)
}
