package domain

import (
	"errors"
	"fmt"
)

// ErrUsage is returned when the process is invoked without a control program.
var ErrUsage = errors.New("usage: mqlua <path> [args ...]")

// ErrContextCreation is returned when the shared messaging context cannot be created.
var ErrContextCreation = errors.New("messaging context creation failed")

// ErrLoad is returned when a program cannot be loaded into a new state.
var ErrLoad = errors.New("can not load Lua code")

// ErrProgramNotFound is returned by program sources when a path has no program.
var ErrProgramNotFound = errors.New("program not found")

// ErrMarshalType is returned when a value of an unsupported kind crosses a state boundary.
var ErrMarshalType = errors.New("unsupported value kind")

// ErrRecursionLimit is returned when a value tree exceeds the marshal budget.
var ErrRecursionLimit = errors.New("value tree exceeds marshal limits")

// ErrThreadCreation is returned when a node cannot be started.
var ErrThreadCreation = errors.New("can not create a new node")

// ErrUnknownPattern is returned for socket pattern names outside the supported set.
var ErrUnknownPattern = errors.New("unknown socket pattern")

// ErrContextClosed is returned when sockets are requested from a closed context.
var ErrContextClosed = errors.New("messaging context closed")

// LoadError identifies the program path that failed to load.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("can not load Lua code from %s", e.Path)
	}
	return fmt.Sprintf("can not load Lua code from %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrLoad}
	}
	return []error{ErrLoad, e.Err}
}

// MarshalTypeError names the offending kind and where it was found
// ("argument", "table key", "table value", "global").
type MarshalTypeError struct {
	Kind  string
	Where string
}

func (e *MarshalTypeError) Error() string {
	return fmt.Sprintf("%s must not be %s", e.Where, e.Kind)
}

func (e *MarshalTypeError) Unwrap() error { return ErrMarshalType }

// RecursionLimitError reports which marshal budget was exhausted.
type RecursionLimitError struct {
	Limit string // "depth" or "values"
	Max   int
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("value tree exceeds %s limit of %d", e.Limit, e.Max)
}

func (e *RecursionLimitError) Unwrap() error { return ErrRecursionLimit }
