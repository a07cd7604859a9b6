package domain

import (
	"context"
	"time"
)

// Event is a housekeeping message. It carries no payload beyond its tag.
type Event uint8

const (
	NodeStarting Event = iota + 1
	NodeTerminated
)

func (e Event) String() string {
	switch e {
	case NodeStarting:
		return "node_starting"
	case NodeTerminated:
		return "node_terminated"
	default:
		return "unknown"
	}
}

// NodeEvent describes a node lifecycle transition for observers.
type NodeEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	NodeID    NodeID        `json:"node_id"`
	Path      string        `json:"path"`
	Args      int           `json:"args"`
	Failed    bool          `json:"failed,omitempty"`
	Err       error         `json:"-"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// LifecycleHooks defines callbacks for node observability.
// Hooks run on the goroutine that triggers them and must not block.
type LifecycleHooks struct {
	OnNodeStart  func(context.Context, *NodeEvent)
	OnNodeExit   func(context.Context, *NodeEvent)
	OnSpawnError func(context.Context, string, error)
}
