package domain

import "strconv"

// NodeID identifies a node for diagnostics. It is never zero and cannot be
// used to join, cancel or query the node.
type NodeID uint64

func (id NodeID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// NodeState is the lifecycle of a node runtime.
type NodeState uint8

const (
	NodeReady NodeState = iota
	NodeRunning
	NodeCompleted
	NodeFailed
	NodeCleanup
	NodeDone
)

func (s NodeState) String() string {
	switch s {
	case NodeReady:
		return "ready"
	case NodeRunning:
		return "running"
	case NodeCompleted:
		return "completed"
	case NodeFailed:
		return "failed"
	case NodeCleanup:
		return "cleanup"
	case NodeDone:
		return "terminated"
	default:
		return "unknown"
	}
}
