package ports

import "github.com/aretw0/mqlua/pkg/domain"

// EventPublisher receives housekeeping events from nodes and spawners.
// Publish must not block: a terminating node reports itself even when no
// one is draining.
type EventPublisher interface {
	Publish(e domain.Event)
}
