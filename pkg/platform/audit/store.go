package audit

import (
	"context"

	"agentledger/pkg/domain"
)

// Store persists audit events. Implementations must be append-only; audit
// history is never rewritten.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAgent(ctx context.Context, agentID domain.AgentID) ([]Event, error)
}

// Sink receives a copy of every emitted event for out-of-process delivery
// (e.g. a Kafka topic). Sinks are best-effort: a sink failure never fails the
// domain operation that emitted the event.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}
