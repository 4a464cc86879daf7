// Package publisher delivers audit events to a store and optional sinks.
// Synchronous by default so tests observe events immediately; an async buffer
// keeps audit writes off the request path in production.
package publisher

import (
	"context"
	"sync"

	"agentledger/pkg/domain"
	audit "agentledger/pkg/platform/audit"
	"agentledger/pkg/requestcontext"
)

// Publisher emits audit events. Emit never fails the calling operation for
// sink errors; only store failures in sync mode propagate.
type Publisher struct {
	store audit.Store
	sinks []audit.Sink

	inbox chan audit.Event
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to asynchronous delivery with the
// given buffer size. When the buffer is full events are dropped rather than
// blocking the domain operation.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan audit.Event, size)
	}
}

// WithSink adds an out-of-process delivery sink (e.g. Kafka).
func WithSink(sink audit.Sink) Option {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an event. The timestamp defaults to the request-scoped time
// and the category is derived from the action when unset.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Category == "" {
		event.Category = audit.CategoryOf(audit.AuditEvent(event.Action))
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if p.inbox != nil {
		select {
		case p.inbox <- event:
		default:
			// Buffer full: drop rather than block the domain operation.
		}
		return nil
	}

	return p.deliver(context.WithoutCancel(ctx), event)
}

// List returns the stored events for an agent.
func (p *Publisher) List(ctx context.Context, agentID domain.AgentID) ([]audit.Event, error) {
	return p.store.ListByAgent(ctx, agentID)
}

// Close drains the async buffer (if any) and stops background delivery.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.inbox != nil {
			close(p.inbox)
			p.wg.Wait()
		}
	})
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.inbox {
		_ = p.deliver(context.Background(), event)
	}
}

func (p *Publisher) deliver(ctx context.Context, event audit.Event) error {
	err := p.store.Append(ctx, event)
	for _, sink := range p.sinks {
		// Sinks are best-effort by contract.
		_ = sink.Publish(ctx, event)
	}
	return err
}
