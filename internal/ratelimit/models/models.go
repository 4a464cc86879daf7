// Package models holds the rate limiting domain types shared by the stores,
// the limiter, and the HTTP middleware.
package models

import "time"

// EndpointClass groups registry endpoints by write cost so each class can
// carry its own limit. Reads are cheap; writes serialize through the protocol
// orchestrator and get a tighter budget.
type EndpointClass string

const (
	ClassRead  EndpointClass = "read"
	ClassWrite EndpointClass = "write"
	ClassAdmin EndpointClass = "admin"
)

// Limit is the budget for one endpoint class: at most Requests per Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Result reports the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// DefaultLimits returns the per-class budgets used when configuration does
// not override them.
func DefaultLimits() map[EndpointClass]Limit {
	return map[EndpointClass]Limit{
		ClassRead:  {Requests: 300, Window: time.Minute},
		ClassWrite: {Requests: 60, Window: time.Minute},
		ClassAdmin: {Requests: 30, Window: time.Minute},
	}
}
