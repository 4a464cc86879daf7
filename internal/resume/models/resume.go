package models

import (
	"time"

	"agentledger/pkg/domain"
	dErrors "agentledger/pkg/domain-errors"
)

// Reputation constants. Reputation is a pure fold over resolved job records:
// it starts at the base and moves by a fixed delta per resolution, clamped at
// zero. A record adjusts reputation exactly once, at resolution time.
const (
	ReputationBase    = 100
	ReputationSuccess = 10
	ReputationFailure = 5
)

// Resume is the permanently-bound work history record for one agent identity.
//
// Invariants:
//   - Owner is immutable once minted; a resume is never transferable
//   - LinkedAgentID is set at most once (completing the two-phase handshake)
//   - Job records and feedback only grow; no entry is ever removed
//   - Reputation changes only through job resolution
type Resume struct {
	ID            domain.ResumeID  `json:"id"`
	Owner         domain.Principal `json:"owner"`
	LinkedAgentID domain.AgentID   `json:"linked_agent_id"`
	Reputation    uint64           `json:"reputation"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Locked reports whether the resume is transfer-locked. Always true: minting
// is the only state change allowed to move ownership from "none" to owner.
func (r *Resume) Locked() bool { return true }

// CanLinkIdentity checks that the back-link has not been completed yet.
func (r *Resume) CanLinkIdentity(agentID domain.AgentID) error {
	if agentID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "agent id is required")
	}
	if !r.LinkedAgentID.IsZero() {
		return dErrors.New(dErrors.CodeInvariantViolation, "resume is already linked to an identity")
	}
	return nil
}

// ApplyIdentityLink completes the back-link. Call CanLinkIdentity first.
func (r *Resume) ApplyIdentityLink(agentID domain.AgentID, now time.Time) {
	r.LinkedAgentID = agentID
	r.UpdatedAt = now
}

// ApplyReputationDelta moves reputation by the resolution delta, clamping the
// penalty at zero.
func (r *Resume) ApplyReputationDelta(delta int64, now time.Time) {
	if delta >= 0 {
		r.Reputation += uint64(delta)
	} else {
		penalty := uint64(-delta)
		if penalty > r.Reputation {
			r.Reputation = 0
		} else {
			r.Reputation -= penalty
		}
	}
	r.UpdatedAt = now
}

// NewResume mints a resume for an owner. The back-link starts unset; the
// orchestrator completes it within the same logical operation.
func NewResume(owner domain.Principal, agentID domain.AgentID, now time.Time) (*Resume, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "resume owner is required")
	}
	return &Resume{
		Owner:         owner,
		LinkedAgentID: agentID,
		Reputation:    ReputationBase,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Stats summarizes one resume's resolved history.
type Stats struct {
	TotalJobs      int    `json:"total_jobs"`
	SuccessfulJobs int    `json:"successful_jobs"`
	FailedJobs     int    `json:"failed_jobs"`
	Reputation     uint64 `json:"reputation"`
}

// JobTypeCount is one entry of the running per-type submission counter,
// reported in registration order for deterministic output.
type JobTypeCount struct {
	JobType JobType `json:"job_type"`
	Count   int     `json:"count"`
}
