// Package store persists resumes, job records, and feedback ledgers.
//
// Implementations return pkg/platform/sentinel errors for factual conditions
// (ErrNotFound, ErrAlreadyUsed, ErrInvalidState); the service layer
// translates them into coded domain errors. All mutating methods are
// append-only or one-way by contract: nothing is ever deleted.
package store

import (
	"context"
	"time"

	"agentledger/internal/resume/models"
	"agentledger/pkg/domain"
)

// Store is the resume registry's persistence boundary.
type Store interface {
	// Create mints a resume and assigns the next ResumeID. When the resume
	// carries a non-zero LinkedAgentID, the agent must not already have one
	// (ErrAlreadyUsed).
	Create(ctx context.Context, resume *models.Resume) error

	FindByID(ctx context.Context, resumeID domain.ResumeID) (*models.Resume, error)
	FindByAgent(ctx context.Context, agentID domain.AgentID) (*models.Resume, error)

	// SetIdentityLink completes the back-link half of the bidirectional
	// identity/resume linkage. Fails with ErrInvalidState when the resume is
	// already linked and ErrAlreadyUsed when the agent already has a resume.
	SetIdentityLink(ctx context.Context, resumeID domain.ResumeID, agentID domain.AgentID, now time.Time) error

	// AppendJob assigns the next registry-wide JobID, appends the record to
	// the agent's resume, bumps the per-type submission counter, and accrues
	// the fee into the withdrawable balance, atomically.
	AppendJob(ctx context.Context, agentID domain.AgentID, record *models.JobRecord, fee uint64) (domain.JobID, error)

	// ResolveJob runs the resolve callback against the live resume and job
	// record under the store's write lock (mutex or FOR UPDATE). The
	// callback must validate before mutating; if it returns an error the
	// record is left untouched.
	ResolveJob(ctx context.Context, agentID domain.AgentID, jobID domain.JobID, resolve func(resume *models.Resume, job *models.JobRecord) error) error

	ListJobs(ctx context.Context, agentID domain.AgentID) ([]models.JobRecord, error)
	FindJob(ctx context.Context, agentID domain.AgentID, jobID domain.JobID) (*models.JobRecord, error)
	JobTypeCounts(ctx context.Context, agentID domain.AgentID) ([]models.JobTypeCount, error)

	// AppendFeedback appends an entry to the client's ledger, registering
	// the client in the enumerable client list on first submission. Returns
	// the entry's per-client index.
	AppendFeedback(ctx context.Context, agentID domain.AgentID, feedback *models.Feedback) (int, error)

	// RevokeFeedback runs the revoke callback against the client's entry at
	// the given per-client index under the store's write lock.
	RevokeFeedback(ctx context.Context, agentID domain.AgentID, client domain.Principal, index int, revoke func(*models.Feedback) error) error

	ListFeedback(ctx context.Context, agentID domain.AgentID, client domain.Principal) ([]models.Feedback, error)
	FeedbackClients(ctx context.Context, agentID domain.AgentID) ([]domain.Principal, error)

	// FeeBalance reports the accrued, not-yet-withdrawn fee balance.
	FeeBalance(ctx context.Context) (uint64, error)
	// WithdrawFees zeroes the balance and returns the withdrawn amount.
	// Fails with ErrInvalidState when the balance is already zero.
	WithdrawFees(ctx context.Context) (uint64, error)
}
