// Package service implements the resume layer: non-transferable work
// histories, job record submission and resolution, and client feedback.
//
// Mutating entry points that cross layers (registration, verification,
// fee-bearing submission) are reached through the protocol orchestrator;
// this service never consults the identity layer itself.
package service

import (
	"context"
	"errors"
	"log/slog"

	"agentledger/internal/resume/models"
	"agentledger/internal/resume/store"
	"agentledger/pkg/domain"
	dErrors "agentledger/pkg/domain-errors"
	"agentledger/pkg/platform/sentinel"
	"agentledger/pkg/requestcontext"
)

// Service orchestrates resume state.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New constructs a Service.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{store: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mint creates a resume for an owner. A zero agentID defers the identity
// link; the caller completes it with LinkIdentity in the same logical
// operation.
func (s *Service) Mint(ctx context.Context, owner domain.Principal, agentID domain.AgentID) (*models.Resume, error) {
	resume, err := models.NewResume(owner, agentID, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, resume); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "identity already has a resume")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint resume")
	}
	return resume, nil
}

// LinkIdentity completes the back-link from a resume to its identity. The
// link is written at most once for any resume and any identity.
func (s *Service) LinkIdentity(ctx context.Context, resumeID domain.ResumeID, agentID domain.AgentID) error {
	if agentID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "agent id is required")
	}
	err := s.store.SetIdentityLink(ctx, resumeID, agentID, requestcontext.Now(ctx))
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "resume not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeConflict, "resume is already linked to an identity")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "identity already has a resume")
	case err != nil:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to link resume")
	}
	return nil
}

// Get loads a resume by its ID.
func (s *Service) Get(ctx context.Context, resumeID domain.ResumeID) (*models.Resume, error) {
	resume, err := s.store.FindByID(ctx, resumeID)
	if err != nil {
		return nil, wrapResumeErr(err, "failed to load resume")
	}
	return resume, nil
}

// ByAgent loads the resume bound to an identity.
func (s *Service) ByAgent(ctx context.Context, agentID domain.AgentID) (*models.Resume, error) {
	resume, err := s.store.FindByAgent(ctx, agentID)
	if err != nil {
		return nil, wrapResumeErr(err, "failed to load resume")
	}
	return resume, nil
}

// Locked reports the transfer lock of a resume. It is true for every resume
// that exists; the lookup only distinguishes "locked" from "no such resume".
func (s *Service) Locked(ctx context.Context, resumeID domain.ResumeID) (bool, error) {
	resume, err := s.store.FindByID(ctx, resumeID)
	if err != nil {
		return false, wrapResumeErr(err, "failed to load resume")
	}
	return resume.Locked(), nil
}

// Transfer always fails: resumes are permanently bound to the identity they
// were minted for.
func (s *Service) Transfer(ctx context.Context, resumeID domain.ResumeID, to domain.Principal) error {
	if _, err := s.store.FindByID(ctx, resumeID); err != nil {
		return wrapResumeErr(err, "failed to load resume")
	}
	return dErrors.New(dErrors.CodeConflict, "resume is permanently bound and cannot be transferred")
}

// AddJobParams carries the validated submission inputs for a job record.
type AddJobParams struct {
	Submitter   domain.Principal
	JobType     models.JobType
	Description string
	ProofURI    string
	ProofHash   domain.Digest
	Value       uint64
	Tags        []string
}

// AddJobRecord appends a Pending job record to an agent's resume and accrues
// the charged fee. The returned record carries the assigned registry-wide
// job ID.
func (s *Service) AddJobRecord(ctx context.Context, agentID domain.AgentID, params AddJobParams, fee uint64) (*models.JobRecord, error) {
	record, err := models.NewJobRecord(params.Submitter, params.JobType, params.Description,
		params.ProofURI, params.ProofHash, params.Value, params.Tags, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if _, err := s.store.AppendJob(ctx, agentID, record, fee); err != nil {
		return nil, wrapResumeErr(err, "failed to append job record")
	}
	s.logger.InfoContext(ctx, "job record appended",
		"agent_id", agentID.String(),
		"job_id", record.JobID.String(),
		"job_type", string(record.JobType),
	)
	return record, nil
}

// Resolve writes a terminal status onto a Pending job record and applies the
// matching reputation delta, exactly once per record.
func (s *Service) Resolve(ctx context.Context, agentID domain.AgentID, jobID domain.JobID, status models.JobStatus, success bool) (*models.JobRecord, error) {
	if !status.IsValid() || !status.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeValidation, "resolution status must be terminal")
	}

	now := requestcontext.Now(ctx)
	var resolved models.JobRecord
	err := s.store.ResolveJob(ctx, agentID, jobID, func(resume *models.Resume, job *models.JobRecord) error {
		if err := job.CanResolve(); err != nil {
			return dErrors.New(dErrors.CodeConflict, "job record is already resolved")
		}
		job.ApplyResolution(status, success, now)
		resume.ApplyReputationDelta(models.ReputationDelta(status, success), now)
		resolved = *job
		return nil
	})
	if err != nil {
		return nil, wrapResumeErr(err, "failed to resolve job record")
	}
	s.logger.InfoContext(ctx, "job record resolved",
		"agent_id", agentID.String(),
		"job_id", jobID.String(),
		"status", string(status),
		"success", success,
	)
	return &resolved, nil
}

// JobRecords lists an agent's job records in submission order.
func (s *Service) JobRecords(ctx context.Context, agentID domain.AgentID) ([]models.JobRecord, error) {
	jobs, err := s.store.ListJobs(ctx, agentID)
	if err != nil {
		return nil, wrapResumeErr(err, "failed to list job records")
	}
	return jobs, nil
}

// JobRecord loads a single job record.
func (s *Service) JobRecord(ctx context.Context, agentID domain.AgentID, jobID domain.JobID) (*models.JobRecord, error) {
	job, err := s.store.FindJob(ctx, agentID, jobID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "job record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load job record")
	}
	return job, nil
}

// JobTypeCounts reports the running per-type submission counters.
func (s *Service) JobTypeCounts(ctx context.Context, agentID domain.AgentID) ([]models.JobTypeCount, error) {
	counts, err := s.store.JobTypeCounts(ctx, agentID)
	if err != nil {
		return nil, wrapResumeErr(err, "failed to count job types")
	}
	return counts, nil
}

// Stats folds an agent's resolved history into summary counters.
func (s *Service) Stats(ctx context.Context, agentID domain.AgentID) (*models.Stats, error) {
	resume, err := s.store.FindByAgent(ctx, agentID)
	if err != nil {
		return nil, wrapResumeErr(err, "failed to load resume")
	}
	jobs, err := s.store.ListJobs(ctx, agentID)
	if err != nil {
		return nil, wrapResumeErr(err, "failed to list job records")
	}

	stats := &models.Stats{TotalJobs: len(jobs), Reputation: resume.Reputation}
	for i := range jobs {
		if jobs[i].Successful() {
			stats.SuccessfulJobs++
		}
		if jobs[i].Failed() {
			stats.FailedJobs++
		}
	}
	return stats, nil
}

// Reputation reads an agent's current reputation score.
func (s *Service) Reputation(ctx context.Context, agentID domain.AgentID) (uint64, error) {
	resume, err := s.store.FindByAgent(ctx, agentID)
	if err != nil {
		return 0, wrapResumeErr(err, "failed to load resume")
	}
	return resume.Reputation, nil
}

// FeedbackParams carries the validated inputs for a feedback submission.
type FeedbackParams struct {
	Score    int
	Tag1     string
	Tag2     string
	FileURI  string
	FileHash domain.Digest
}

// GiveFeedback appends a client rating to an agent's feedback ledger and
// returns the entry's per-client index.
func (s *Service) GiveFeedback(ctx context.Context, agentID domain.AgentID, client domain.Principal, params FeedbackParams) (int, error) {
	entry, err := models.NewFeedback(client, params.Score, params.Tag1, params.Tag2,
		params.FileURI, params.FileHash, requestcontext.Now(ctx))
	if err != nil {
		return 0, err
	}
	index, err := s.store.AppendFeedback(ctx, agentID, entry)
	if err != nil {
		return 0, wrapResumeErr(err, "failed to append feedback")
	}
	return index, nil
}

// RevokeFeedback marks the caller's own feedback entry revoked. The index is
// the per-client index returned by GiveFeedback; callers can never address
// another client's entries.
func (s *Service) RevokeFeedback(ctx context.Context, agentID domain.AgentID, caller domain.Principal, index int) error {
	if caller.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is required")
	}
	err := s.store.RevokeFeedback(ctx, agentID, caller, index, func(entry *models.Feedback) error {
		if err := entry.CanRevoke(); err != nil {
			return dErrors.New(dErrors.CodeConflict, "feedback entry is already revoked")
		}
		entry.ApplyRevocation()
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "feedback entry not found")
		}
		return wrapResumeErr(err, "failed to revoke feedback")
	}
	return nil
}

// Feedback lists one client's entries for an agent, including revoked ones.
func (s *Service) Feedback(ctx context.Context, agentID domain.AgentID, client domain.Principal) ([]models.Feedback, error) {
	entries, err := s.store.ListFeedback(ctx, agentID, client)
	if err != nil {
		return nil, wrapResumeErr(err, "failed to list feedback")
	}
	return entries, nil
}

// FeedbackClients enumerates the clients that have ever rated an agent.
func (s *Service) FeedbackClients(ctx context.Context, agentID domain.AgentID) ([]domain.Principal, error) {
	clients, err := s.store.FeedbackClients(ctx, agentID)
	if err != nil {
		return nil, wrapResumeErr(err, "failed to list feedback clients")
	}
	return clients, nil
}

// SummarizeFeedback aggregates active (non-revoked) entries across the given
// clients, optionally filtered to entries carrying any of the given tags. An
// empty client list means every known client; an empty tag list matches all
// entries. The average is an integer average, zero when nothing matches.
func (s *Service) SummarizeFeedback(ctx context.Context, agentID domain.AgentID, clients []domain.Principal, tags []string) (*models.FeedbackSummary, error) {
	if len(clients) == 0 {
		known, err := s.store.FeedbackClients(ctx, agentID)
		if err != nil {
			return nil, wrapResumeErr(err, "failed to list feedback clients")
		}
		clients = known
	}

	summary := &models.FeedbackSummary{}
	var total uint64
	for _, client := range clients {
		entries, err := s.store.ListFeedback(ctx, agentID, client)
		if err != nil {
			return nil, wrapResumeErr(err, "failed to list feedback")
		}
		for i := range entries {
			if entries[i].Revoked || !entries[i].MatchesTags(tags) {
				continue
			}
			summary.Count++
			total += uint64(entries[i].Score)
		}
	}
	if summary.Count > 0 {
		summary.AverageScore = total / uint64(summary.Count)
	}
	return summary, nil
}

// FeeBalance reports the accrued verification fee balance.
func (s *Service) FeeBalance(ctx context.Context) (uint64, error) {
	balance, err := s.store.FeeBalance(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read fee balance")
	}
	return balance, nil
}

// WithdrawFees drains the accrued fee balance.
func (s *Service) WithdrawFees(ctx context.Context) (uint64, error) {
	withdrawn, err := s.store.WithdrawFees(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return 0, dErrors.New(dErrors.CodeConflict, "no fees to withdraw")
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to withdraw fees")
	}
	s.logger.InfoContext(ctx, "fees withdrawn", "amount", withdrawn)
	return withdrawn, nil
}

// wrapResumeErr translates store sentinels into coded domain errors. The
// common case is a lookup for an identity that has no resume.
func wrapResumeErr(err error, internalMsg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "no resume exists for this identity")
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
}
