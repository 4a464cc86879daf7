// Package service implements the protocol orchestrator: the single write
// API composing the identity, resume, and verification layers.
//
// Every mutating entry point runs inside the Atomic boundary, and every
// failure condition of a cross-layer sequence is checked before the first
// write. Combined with the serialized execution model this guarantees that
// either all of an operation's writes land or none do, and that no caller
// ever observes a half-linked identity/resume pair.
package service

import (
	"context"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	identityModels "agentledger/internal/identity/models"
	identityService "agentledger/internal/identity/service"
	"agentledger/internal/protocol/metrics"
	resumeModels "agentledger/internal/resume/models"
	resumeService "agentledger/internal/resume/service"
	verificationService "agentledger/internal/verification/service"
	"agentledger/pkg/domain"
	dErrors "agentledger/pkg/domain-errors"
	"agentledger/pkg/platform/audit"
)

// AuditPublisher receives protocol audit events; emission is best-effort
// from the orchestrator's point of view.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Orchestrator composes the three registry layers behind one write API.
type Orchestrator struct {
	identities    *identityService.Service
	resumes       *resumeService.Service
	verifications *verificationService.Service
	atomic        Atomic
	owner         domain.Principal

	fee    atomic.Uint64
	paused atomic.Bool

	jobsSubmitted atomic.Uint64

	logger  *slog.Logger
	audit   AuditPublisher
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(o *Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(o *Orchestrator) {
		o.audit = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// New constructs an Orchestrator. The owner principal holds the protocol
// admin role: verifier set, pause switch, fees.
func New(identities *identityService.Service, resumes *resumeService.Service, verifications *verificationService.Service, atomicBoundary Atomic, owner domain.Principal, initialFee uint64, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		identities:    identities,
		resumes:       resumes,
		verifications: verifications,
		atomic:        atomicBoundary,
		owner:         owner,
		logger:        slog.Default(),
		tracer:        otel.Tracer("agentledger/internal/protocol"),
	}
	o.fee.Store(initialFee)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RegisterAgent mints an identity and its resume as one logical operation.
//
// The sequence is a two-phase handshake: the resume is minted first with a
// zero back-link (its ID is needed for the identity's forward link), the
// identity is registered pointing at it, and the resume's back-link is then
// completed. All failure conditions are checked before the first write, so
// the in-memory Atomic (which cannot roll back) never strands state.
func (o *Orchestrator) RegisterAgent(ctx context.Context, caller domain.Principal, metadataKeys []string, metadata map[string][]byte) (*identityModels.Identity, *resumeModels.Resume, error) {
	ctx, span := o.tracer.Start(ctx, "protocol.register_agent")
	defer span.End()

	if err := o.requireUnpaused(); err != nil {
		return nil, nil, err
	}
	if caller.IsZero() {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "caller is required")
	}
	if err := identityModels.ValidateMetadataEntries(metadataKeys, metadata); err != nil {
		return nil, nil, err
	}

	var (
		identity *identityModels.Identity
		resume   *resumeModels.Resume
	)
	err := o.atomic.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := o.identities.RegisteredID(ctx, caller); err == nil {
			return dErrors.New(dErrors.CodeConflict, "principal has already registered an identity")
		} else if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return err
		}

		minted, err := o.resumes.Mint(ctx, caller, 0)
		if err != nil {
			return err
		}
		registered, err := o.identities.Register(ctx, caller, minted.ID, metadataKeys, metadata)
		if err != nil {
			return err
		}
		if err := o.resumes.LinkIdentity(ctx, minted.ID, registered.ID); err != nil {
			return err
		}
		minted.LinkedAgentID = registered.ID

		identity, resume = registered, minted
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if o.metrics != nil {
		o.metrics.IncrementAgentsRegistered()
	}
	o.emitAudit(ctx, audit.Event{
		Actor:   caller,
		AgentID: identity.ID,
		Action:  string(audit.EventAgentRegistered),
	})
	return identity, resume, nil
}

// SubmitJobParams carries a job record submission through the protocol API.
type SubmitJobParams struct {
	JobType     resumeModels.JobType
	Description string
	ProofURI    string
	ProofHash   domain.Digest
	Value       uint64
	Tags        []string
	OfferedFee  uint64
}

// SubmitJobRecord appends a Pending job record to an agent's resume. Any
// caller may submit, provided they cover the configured verification fee;
// the offered fee is accrued into the withdrawable balance.
func (o *Orchestrator) SubmitJobRecord(ctx context.Context, caller domain.Principal, agentID domain.AgentID, params SubmitJobParams) (*resumeModels.JobRecord, error) {
	ctx, span := o.tracer.Start(ctx, "protocol.submit_job_record")
	defer span.End()

	if err := o.requireUnpaused(); err != nil {
		return nil, err
	}
	if required := o.fee.Load(); params.OfferedFee < required {
		return nil, dErrors.New(dErrors.CodeValidation, "insufficient verification fee")
	}

	var record *resumeModels.JobRecord
	err := o.atomic.RunInTx(ctx, func(ctx context.Context) error {
		appended, err := o.resumes.AddJobRecord(ctx, agentID, resumeService.AddJobParams{
			Submitter:   caller,
			JobType:     params.JobType,
			Description: params.Description,
			ProofURI:    params.ProofURI,
			ProofHash:   params.ProofHash,
			Value:       params.Value,
			Tags:        params.Tags,
		}, params.OfferedFee)
		if err != nil {
			return err
		}
		record = appended
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.jobsSubmitted.Add(1)
	if o.metrics != nil {
		o.metrics.IncrementJobsSubmitted()
		o.metrics.AddFeesCollected(params.OfferedFee)
	}
	o.emitAudit(ctx, audit.Event{
		Actor:     caller,
		AgentID:   agentID,
		JobID:     record.JobID,
		Action:    string(audit.EventJobSubmitted),
		ProofHash: record.ProofHash.String(),
	})
	return record, nil
}

// VerifyJob resolves a Pending record through the verification layer.
func (o *Orchestrator) VerifyJob(ctx context.Context, caller domain.Principal, agentID domain.AgentID, jobID domain.JobID, success bool, proofHash domain.Digest) (*resumeModels.JobRecord, error) {
	ctx, span := o.tracer.Start(ctx, "protocol.verify_job")
	defer span.End()

	if err := o.requireUnpaused(); err != nil {
		return nil, err
	}

	var record *resumeModels.JobRecord
	err := o.atomic.RunInTx(ctx, func(ctx context.Context) error {
		verified, err := o.verifications.VerifyJob(ctx, caller, agentID, jobID, success, proofHash)
		if err != nil {
			return err
		}
		record = verified
		return nil
	})
	if err != nil {
		return nil, err
	}

	if o.metrics != nil {
		o.metrics.IncrementJobsResolved(string(record.Status))
	}
	o.emitAudit(ctx, audit.Event{
		Actor:     caller,
		AgentID:   agentID,
		JobID:     jobID,
		Action:    string(audit.EventJobVerified),
		ProofHash: proofHash.String(),
	})
	return record, nil
}

// DisputeJob resolves a Pending record to Disputed.
func (o *Orchestrator) DisputeJob(ctx context.Context, caller domain.Principal, agentID domain.AgentID, jobID domain.JobID) (*resumeModels.JobRecord, error) {
	ctx, span := o.tracer.Start(ctx, "protocol.dispute_job")
	defer span.End()

	if err := o.requireUnpaused(); err != nil {
		return nil, err
	}

	var record *resumeModels.JobRecord
	err := o.atomic.RunInTx(ctx, func(ctx context.Context) error {
		disputed, err := o.verifications.DisputeJob(ctx, caller, agentID, jobID)
		if err != nil {
			return err
		}
		record = disputed
		return nil
	})
	if err != nil {
		return nil, err
	}

	if o.metrics != nil {
		o.metrics.IncrementJobsResolved(string(record.Status))
	}
	o.emitAudit(ctx, audit.Event{
		Actor:   caller,
		AgentID: agentID,
		JobID:   jobID,
		Action:  string(audit.EventJobDisputed),
	})
	return record, nil
}

// ReplayJobParams carries one historical job record replayed from a
// prior-schema registry.
type ReplayJobParams struct {
	Submitter   domain.Principal
	JobType     resumeModels.JobType
	Description string
	ProofURI    string
	ProofHash   domain.Digest
	Value       uint64
	Tags        []string
}

// ReplayJobRecord appends a historical record on behalf of its original
// submitter without fee collection. Owner-only, and exempt from the paused
// gate so a migration can run while the protocol is paused for cutover.
func (o *Orchestrator) ReplayJobRecord(ctx context.Context, caller domain.Principal, agentID domain.AgentID, params ReplayJobParams) (*resumeModels.JobRecord, error) {
	ctx, span := o.tracer.Start(ctx, "protocol.replay_job_record")
	defer span.End()

	if err := o.requireOwner(caller); err != nil {
		return nil, err
	}

	var record *resumeModels.JobRecord
	err := o.atomic.RunInTx(ctx, func(ctx context.Context) error {
		appended, err := o.resumes.AddJobRecord(ctx, agentID, resumeService.AddJobParams{
			Submitter:   params.Submitter,
			JobType:     params.JobType,
			Description: params.Description,
			ProofURI:    params.ProofURI,
			ProofHash:   params.ProofHash,
			Value:       params.Value,
			Tags:        params.Tags,
		}, 0)
		if err != nil {
			return err
		}
		record = appended
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.jobsSubmitted.Add(1)
	if o.metrics != nil {
		o.metrics.IncrementJobsSubmitted()
	}
	o.emitAudit(ctx, audit.Event{
		Actor:     caller,
		AgentID:   agentID,
		JobID:     record.JobID,
		Action:    string(audit.EventJobReplayed),
		ProofHash: record.ProofHash.String(),
	})
	return record, nil
}

// ReplayResolution writes a historical terminal status, including the legacy
// Failed status the live verification path never produces. Owner-only and,
// like ReplayJobRecord, exempt from the paused gate.
func (o *Orchestrator) ReplayResolution(ctx context.Context, caller domain.Principal, agentID domain.AgentID, jobID domain.JobID, status resumeModels.JobStatus, success bool) (*resumeModels.JobRecord, error) {
	ctx, span := o.tracer.Start(ctx, "protocol.replay_resolution")
	defer span.End()

	if err := o.requireOwner(caller); err != nil {
		return nil, err
	}

	var record *resumeModels.JobRecord
	err := o.atomic.RunInTx(ctx, func(ctx context.Context) error {
		resolved, err := o.resumes.Resolve(ctx, agentID, jobID, status, success)
		if err != nil {
			return err
		}
		record = resolved
		return nil
	})
	if err != nil {
		return nil, err
	}

	if o.metrics != nil {
		o.metrics.IncrementJobsResolved(string(record.Status))
	}
	o.emitAudit(ctx, audit.Event{
		Actor:   caller,
		AgentID: agentID,
		JobID:   jobID,
		Action:  string(audit.EventJobReplayed),
	})
	return record, nil
}

// GiveFeedback appends a client rating to an agent's feedback ledger.
func (o *Orchestrator) GiveFeedback(ctx context.Context, caller domain.Principal, agentID domain.AgentID, params resumeService.FeedbackParams) (int, error) {
	ctx, span := o.tracer.Start(ctx, "protocol.give_feedback")
	defer span.End()

	if err := o.requireUnpaused(); err != nil {
		return 0, err
	}

	var index int
	err := o.atomic.RunInTx(ctx, func(ctx context.Context) error {
		appended, err := o.resumes.GiveFeedback(ctx, agentID, caller, params)
		if err != nil {
			return err
		}
		index = appended
		return nil
	})
	if err != nil {
		return 0, err
	}

	if o.metrics != nil {
		o.metrics.IncrementFeedbackGiven()
	}
	o.emitAudit(ctx, audit.Event{
		Actor:   caller,
		AgentID: agentID,
		Action:  string(audit.EventFeedbackGiven),
	})
	return index, nil
}

// RevokeFeedback marks the caller's own feedback entry revoked.
func (o *Orchestrator) RevokeFeedback(ctx context.Context, caller domain.Principal, agentID domain.AgentID, index int) error {
	ctx, span := o.tracer.Start(ctx, "protocol.revoke_feedback")
	defer span.End()

	if err := o.requireUnpaused(); err != nil {
		return err
	}

	err := o.atomic.RunInTx(ctx, func(ctx context.Context) error {
		return o.resumes.RevokeFeedback(ctx, agentID, caller, index)
	})
	if err != nil {
		return err
	}

	o.emitAudit(ctx, audit.Event{
		Actor:   caller,
		AgentID: agentID,
		Action:  string(audit.EventFeedbackRevoked),
	})
	return nil
}

// SetMetadata overwrites or creates an identity metadata entry.
func (o *Orchestrator) SetMetadata(ctx context.Context, caller domain.Principal, agentID domain.AgentID, key string, value []byte) error {
	ctx, span := o.tracer.Start(ctx, "protocol.set_metadata")
	defer span.End()

	if err := o.requireUnpaused(); err != nil {
		return err
	}

	err := o.atomic.RunInTx(ctx, func(ctx context.Context) error {
		return o.identities.SetMetadata(ctx, caller, agentID, key, value)
	})
	if err != nil {
		return err
	}

	o.emitAudit(ctx, audit.Event{
		Actor:   caller,
		AgentID: agentID,
		Action:  string(audit.EventIdentityUpdated),
		Reason:  key,
	})
	return nil
}

// TransferIdentity moves control of an identity. The bound resume and its
// history follow the identity to the new controller.
func (o *Orchestrator) TransferIdentity(ctx context.Context, caller domain.Principal, agentID domain.AgentID, newController domain.Principal) error {
	ctx, span := o.tracer.Start(ctx, "protocol.transfer_identity")
	defer span.End()

	if err := o.requireUnpaused(); err != nil {
		return err
	}

	err := o.atomic.RunInTx(ctx, func(ctx context.Context) error {
		return o.identities.Transfer(ctx, caller, agentID, newController)
	})
	if err != nil {
		return err
	}

	o.emitAudit(ctx, audit.Event{
		Actor:   caller,
		AgentID: agentID,
		Action:  string(audit.EventIdentityTransfer),
		Reason:  newController.String(),
	})
	return nil
}

// AddVerifier registers an authorized verifier; owner-only.
func (o *Orchestrator) AddVerifier(ctx context.Context, caller, verifier domain.Principal) error {
	ctx, span := o.tracer.Start(ctx, "protocol.add_verifier")
	defer span.End()

	if err := o.requireUnpaused(); err != nil {
		return err
	}

	err := o.atomic.RunInTx(ctx, func(ctx context.Context) error {
		return o.verifications.AddVerifier(ctx, caller, verifier)
	})
	if err != nil {
		return err
	}

	o.emitAudit(ctx, audit.Event{
		Actor:  caller,
		Action: string(audit.EventVerifierAdded),
		Reason: verifier.String(),
	})
	return nil
}

// RemoveVerifier drops an authorized verifier; owner-only.
func (o *Orchestrator) RemoveVerifier(ctx context.Context, caller, verifier domain.Principal) error {
	ctx, span := o.tracer.Start(ctx, "protocol.remove_verifier")
	defer span.End()

	if err := o.requireUnpaused(); err != nil {
		return err
	}

	err := o.atomic.RunInTx(ctx, func(ctx context.Context) error {
		return o.verifications.RemoveVerifier(ctx, caller, verifier)
	})
	if err != nil {
		return err
	}

	o.emitAudit(ctx, audit.Event{
		Actor:  caller,
		Action: string(audit.EventVerifierRemoved),
		Reason: verifier.String(),
	})
	return nil
}

// RequestValidation opens a validation request keyed by its content hash.
func (o *Orchestrator) RequestValidation(ctx context.Context, requester, validator domain.Principal, agentID domain.AgentID, requestURI string, requestHash domain.Digest) error {
	ctx, span := o.tracer.Start(ctx, "protocol.request_validation")
	defer span.End()

	if err := o.requireUnpaused(); err != nil {
		return err
	}

	err := o.atomic.RunInTx(ctx, func(ctx context.Context) error {
		_, err := o.verifications.RequestValidation(ctx, requester, validator, agentID, requestURI, requestHash)
		return err
	})
	if err != nil {
		return err
	}

	o.emitAudit(ctx, audit.Event{
		Actor:     requester,
		AgentID:   agentID,
		Action:    string(audit.EventValidationRequested),
		ProofHash: requestHash.String(),
	})
	return nil
}

// RespondValidation submits the one-shot validator response.
func (o *Orchestrator) RespondValidation(ctx context.Context, caller domain.Principal, requestHash domain.Digest, value int, responseURI string, responseHash domain.Digest, tag string) error {
	ctx, span := o.tracer.Start(ctx, "protocol.respond_validation")
	defer span.End()

	if err := o.requireUnpaused(); err != nil {
		return err
	}

	err := o.atomic.RunInTx(ctx, func(ctx context.Context) error {
		_, err := o.verifications.RespondValidation(ctx, caller, requestHash, value, responseURI, responseHash, tag)
		return err
	})
	if err != nil {
		return err
	}

	o.emitAudit(ctx, audit.Event{
		Actor:     caller,
		Action:    string(audit.EventValidationResponded),
		ProofHash: requestHash.String(),
	})
	return nil
}

// SetPaused flips the protocol pause switch; owner-only. Pause and fee
// administration stay available while paused.
func (o *Orchestrator) SetPaused(ctx context.Context, caller domain.Principal, paused bool) error {
	if err := o.requireOwner(caller); err != nil {
		return err
	}
	o.paused.Store(paused)
	if o.metrics != nil {
		o.metrics.SetPaused(paused)
	}

	action := audit.EventProtocolResumed
	if paused {
		action = audit.EventProtocolPaused
	}
	o.emitAudit(ctx, audit.Event{Actor: caller, Action: string(action)})
	o.logger.InfoContext(ctx, "pause switch set", "paused", paused)
	return nil
}

// Paused reports the pause switch.
func (o *Orchestrator) Paused() bool { return o.paused.Load() }

// SetVerificationFee updates the fee required per job submission;
// owner-only.
func (o *Orchestrator) SetVerificationFee(ctx context.Context, caller domain.Principal, fee uint64) error {
	if err := o.requireOwner(caller); err != nil {
		return err
	}
	o.fee.Store(fee)
	o.emitAudit(ctx, audit.Event{Actor: caller, Action: string(audit.EventFeeUpdated)})
	o.logger.InfoContext(ctx, "verification fee updated", "fee", fee)
	return nil
}

// VerificationFee reports the currently required submission fee.
func (o *Orchestrator) VerificationFee() uint64 { return o.fee.Load() }

// WithdrawFees drains the accrued fee balance to a recipient; owner-only.
// Fails when the balance is zero. Actual settlement of the withdrawn amount
// is the custody layer's concern.
func (o *Orchestrator) WithdrawFees(ctx context.Context, caller, to domain.Principal) (uint64, error) {
	ctx, span := o.tracer.Start(ctx, "protocol.withdraw_fees")
	defer span.End()

	if err := o.requireOwner(caller); err != nil {
		return 0, err
	}
	if to.IsZero() {
		return 0, dErrors.New(dErrors.CodeValidation, "withdrawal recipient is required")
	}

	var withdrawn uint64
	err := o.atomic.RunInTx(ctx, func(ctx context.Context) error {
		amount, err := o.resumes.WithdrawFees(ctx)
		if err != nil {
			return err
		}
		withdrawn = amount
		return nil
	})
	if err != nil {
		return 0, err
	}

	o.emitAudit(ctx, audit.Event{
		Actor:  caller,
		Action: string(audit.EventFeesWithdrawn),
		Reason: to.String(),
	})
	return withdrawn, nil
}

// ProtocolStats is the registry-wide bookkeeping snapshot.
type ProtocolStats struct {
	TotalAgentsRegistered int    `json:"total_agents_registered"`
	TotalJobsSubmitted    uint64 `json:"total_jobs_submitted"`
	VerificationFee       uint64 `json:"verification_fee"`
	FeeBalance            uint64 `json:"fee_balance"`
	Paused                bool   `json:"paused"`
}

// Stats reports the protocol-level counters.
func (o *Orchestrator) Stats(ctx context.Context) (*ProtocolStats, error) {
	agents, err := o.identities.Count(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := o.resumes.FeeBalance(ctx)
	if err != nil {
		return nil, err
	}
	return &ProtocolStats{
		TotalAgentsRegistered: agents,
		TotalJobsSubmitted:    o.jobsSubmitted.Load(),
		VerificationFee:       o.fee.Load(),
		FeeBalance:            balance,
		Paused:                o.paused.Load(),
	}, nil
}

func (o *Orchestrator) requireUnpaused() error {
	if o.paused.Load() {
		return dErrors.New(dErrors.CodeUnavailable, "protocol is paused")
	}
	return nil
}

func (o *Orchestrator) requireOwner(caller domain.Principal) error {
	if caller != o.owner {
		return dErrors.New(dErrors.CodeForbidden, "only the protocol owner may perform this operation")
	}
	return nil
}

func (o *Orchestrator) emitAudit(ctx context.Context, event audit.Event) {
	if o.audit == nil {
		return
	}
	if err := o.audit.Emit(ctx, event); err != nil {
		o.logger.WarnContext(ctx, "audit emission failed", "action", event.Action, "error", err)
	}
}
