// Package service implements the verification layer: the authorized
// verifier set, job resolution mediated through the resume layer, and the
// validation request sub-protocol.
package service

import (
	"context"
	"errors"
	"log/slog"

	resumeModels "agentledger/internal/resume/models"
	"agentledger/internal/verification/models"
	"agentledger/internal/verification/store"
	"agentledger/pkg/domain"
	dErrors "agentledger/pkg/domain-errors"
	"agentledger/pkg/platform/sentinel"
	"agentledger/pkg/requestcontext"
)

// Resolver applies terminal status transitions to job records. Satisfied by
// the resume service; mutation stays in the resume layer, this service only
// mediates authorization and bookkeeping.
type Resolver interface {
	Resolve(ctx context.Context, agentID domain.AgentID, jobID domain.JobID, status resumeModels.JobStatus, success bool) (*resumeModels.JobRecord, error)
}

// Service orchestrates verification state.
type Service struct {
	store    store.Store
	resolver Resolver
	owner    domain.Principal
	logger   *slog.Logger
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New constructs a Service. The owner principal is always authorized to
// resolve jobs and is the only principal allowed to mutate the verifier set.
func New(st store.Store, resolver Resolver, owner domain.Principal, opts ...Option) *Service {
	s := &Service{store: st, resolver: resolver, owner: owner, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddVerifier registers a principal as an authorized verifier; owner-only.
func (s *Service) AddVerifier(ctx context.Context, caller, verifier domain.Principal) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if verifier.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "verifier is required")
	}
	if err := s.store.AddVerifier(ctx, verifier); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return dErrors.New(dErrors.CodeConflict, "principal is already a verifier")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to add verifier")
	}
	s.logger.InfoContext(ctx, "verifier added", "verifier", verifier.String())
	return nil
}

// RemoveVerifier drops a principal from the verifier set; owner-only.
func (s *Service) RemoveVerifier(ctx context.Context, caller, verifier domain.Principal) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if err := s.store.RemoveVerifier(ctx, verifier); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "principal is not a verifier")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove verifier")
	}
	s.logger.InfoContext(ctx, "verifier removed", "verifier", verifier.String())
	return nil
}

// Verifiers enumerates the verifier set in registration order. The owner is
// implicitly authorized and never appears in the list.
func (s *Service) Verifiers(ctx context.Context) ([]domain.Principal, error) {
	verifiers, err := s.store.Verifiers(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verifiers")
	}
	return verifiers, nil
}

// IsAuthorized reports whether a principal may resolve job records.
func (s *Service) IsAuthorized(ctx context.Context, principal domain.Principal) (bool, error) {
	if principal == s.owner {
		return true, nil
	}
	isVerifier, err := s.store.IsVerifier(ctx, principal)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check verifier")
	}
	return isVerifier, nil
}

// VerifyJob resolves a Pending job record to Verified, carrying the
// verifier's success judgement, and records the attestation with the proof
// hash the verifier vouched for. The success flag is the canonical outcome
// signal.
func (s *Service) VerifyJob(ctx context.Context, caller domain.Principal, agentID domain.AgentID, jobID domain.JobID, success bool, proofHash domain.Digest) (*resumeModels.JobRecord, error) {
	if err := s.requireAuthorized(ctx, caller); err != nil {
		return nil, err
	}

	record, err := s.resolver.Resolve(ctx, agentID, jobID, resumeModels.StatusVerified, success)
	if err != nil {
		return nil, err
	}

	attestation := &models.Attestation{
		AgentID:   agentID,
		JobID:     jobID,
		Verifier:  caller,
		Success:   success,
		ProofHash: proofHash,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.store.RecordAttestation(ctx, attestation); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record attestation")
	}
	s.logger.InfoContext(ctx, "job verified",
		"agent_id", agentID.String(),
		"job_id", jobID.String(),
		"verifier", caller.String(),
		"success", success,
	)
	return record, nil
}

// DisputeJob resolves a Pending job record to Disputed. Disputed is terminal
// and carries no reputation effect and no proof hash requirement.
func (s *Service) DisputeJob(ctx context.Context, caller domain.Principal, agentID domain.AgentID, jobID domain.JobID) (*resumeModels.JobRecord, error) {
	if err := s.requireAuthorized(ctx, caller); err != nil {
		return nil, err
	}

	record, err := s.resolver.Resolve(ctx, agentID, jobID, resumeModels.StatusDisputed, false)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "job disputed",
		"agent_id", agentID.String(),
		"job_id", jobID.String(),
		"verifier", caller.String(),
	)
	return record, nil
}

// Attestations lists the recorded verifier resolutions for an agent.
func (s *Service) Attestations(ctx context.Context, agentID domain.AgentID) ([]models.Attestation, error) {
	attestations, err := s.store.Attestations(ctx, agentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list attestations")
	}
	return attestations, nil
}

// RequestValidation opens a general-purpose attestation request keyed by its
// content hash. A hash is usable once, ever.
func (s *Service) RequestValidation(ctx context.Context, requester, validator domain.Principal, agentID domain.AgentID, requestURI string, requestHash domain.Digest) (*models.ValidationRequest, error) {
	request, err := models.NewValidationRequest(requester, validator, agentID, requestURI, requestHash, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateValidationRequest(ctx, request); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "a validation request with this hash already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create validation request")
	}
	return request, nil
}

// Validation loads a validation request by its hash.
func (s *Service) Validation(ctx context.Context, requestHash domain.Digest) (*models.ValidationRequest, error) {
	request, err := s.store.FindValidationRequest(ctx, requestHash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "validation request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load validation request")
	}
	return request, nil
}

// RespondValidation submits the one-shot response. Only the designated
// validator or the protocol owner may respond; values at or above the
// approval threshold classify as Approved.
func (s *Service) RespondValidation(ctx context.Context, caller domain.Principal, requestHash domain.Digest, value int, responseURI string, responseHash domain.Digest, tag string) (*models.ValidationRequest, error) {
	now := requestcontext.Now(ctx)
	var responded models.ValidationRequest
	err := s.store.UpdateValidationRequest(ctx, requestHash,
		func(request *models.ValidationRequest) error {
			if caller != request.Validator && caller != s.owner {
				return dErrors.New(dErrors.CodeForbidden, "only the designated validator may respond")
			}
			if err := request.CanRespond(value, responseURI); err != nil {
				if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
					return dErrors.New(dErrors.CodeConflict, "validation request already has a response")
				}
				return err
			}
			return nil
		},
		func(request *models.ValidationRequest) {
			request.ApplyResponse(caller, value, responseURI, responseHash, tag, now)
			responded = *request
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "validation request not found")
		}
		var domainErr *dErrors.Error
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to respond to validation request")
	}
	return &responded, nil
}

func (s *Service) requireOwner(caller domain.Principal) error {
	if caller != s.owner {
		return dErrors.New(dErrors.CodeForbidden, "only the protocol owner may manage verifiers")
	}
	return nil
}

func (s *Service) requireAuthorized(ctx context.Context, caller domain.Principal) error {
	authorized, err := s.IsAuthorized(ctx, caller)
	if err != nil {
		return err
	}
	if !authorized {
		return dErrors.New(dErrors.CodeForbidden, "caller is not an authorized verifier")
	}
	return nil
}
