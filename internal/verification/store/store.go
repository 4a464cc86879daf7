// Package store persists the verifier set, attestations, and validation
// requests.
package store

import (
	"context"

	"agentledger/internal/verification/models"
	"agentledger/pkg/domain"
)

// Store is the verification layer's persistence boundary. Implementations
// return pkg/platform/sentinel errors for factual conditions.
type Store interface {
	// AddVerifier registers a principal in the enumerable verifier set
	// (ErrAlreadyUsed when already a member).
	AddVerifier(ctx context.Context, verifier domain.Principal) error
	// RemoveVerifier drops a member (ErrNotFound when absent).
	RemoveVerifier(ctx context.Context, verifier domain.Principal) error
	IsVerifier(ctx context.Context, principal domain.Principal) (bool, error)
	// Verifiers enumerates members in registration order.
	Verifiers(ctx context.Context) ([]domain.Principal, error)

	// RecordAttestation appends a verifier's resolution record.
	RecordAttestation(ctx context.Context, attestation *models.Attestation) error
	Attestations(ctx context.Context, agentID domain.AgentID) ([]models.Attestation, error)

	// CreateValidationRequest registers a request keyed by its hash
	// (ErrAlreadyUsed when the hash is already known, open or answered).
	CreateValidationRequest(ctx context.Context, request *models.ValidationRequest) error
	FindValidationRequest(ctx context.Context, requestHash domain.Digest) (*models.ValidationRequest, error)
	// UpdateValidationRequest runs validate then apply against the live
	// request under the store's write lock.
	UpdateValidationRequest(ctx context.Context, requestHash domain.Digest, validate func(*models.ValidationRequest) error, apply func(*models.ValidationRequest)) error
}
