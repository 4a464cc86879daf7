// Package store persists agent identities.
package store

import (
	"context"

	"agentledger/internal/identity/models"
	"agentledger/pkg/domain"
)

// Store is the identity registry's persistence boundary. Implementations
// return pkg/platform/sentinel errors for factual conditions.
type Store interface {
	// Create mints an identity and assigns the next AgentID. A principal
	// controls at most one identity at a time (ErrAlreadyUsed); transferring
	// an identity away frees the old controller to register again.
	Create(ctx context.Context, identity *models.Identity) error

	FindByID(ctx context.Context, agentID domain.AgentID) (*models.Identity, error)

	// RegisteredID reports the identity the principal currently controls.
	RegisteredID(ctx context.Context, principal domain.Principal) (domain.AgentID, error)

	// Update runs validate then apply against the live identity under the
	// store's write lock. If validate fails nothing is written. An apply
	// that moves control to a principal who already controls an identity
	// fails with ErrAlreadyUsed and writes nothing.
	Update(ctx context.Context, agentID domain.AgentID, validate func(*models.Identity) error, apply func(*models.Identity)) error

	Count(ctx context.Context) (int, error)
}
