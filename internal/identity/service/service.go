// Package service implements the identity layer: transferable agent
// identities with controller-gated metadata and the forward half of the
// identity/resume link.
package service

import (
	"context"
	"errors"
	"log/slog"

	"agentledger/internal/identity/models"
	"agentledger/internal/identity/store"
	"agentledger/pkg/domain"
	dErrors "agentledger/pkg/domain-errors"
	"agentledger/pkg/platform/sentinel"
	"agentledger/pkg/requestcontext"
)

// Service orchestrates identity state.
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

// Register mints an identity for the caller, carrying the forward resume
// link and the initial metadata. A principal controls at most one identity
// at a time; transferring an identity away frees the principal to register
// again.
func (s *Service) Register(ctx context.Context, controller domain.Principal, resumeID domain.ResumeID, metadataKeys []string, metadata map[string][]byte) (*models.Identity, error) {
	identity, err := models.NewIdentity(controller, resumeID, metadataKeys, metadata, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, identity); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "principal has already registered an identity")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register identity")
	}
	s.logger.InfoContext(ctx, "identity registered",
		"agent_id", identity.ID.String(),
		"controller", controller.String(),
	)
	return identity, nil
}

// Get loads an identity.
func (s *Service) Get(ctx context.Context, agentID domain.AgentID) (*models.Identity, error) {
	identity, err := s.store.FindByID(ctx, agentID)
	if err != nil {
		return nil, wrapIdentityErr(err, "failed to load identity")
	}
	return identity, nil
}

// RegisteredID resolves the identity the principal currently controls, if any.
func (s *Service) RegisteredID(ctx context.Context, principal domain.Principal) (domain.AgentID, error) {
	agentID, err := s.store.RegisteredID(ctx, principal)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, dErrors.New(dErrors.CodeNotFound, "principal does not control an identity")
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve controller")
	}
	return agentID, nil
}

// SetMetadata overwrites or creates a metadata entry; controller-only.
func (s *Service) SetMetadata(ctx context.Context, caller domain.Principal, agentID domain.AgentID, key string, value []byte) error {
	now := requestcontext.Now(ctx)
	err := s.store.Update(ctx, agentID,
		func(identity *models.Identity) error { return identity.CanSetMetadata(caller, key, value) },
		func(identity *models.Identity) { identity.ApplySetMetadata(key, value, now) },
	)
	if err != nil {
		return wrapIdentityErr(err, "failed to set metadata")
	}
	return nil
}

// MetadataValue reads one metadata entry.
func (s *Service) MetadataValue(ctx context.Context, agentID domain.AgentID, key string) ([]byte, error) {
	identity, err := s.store.FindByID(ctx, agentID)
	if err != nil {
		return nil, wrapIdentityErr(err, "failed to load identity")
	}
	value, ok := identity.MetadataValue(key)
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "metadata key not found")
	}
	return value, nil
}

// Transfer moves control of an identity to a new principal. Identities are
// freely transferable; the bound resume follows the identity. The recipient
// must not already control an identity, same rule as registration.
func (s *Service) Transfer(ctx context.Context, caller domain.Principal, agentID domain.AgentID, newController domain.Principal) error {
	now := requestcontext.Now(ctx)
	err := s.store.Update(ctx, agentID,
		func(identity *models.Identity) error { return identity.CanTransfer(caller, newController) },
		func(identity *models.Identity) { identity.ApplyTransfer(newController, now) },
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return dErrors.New(dErrors.CodeConflict, "new controller already controls an identity")
		}
		return wrapIdentityErr(err, "failed to transfer identity")
	}
	s.logger.InfoContext(ctx, "identity transferred",
		"agent_id", agentID.String(),
		"new_controller", newController.String(),
	)
	return nil
}

// LinkResume writes the forward resume link, at most once per identity.
func (s *Service) LinkResume(ctx context.Context, agentID domain.AgentID, resumeID domain.ResumeID) error {
	now := requestcontext.Now(ctx)
	err := s.store.Update(ctx, agentID,
		func(identity *models.Identity) error {
			if err := identity.CanLinkResume(resumeID); err != nil {
				if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
					return dErrors.New(dErrors.CodeConflict, "identity is already linked to a resume")
				}
				return err
			}
			return nil
		},
		func(identity *models.Identity) { identity.ApplyResumeLink(resumeID, now) },
	)
	if err != nil {
		return wrapIdentityErr(err, "failed to link resume")
	}
	return nil
}

// LinkedResume reads the forward resume link; zero means unlinked.
func (s *Service) LinkedResume(ctx context.Context, agentID domain.AgentID) (domain.ResumeID, error) {
	identity, err := s.store.FindByID(ctx, agentID)
	if err != nil {
		return 0, wrapIdentityErr(err, "failed to load identity")
	}
	return identity.LinkedResumeID, nil
}

// Count reports the number of registered identities.
func (s *Service) Count(ctx context.Context) (int, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count identities")
	}
	return count, nil
}

func wrapIdentityErr(err error, internalMsg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "identity not found")
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
}
