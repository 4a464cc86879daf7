package store

import (
	"context"
	"sync"

	"agentledger/internal/identity/models"
	"agentledger/pkg/domain"
	"agentledger/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded Store for tests and single-node deployments.
type InMemory struct {
	mu          sync.RWMutex
	byID        map[domain.AgentID]*models.Identity
	controllers map[domain.Principal]domain.AgentID
	nextAgentID uint64
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:        make(map[domain.AgentID]*models.Identity),
		controllers: make(map[domain.Principal]domain.AgentID),
	}
}

func (s *InMemory) Create(ctx context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.controllers[identity.Controller]; taken {
		return sentinel.ErrAlreadyUsed
	}

	s.nextAgentID++
	identity.ID = domain.AgentID(s.nextAgentID)

	stored := cloneIdentity(identity)
	s.byID[identity.ID] = stored
	s.controllers[identity.Controller] = identity.ID
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, agentID domain.AgentID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.byID[agentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneIdentity(identity), nil
}

func (s *InMemory) RegisteredID(ctx context.Context, principal domain.Principal) (domain.AgentID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agentID, ok := s.controllers[principal]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	return agentID, nil
}

func (s *InMemory) Update(ctx context.Context, agentID domain.AgentID, validate func(*models.Identity) error, apply func(*models.Identity)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[agentID]
	if !ok {
		return sentinel.ErrNotFound
	}

	// Mutate a copy so a rejected update leaves the stored identity and the
	// controller index untouched.
	working := cloneIdentity(stored)
	if err := validate(working); err != nil {
		return err
	}
	apply(working)

	if working.Controller != stored.Controller {
		if _, taken := s.controllers[working.Controller]; taken {
			return sentinel.ErrAlreadyUsed
		}
		delete(s.controllers, stored.Controller)
		s.controllers[working.Controller] = agentID
	}
	s.byID[agentID] = working
	return nil
}

func (s *InMemory) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

func cloneIdentity(identity *models.Identity) *models.Identity {
	clone := *identity
	clone.MetadataKeys = append([]string{}, identity.MetadataKeys...)
	clone.Metadata = make(map[string][]byte, len(identity.Metadata))
	for key, value := range identity.Metadata {
		clone.Metadata[key] = append([]byte{}, value...)
	}
	return &clone
}
