package store

import (
	"context"
	"sync"

	"agentledger/internal/verification/models"
	"agentledger/pkg/domain"
	"agentledger/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded Store for tests and single-node deployments.
type InMemory struct {
	mu            sync.RWMutex
	verifierOrder []domain.Principal
	verifiers     map[domain.Principal]bool
	attestations  []models.Attestation
	requests      map[domain.Digest]*models.ValidationRequest
}

func NewInMemory() *InMemory {
	return &InMemory{
		verifiers: make(map[domain.Principal]bool),
		requests:  make(map[domain.Digest]*models.ValidationRequest),
	}
}

func (s *InMemory) AddVerifier(ctx context.Context, verifier domain.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.verifiers[verifier] {
		return sentinel.ErrAlreadyUsed
	}
	s.verifiers[verifier] = true
	s.verifierOrder = append(s.verifierOrder, verifier)
	return nil
}

func (s *InMemory) RemoveVerifier(ctx context.Context, verifier domain.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.verifiers[verifier] {
		return sentinel.ErrNotFound
	}
	delete(s.verifiers, verifier)
	for i, v := range s.verifierOrder {
		if v == verifier {
			s.verifierOrder = append(s.verifierOrder[:i], s.verifierOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *InMemory) IsVerifier(ctx context.Context, principal domain.Principal) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verifiers[principal], nil
}

func (s *InMemory) Verifiers(ctx context.Context) ([]domain.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Principal{}, s.verifierOrder...), nil
}

func (s *InMemory) RecordAttestation(ctx context.Context, attestation *models.Attestation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attestations = append(s.attestations, *attestation)
	return nil
}

func (s *InMemory) Attestations(ctx context.Context, agentID domain.AgentID) ([]models.Attestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Attestation
	for _, a := range s.attestations {
		if a.AgentID == agentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *InMemory) CreateValidationRequest(ctx context.Context, request *models.ValidationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[request.RequestHash]; exists {
		return sentinel.ErrAlreadyUsed
	}
	stored := cloneRequest(request)
	s.requests[request.RequestHash] = stored
	return nil
}

func (s *InMemory) FindValidationRequest(ctx context.Context, requestHash domain.Digest) (*models.ValidationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, ok := s.requests[requestHash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRequest(request), nil
}

func (s *InMemory) UpdateValidationRequest(ctx context.Context, requestHash domain.Digest, validate func(*models.ValidationRequest) error, apply func(*models.ValidationRequest)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[requestHash]
	if !ok {
		return sentinel.ErrNotFound
	}
	if err := validate(request); err != nil {
		return err
	}
	apply(request)
	return nil
}

func cloneRequest(request *models.ValidationRequest) *models.ValidationRequest {
	clone := *request
	if request.Response != nil {
		response := *request.Response
		clone.Response = &response
	}
	return &clone
}
