package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"agentledger/internal/identity/models"
	"agentledger/pkg/domain"
	"agentledger/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}

func (s *InMemorySuite) register(controller domain.Principal) *models.Identity {
	identity, err := models.NewIdentity(controller, 0, nil, nil, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, identity))
	return identity
}

func (s *InMemorySuite) TestCreateAssignsSequentialIDs() {
	first := s.register("operator-1")
	second := s.register("operator-2")

	s.Equal(domain.AgentID(1), first.ID)
	s.Equal(domain.AgentID(2), second.ID)
}

func (s *InMemorySuite) TestCreateRejectsRepeatController() {
	s.register("operator-1")

	identity, err := models.NewIdentity("operator-1", 0, nil, nil, s.now)
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(s.ctx, identity), sentinel.ErrAlreadyUsed)
}

func (s *InMemorySuite) transfer(agentID domain.AgentID, from, to domain.Principal) error {
	return s.store.Update(s.ctx, agentID,
		func(i *models.Identity) error { return i.CanTransfer(from, to) },
		func(i *models.Identity) { i.ApplyTransfer(to, s.now) },
	)
}

func (s *InMemorySuite) TestTransferRekeysController() {
	identity := s.register("operator-1")

	s.Require().NoError(s.transfer(identity.ID, "operator-1", "operator-2"))

	// Uniqueness follows the current controller: the recipient now holds
	// the identity and the old controller is free to register again.
	agentID, err := s.store.RegisteredID(s.ctx, "operator-2")
	s.Require().NoError(err)
	s.Equal(identity.ID, agentID)

	_, err = s.store.RegisteredID(s.ctx, "operator-1")
	s.ErrorIs(err, sentinel.ErrNotFound)

	again, err := models.NewIdentity("operator-1", 0, nil, nil, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, again))
}

func (s *InMemorySuite) TestTransferToExistingControllerConflicts() {
	first := s.register("operator-1")
	s.register("operator-2")

	err := s.transfer(first.ID, "operator-1", "operator-2")
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	// The rejected transfer leaves both the identity and the controller
	// index untouched.
	found, err := s.store.FindByID(s.ctx, first.ID)
	s.Require().NoError(err)
	s.Equal(domain.Principal("operator-1"), found.Controller)

	agentID, err := s.store.RegisteredID(s.ctx, "operator-1")
	s.Require().NoError(err)
	s.Equal(first.ID, agentID)
}

func (s *InMemorySuite) TestFindReturnsCopy() {
	identity := s.register("operator-1")

	found, err := s.store.FindByID(s.ctx, identity.ID)
	s.Require().NoError(err)
	found.Metadata["injected"] = []byte("x")
	found.Controller = "mallory"

	again, err := s.store.FindByID(s.ctx, identity.ID)
	s.Require().NoError(err)
	s.Equal(domain.Principal("operator-1"), again.Controller)
	_, ok := again.MetadataValue("injected")
	s.False(ok)
}

func (s *InMemorySuite) TestUpdateValidateFailureLeavesStateUntouched() {
	identity := s.register("operator-1")

	err := s.store.Update(s.ctx, identity.ID,
		func(i *models.Identity) error { return i.CanTransfer("mallory", "operator-2") },
		func(i *models.Identity) { i.ApplyTransfer("operator-2", s.now) },
	)
	s.Error(err)

	found, err := s.store.FindByID(s.ctx, identity.ID)
	s.Require().NoError(err)
	s.Equal(domain.Principal("operator-1"), found.Controller)
}

func (s *InMemorySuite) TestUpdateUnknownIdentity() {
	err := s.store.Update(s.ctx, 99,
		func(*models.Identity) error { return nil },
		func(*models.Identity) {},
	)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestCount() {
	s.register("operator-1")
	s.register("operator-2")

	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, count)
}
