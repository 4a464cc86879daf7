package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	identityStore "agentledger/internal/identity/store"
	"agentledger/pkg/domain"
	dErrors "agentledger/pkg/domain-errors"
	"agentledger/pkg/requestcontext"
)

type IdentityServiceSuite struct {
	suite.Suite
	store   *identityStore.InMemory
	service *Service
	ctx     context.Context
}

func TestIdentityServiceSuite(t *testing.T) {
	suite.Run(t, new(IdentityServiceSuite))
}

func (s *IdentityServiceSuite) SetupTest() {
	s.store = identityStore.NewInMemory()
	s.service = New(s.store)
	s.ctx = requestcontext.WithTime(context.Background(),
		time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
}

func (s *IdentityServiceSuite) register(controller domain.Principal) domain.AgentID {
	identity, err := s.service.Register(s.ctx, controller, 0, nil, nil)
	s.Require().NoError(err)
	return identity.ID
}

func (s *IdentityServiceSuite) TestRegister() {
	s.Run("stores initial metadata plus the creation timestamp entry", func() {
		identity, err := s.service.Register(s.ctx, "operator-1", 7,
			[]string{"name", "endpoint"},
			map[string][]byte{"name": []byte("trader-bot"), "endpoint": []byte("https://bot.example")},
		)
		s.Require().NoError(err)
		s.Equal([]string{"name", "endpoint", "created_at"}, identity.MetadataKeys)
		s.Equal(domain.ResumeID(7), identity.LinkedResumeID)
	})

	s.Run("repeat registration conflicts and leaves state unchanged", func() {
		_, err := s.service.Register(s.ctx, "operator-1", 0, nil, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		count, err := s.service.Count(s.ctx)
		s.Require().NoError(err)
		s.Equal(1, count)
	})

	s.Run("rejects a missing controller", func() {
		_, err := s.service.Register(s.ctx, "", 0, nil, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *IdentityServiceSuite) TestSetMetadata() {
	agentID := s.register("operator-1")

	s.Run("controller overwrites and creates keys", func() {
		s.Require().NoError(s.service.SetMetadata(s.ctx, "operator-1", agentID, "model", []byte("v1")))
		s.Require().NoError(s.service.SetMetadata(s.ctx, "operator-1", agentID, "model", []byte("v2")))

		value, err := s.service.MetadataValue(s.ctx, agentID, "model")
		s.Require().NoError(err)
		s.Equal([]byte("v2"), value)

		// First write order is preserved for enumeration.
		identity, err := s.service.Get(s.ctx, agentID)
		s.Require().NoError(err)
		s.Equal([]string{"created_at", "model"}, identity.MetadataKeys)
	})

	s.Run("non-controller is rejected", func() {
		err := s.service.SetMetadata(s.ctx, "mallory", agentID, "model", []byte("v3"))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown identity", func() {
		err := s.service.SetMetadata(s.ctx, "operator-1", 99, "model", []byte("v1"))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown key reads as not found", func() {
		_, err := s.service.MetadataValue(s.ctx, agentID, "absent")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *IdentityServiceSuite) TestTransfer() {
	agentID := s.register("operator-1")

	s.Run("controller transfers at any time", func() {
		s.Require().NoError(s.service.Transfer(s.ctx, "operator-1", agentID, "operator-2"))

		identity, err := s.service.Get(s.ctx, agentID)
		s.Require().NoError(err)
		s.Equal(domain.Principal("operator-2"), identity.Controller)
	})

	s.Run("old controller loses authority", func() {
		err := s.service.Transfer(s.ctx, "operator-1", agentID, "operator-3")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("zero recipient is rejected", func() {
		err := s.service.Transfer(s.ctx, "operator-2", agentID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("recipient who already controls an identity is rejected", func() {
		other := s.register("operator-4")
		err := s.service.Transfer(s.ctx, "operator-4", other, "operator-2")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("transfer frees the old controller to register again", func() {
		_, err := s.service.RegisteredID(s.ctx, "operator-1")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		fresh, err := s.service.Register(s.ctx, "operator-1", 0, nil, nil)
		s.Require().NoError(err)
		s.NotEqual(agentID, fresh.ID)
	})
}

func (s *IdentityServiceSuite) TestLinkResume() {
	agentID := s.register("operator-1")

	s.Run("link is written once", func() {
		s.Require().NoError(s.service.LinkResume(s.ctx, agentID, 7))

		resumeID, err := s.service.LinkedResume(s.ctx, agentID)
		s.Require().NoError(err)
		s.Equal(domain.ResumeID(7), resumeID)
	})

	s.Run("relinking conflicts", func() {
		err := s.service.LinkResume(s.ctx, agentID, 8)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("zero resume id is rejected", func() {
		other := s.register("operator-9")
		err := s.service.LinkResume(s.ctx, other, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
