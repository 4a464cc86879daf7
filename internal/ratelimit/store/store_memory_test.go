package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const (
	testLimit  = 5
	testWindow = time.Minute
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	now   time.Time
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.store = NewInMemory().WithClock(func() time.Time { return s.now })
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) TestAllow() {
	s.Run("first request allowed", func() {
		result, err := s.store.Allow(s.ctx, "read:alice", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(testLimit, result.Limit)
		s.Equal(testLimit-1, result.Remaining)
	})

	s.Run("requests up to limit allowed", func() {
		for i := 0; i < testLimit; i++ {
			result, err := s.store.Allow(s.ctx, "read:bob", testLimit, testWindow)
			s.Require().NoError(err)
			s.True(result.Allowed)
		}
	})

	s.Run("request over limit denied", func() {
		for i := 0; i < testLimit; i++ {
			_, err := s.store.Allow(s.ctx, "read:carol", testLimit, testWindow)
			s.Require().NoError(err)
		}
		result, err := s.store.Allow(s.ctx, "read:carol", testLimit, testWindow)
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Equal(0, result.Remaining)
		s.Equal(s.now.Add(testWindow), result.ResetAt)
	})

	s.Run("keys are independent", func() {
		for i := 0; i < testLimit; i++ {
			_, err := s.store.Allow(s.ctx, "write:dave", testLimit, testWindow)
			s.Require().NoError(err)
		}
		result, err := s.store.Allow(s.ctx, "read:dave", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})
}

func (s *InMemoryStoreSuite) TestWindowSlides() {
	for i := 0; i < testLimit; i++ {
		_, err := s.store.Allow(s.ctx, "read:erin", testLimit, testWindow)
		s.Require().NoError(err)
	}
	denied, err := s.store.Allow(s.ctx, "read:erin", testLimit, testWindow)
	s.Require().NoError(err)
	s.False(denied.Allowed)

	// Once the window has passed, the budget is available again.
	s.now = s.now.Add(testWindow + time.Second)
	allowed, err := s.store.Allow(s.ctx, "read:erin", testLimit, testWindow)
	s.Require().NoError(err)
	s.True(allowed.Allowed)
	s.Equal(testLimit-1, allowed.Remaining)
}

func (s *InMemoryStoreSuite) TestReset() {
	for i := 0; i < testLimit; i++ {
		_, err := s.store.Allow(s.ctx, "read:frank", testLimit, testWindow)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.store.Reset(s.ctx, "read:frank"))

	result, err := s.store.Allow(s.ctx, "read:frank", testLimit, testWindow)
	s.Require().NoError(err)
	s.True(result.Allowed)
	s.Equal(testLimit-1, result.Remaining)
}
