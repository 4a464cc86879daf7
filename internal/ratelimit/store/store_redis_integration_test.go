//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"agentledger/internal/ratelimit/store"
	"agentledger/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.Redis
	ctx   context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = store.NewRedis(s.redis.Client)
	s.ctx = context.Background()
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisStoreSuite) TestAllowWithinLimit() {
	for i := 0; i < 3; i++ {
		result, err := s.store.Allow(s.ctx, "write:operator-1", 3, time.Minute)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(3, result.Limit)
	}
}

func (s *RedisStoreSuite) TestDeniesOverLimit() {
	for i := 0; i < 3; i++ {
		_, err := s.store.Allow(s.ctx, "write:operator-1", 3, time.Minute)
		s.Require().NoError(err)
	}
	result, err := s.store.Allow(s.ctx, "write:operator-1", 3, time.Minute)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Equal(0, result.Remaining)
}

func (s *RedisStoreSuite) TestKeysAreIndependent() {
	for i := 0; i < 3; i++ {
		_, err := s.store.Allow(s.ctx, "write:operator-1", 3, time.Minute)
		s.Require().NoError(err)
	}
	result, err := s.store.Allow(s.ctx, "write:operator-2", 3, time.Minute)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *RedisStoreSuite) TestWindowExpires() {
	for i := 0; i < 2; i++ {
		_, err := s.store.Allow(s.ctx, "write:operator-1", 2, time.Second)
		s.Require().NoError(err)
	}
	denied, err := s.store.Allow(s.ctx, "write:operator-1", 2, time.Second)
	s.Require().NoError(err)
	s.False(denied.Allowed)

	time.Sleep(1100 * time.Millisecond)

	allowed, err := s.store.Allow(s.ctx, "write:operator-1", 2, time.Second)
	s.Require().NoError(err)
	s.True(allowed.Allowed)
}

func (s *RedisStoreSuite) TestReset() {
	for i := 0; i < 2; i++ {
		_, err := s.store.Allow(s.ctx, "write:operator-1", 2, time.Minute)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.store.Reset(s.ctx, "write:operator-1"))

	result, err := s.store.Allow(s.ctx, "write:operator-1", 2, time.Minute)
	s.Require().NoError(err)
	s.True(result.Allowed)
	s.Equal(1, result.Remaining)
}
