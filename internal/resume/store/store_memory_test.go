package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"agentledger/internal/resume/models"
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

func (s *InMemorySuite) mintLinked(owner domain.Principal, agentID domain.AgentID) *models.Resume {
	resume, err := models.NewResume(owner, agentID, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, resume))
	return resume
}

func (s *InMemorySuite) appendJob(agentID domain.AgentID, jobType models.JobType, fee uint64) domain.JobID {
	record, err := models.NewJobRecord("operator-1", jobType, "work", "ipfs://proof", domain.Digest{}, 0, nil, s.now)
	s.Require().NoError(err)
	jobID, err := s.store.AppendJob(s.ctx, agentID, record, fee)
	s.Require().NoError(err)
	return jobID
}

func (s *InMemorySuite) TestCreateAssignsSequentialIDs() {
	first := s.mintLinked("operator-1", 11)
	second := s.mintLinked("operator-2", 12)

	s.Equal(domain.ResumeID(1), first.ID)
	s.Equal(domain.ResumeID(2), second.ID)
}

func (s *InMemorySuite) TestCreateRejectsDuplicateAgent() {
	s.mintLinked("operator-1", 11)

	resume, err := models.NewResume("operator-2", 11, s.now)
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(s.ctx, resume), sentinel.ErrAlreadyUsed)
}

func (s *InMemorySuite) TestFindByAgent() {
	minted := s.mintLinked("operator-1", 11)

	found, err := s.store.FindByAgent(s.ctx, 11)
	s.Require().NoError(err)
	s.Equal(minted.ID, found.ID)
	s.Equal(domain.Principal("operator-1"), found.Owner)

	_, err = s.store.FindByAgent(s.ctx, 99)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestFindReturnsCopy() {
	minted := s.mintLinked("operator-1", 11)

	found, err := s.store.FindByID(s.ctx, minted.ID)
	s.Require().NoError(err)
	found.Reputation = 9999

	again, err := s.store.FindByID(s.ctx, minted.ID)
	s.Require().NoError(err)
	s.Equal(uint64(models.ReputationBase), again.Reputation)
}

func (s *InMemorySuite) TestSetIdentityLink() {
	resume, err := models.NewResume("operator-1", 0, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, resume))

	later := s.now.Add(time.Minute)
	s.Require().NoError(s.store.SetIdentityLink(s.ctx, resume.ID, 11, later))

	linked, err := s.store.FindByAgent(s.ctx, 11)
	s.Require().NoError(err)
	s.Equal(resume.ID, linked.ID)
	s.Equal(later, linked.UpdatedAt)
}

func (s *InMemorySuite) TestSetIdentityLinkRejectsRelink() {
	minted := s.mintLinked("operator-1", 11)

	err := s.store.SetIdentityLink(s.ctx, minted.ID, 12, s.now)
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *InMemorySuite) TestSetIdentityLinkRejectsTakenAgent() {
	s.mintLinked("operator-1", 11)
	unlinked, err := models.NewResume("operator-2", 0, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, unlinked))

	s.ErrorIs(s.store.SetIdentityLink(s.ctx, unlinked.ID, 11, s.now), sentinel.ErrAlreadyUsed)
}

func (s *InMemorySuite) TestAppendJobAssignsGlobalIDs() {
	s.mintLinked("operator-1", 11)
	s.mintLinked("operator-2", 12)

	first := s.appendJob(11, models.JobTypeCodeGeneration, 0)
	second := s.appendJob(12, models.JobTypeDataAnalysis, 0)
	third := s.appendJob(11, models.JobTypeCodeGeneration, 0)

	s.Equal(domain.JobID(1), first)
	s.Equal(domain.JobID(2), second)
	s.Equal(domain.JobID(3), third)
}

func (s *InMemorySuite) TestAppendJobAccruesFees() {
	s.mintLinked("operator-1", 11)

	s.appendJob(11, models.JobTypeOther, 25)
	s.appendJob(11, models.JobTypeOther, 15)

	balance, err := s.store.FeeBalance(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(40), balance)
}

func (s *InMemorySuite) TestAppendJobUnknownAgent() {
	record, err := models.NewJobRecord("operator-1", models.JobTypeOther, "", "ipfs://proof", domain.Digest{}, 0, nil, s.now)
	s.Require().NoError(err)

	_, err = s.store.AppendJob(s.ctx, 99, record, 0)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestResolveJobMutatesUnderLock() {
	s.mintLinked("operator-1", 11)
	jobID := s.appendJob(11, models.JobTypeTradeExecution, 0)

	err := s.store.ResolveJob(s.ctx, 11, jobID, func(resume *models.Resume, job *models.JobRecord) error {
		job.ApplyResolution(models.StatusVerified, true, s.now)
		resume.ApplyReputationDelta(models.ReputationDelta(job.Status, true), s.now)
		return nil
	})
	s.Require().NoError(err)

	job, err := s.store.FindJob(s.ctx, 11, jobID)
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, job.Status)
	s.True(job.OutcomeSuccess)

	resume, err := s.store.FindByAgent(s.ctx, 11)
	s.Require().NoError(err)
	s.Equal(uint64(models.ReputationBase+models.ReputationSuccess), resume.Reputation)
}

func (s *InMemorySuite) TestResolveJobUnknownJob() {
	s.mintLinked("operator-1", 11)

	err := s.store.ResolveJob(s.ctx, 11, 42, func(*models.Resume, *models.JobRecord) error {
		s.Fail("callback must not run for unknown jobs")
		return nil
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestJobTypeCountsInSubmissionOrder() {
	s.mintLinked("operator-1", 11)
	s.appendJob(11, models.JobTypeDataAnalysis, 0)
	s.appendJob(11, models.JobTypeCodeGeneration, 0)
	s.appendJob(11, models.JobTypeDataAnalysis, 0)

	counts, err := s.store.JobTypeCounts(s.ctx, 11)
	s.Require().NoError(err)
	s.Equal([]models.JobTypeCount{
		{JobType: models.JobTypeDataAnalysis, Count: 2},
		{JobType: models.JobTypeCodeGeneration, Count: 1},
	}, counts)
}

func (s *InMemorySuite) TestAppendFeedbackIndexesPerClient() {
	s.mintLinked("operator-1", 11)

	fb1, err := models.NewFeedback("client-a", 80, "", "", "ipfs://fb1", domain.Digest{}, s.now)
	s.Require().NoError(err)
	fb2, err := models.NewFeedback("client-b", 90, "", "", "ipfs://fb2", domain.Digest{}, s.now)
	s.Require().NoError(err)
	fb3, err := models.NewFeedback("client-a", 70, "", "", "ipfs://fb3", domain.Digest{}, s.now)
	s.Require().NoError(err)

	idx1, err := s.store.AppendFeedback(s.ctx, 11, fb1)
	s.Require().NoError(err)
	idx2, err := s.store.AppendFeedback(s.ctx, 11, fb2)
	s.Require().NoError(err)
	idx3, err := s.store.AppendFeedback(s.ctx, 11, fb3)
	s.Require().NoError(err)

	s.Equal(0, idx1)
	s.Equal(0, idx2)
	s.Equal(1, idx3)

	clients, err := s.store.FeedbackClients(s.ctx, 11)
	s.Require().NoError(err)
	s.Equal([]domain.Principal{"client-a", "client-b"}, clients)
}

func (s *InMemorySuite) TestRevokeFeedback() {
	s.mintLinked("operator-1", 11)
	fb, err := models.NewFeedback("client-a", 80, "", "", "ipfs://fb", domain.Digest{}, s.now)
	s.Require().NoError(err)
	_, err = s.store.AppendFeedback(s.ctx, 11, fb)
	s.Require().NoError(err)

	err = s.store.RevokeFeedback(s.ctx, 11, "client-a", 0, func(entry *models.Feedback) error {
		entry.ApplyRevocation()
		return nil
	})
	s.Require().NoError(err)

	entries, err := s.store.ListFeedback(s.ctx, 11, "client-a")
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.True(entries[0].Revoked)
}

func (s *InMemorySuite) TestRevokeFeedbackUnknownIndex() {
	s.mintLinked("operator-1", 11)

	err := s.store.RevokeFeedback(s.ctx, 11, "client-a", 3, func(*models.Feedback) error {
		s.Fail("callback must not run for unknown entries")
		return nil
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestWithdrawFees() {
	s.mintLinked("operator-1", 11)
	s.appendJob(11, models.JobTypeOther, 100)

	withdrawn, err := s.store.WithdrawFees(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(100), withdrawn)

	_, err = s.store.WithdrawFees(s.ctx)
	s.ErrorIs(err, sentinel.ErrInvalidState)
}
