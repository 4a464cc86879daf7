package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	identityService "agentledger/internal/identity/service"
	identityStore "agentledger/internal/identity/store"
	resumeModels "agentledger/internal/resume/models"
	resumeService "agentledger/internal/resume/service"
	resumeStore "agentledger/internal/resume/store"
	verificationService "agentledger/internal/verification/service"
	verificationStore "agentledger/internal/verification/store"
	"agentledger/pkg/domain"
	dErrors "agentledger/pkg/domain-errors"
	"agentledger/pkg/platform/audit"
	auditMemory "agentledger/pkg/platform/audit/store/memory"
	"agentledger/pkg/platform/audit/publisher"
	"agentledger/pkg/requestcontext"
)

const (
	owner    = domain.Principal("protocol-owner")
	operator = domain.Principal("operator-1")
	verifier = domain.Principal("verifier-1")
)

type OrchestratorSuite struct {
	suite.Suite
	identities   *identityService.Service
	resumes      *resumeService.Service
	auditStore   *auditMemory.InMemoryStore
	orchestrator *Orchestrator
	ctx          context.Context
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.identities = identityService.New(identityStore.NewInMemory())
	s.resumes = resumeService.New(resumeStore.NewInMemory())
	verifications := verificationService.New(verificationStore.NewInMemory(), s.resumes, owner)

	s.auditStore = auditMemory.NewInMemoryStore()
	s.orchestrator = New(s.identities, s.resumes, verifications, NewSerialAtomic(), owner, 0,
		WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
	)
	s.ctx = requestcontext.WithTime(context.Background(),
		time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
}

func (s *OrchestratorSuite) registerAgent(caller domain.Principal) domain.AgentID {
	identity, _, err := s.orchestrator.RegisterAgent(s.ctx, caller, nil, nil)
	s.Require().NoError(err)
	return identity.ID
}

func (s *OrchestratorSuite) submitJob(agentID domain.AgentID, fee uint64) *resumeModels.JobRecord {
	record, err := s.orchestrator.SubmitJobRecord(s.ctx, operator, agentID, SubmitJobParams{
		JobType:    resumeModels.JobTypeTradeExecution,
		ProofURI:   "ipfs://proof",
		Value:      100,
		OfferedFee: fee,
	})
	s.Require().NoError(err)
	return record
}

func (s *OrchestratorSuite) digest(fill byte) domain.Digest {
	var d domain.Digest
	for i := range d {
		d[i] = fill
	}
	return d
}

func (s *OrchestratorSuite) TestRegisterAgentLinksBothWays() {
	identity, resume, err := s.orchestrator.RegisterAgent(s.ctx, operator,
		[]string{"name"}, map[string][]byte{"name": []byte("trader-bot")})
	s.Require().NoError(err)

	// The bidirectional link holds exactly.
	s.Equal(resume.ID, identity.LinkedResumeID)
	s.Equal(identity.ID, resume.LinkedAgentID)

	stored, err := s.identities.Get(s.ctx, identity.ID)
	s.Require().NoError(err)
	s.Equal(resume.ID, stored.LinkedResumeID)

	linked, err := s.resumes.ByAgent(s.ctx, identity.ID)
	s.Require().NoError(err)
	s.Equal(resume.ID, linked.ID)
	s.Equal(uint64(resumeModels.ReputationBase), linked.Reputation)
}

func (s *OrchestratorSuite) TestRegisterAgentIsOnePerPrincipal() {
	s.registerAgent(operator)

	_, _, err := s.orchestrator.RegisterAgent(s.ctx, operator, nil, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	stats, err := s.orchestrator.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, stats.TotalAgentsRegistered)
}

func (s *OrchestratorSuite) TestTransferredControllerCannotRegisterAgain() {
	agentID := s.registerAgent(operator)

	s.Require().NoError(s.orchestrator.TransferIdentity(s.ctx, operator, agentID, "operator-2"))

	// The recipient controls the transferred identity now, so a fresh
	// registration for them conflicts like any repeat registration.
	_, _, err := s.orchestrator.RegisterAgent(s.ctx, "operator-2", nil, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	resolved, err := s.identities.RegisteredID(s.ctx, "operator-2")
	s.Require().NoError(err)
	s.Equal(agentID, resolved)

	// The old controller gave the identity away and may register anew.
	identity, _, err := s.orchestrator.RegisterAgent(s.ctx, operator, nil, nil)
	s.Require().NoError(err)
	s.NotEqual(agentID, identity.ID)
}

func (s *OrchestratorSuite) TestRegisterAgentRejectsBadMetadataBeforeAnyWrite() {
	longKey := make([]byte, 200)
	for i := range longKey {
		longKey[i] = 'k'
	}

	_, _, err := s.orchestrator.RegisterAgent(s.ctx, operator,
		[]string{string(longKey)}, map[string][]byte{string(longKey): []byte("v")})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	stats, err := s.orchestrator.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, stats.TotalAgentsRegistered)

	// No half-minted resume is reachable afterwards.
	_, _, err = s.orchestrator.RegisterAgent(s.ctx, operator, nil, nil)
	s.NoError(err)
}

func (s *OrchestratorSuite) TestSubmitThenVerifySuccess() {
	agentID := s.registerAgent(operator)
	record := s.submitJob(agentID, 0)
	s.Equal(resumeModels.StatusPending, record.Status)
	s.False(record.OutcomeSuccess)

	s.Require().NoError(s.orchestrator.AddVerifier(s.ctx, owner, verifier))

	verified, err := s.orchestrator.VerifyJob(s.ctx, verifier, agentID, record.JobID, true, s.digest(1))
	s.Require().NoError(err)
	s.Equal(resumeModels.StatusVerified, verified.Status)
	s.True(verified.OutcomeSuccess)

	rep, err := s.resumes.Reputation(s.ctx, agentID)
	s.Require().NoError(err)
	s.Equal(uint64(resumeModels.ReputationBase+resumeModels.ReputationSuccess), rep)
}

func (s *OrchestratorSuite) TestSubmitThenVerifyFailure() {
	agentID := s.registerAgent(operator)
	record := s.submitJob(agentID, 0)

	verified, err := s.orchestrator.VerifyJob(s.ctx, owner, agentID, record.JobID, false, s.digest(1))
	s.Require().NoError(err)
	s.Equal(resumeModels.StatusVerified, verified.Status)
	s.False(verified.OutcomeSuccess)

	rep, err := s.resumes.Reputation(s.ctx, agentID)
	s.Require().NoError(err)
	s.Equal(uint64(resumeModels.ReputationBase-resumeModels.ReputationFailure), rep)
}

func (s *OrchestratorSuite) TestInsufficientFeeLeavesNoTrace() {
	agentID := s.registerAgent(operator)
	s.Require().NoError(s.orchestrator.SetVerificationFee(s.ctx, owner, 50))

	_, err := s.orchestrator.SubmitJobRecord(s.ctx, operator, agentID, SubmitJobParams{
		JobType:    resumeModels.JobTypeTradeExecution,
		ProofURI:   "ipfs://proof",
		OfferedFee: 49,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	jobs, err := s.resumes.JobRecords(s.ctx, agentID)
	s.Require().NoError(err)
	s.Empty(jobs)

	balance, err := s.resumes.FeeBalance(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(0), balance)
}

func (s *OrchestratorSuite) TestDoubleResolutionKeepsFirstOutcome() {
	agentID := s.registerAgent(operator)
	record := s.submitJob(agentID, 0)

	_, err := s.orchestrator.VerifyJob(s.ctx, owner, agentID, record.JobID, true, s.digest(1))
	s.Require().NoError(err)

	_, err = s.orchestrator.VerifyJob(s.ctx, owner, agentID, record.JobID, false, s.digest(2))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	rep, err := s.resumes.Reputation(s.ctx, agentID)
	s.Require().NoError(err)
	s.Equal(uint64(resumeModels.ReputationBase+resumeModels.ReputationSuccess), rep)
}

func (s *OrchestratorSuite) TestReputationFoldIsOrderIndependent() {
	agentID := s.registerAgent(operator)

	// 3 successes and 2 failures interleaved: 100 + 3*10 - 2*5 = 120.
	outcomes := []bool{true, false, true, false, true}
	for _, success := range outcomes {
		record := s.submitJob(agentID, 0)
		_, err := s.orchestrator.VerifyJob(s.ctx, owner, agentID, record.JobID, success, s.digest(1))
		s.Require().NoError(err)
	}

	rep, err := s.resumes.Reputation(s.ctx, agentID)
	s.Require().NoError(err)
	s.Equal(uint64(120), rep)
}

func (s *OrchestratorSuite) TestPauseFailsFastAcrossEntryPoints() {
	agentID := s.registerAgent(operator)
	record := s.submitJob(agentID, 0)

	s.Require().NoError(s.orchestrator.SetPaused(s.ctx, owner, true))

	_, _, err := s.orchestrator.RegisterAgent(s.ctx, "operator-2", nil, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	_, err = s.orchestrator.SubmitJobRecord(s.ctx, operator, agentID, SubmitJobParams{
		JobType:  resumeModels.JobTypeOther,
		ProofURI: "ipfs://proof",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	_, err = s.orchestrator.VerifyJob(s.ctx, owner, agentID, record.JobID, true, s.digest(1))
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	_, err = s.orchestrator.GiveFeedback(s.ctx, "client-1", agentID, resumeService.FeedbackParams{
		Score: 80, FileURI: "ipfs://fb",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	// Fee administration stays available while paused.
	s.Require().NoError(s.orchestrator.SetVerificationFee(s.ctx, owner, 10))

	s.Require().NoError(s.orchestrator.SetPaused(s.ctx, owner, false))
	_, err = s.orchestrator.VerifyJob(s.ctx, owner, agentID, record.JobID, true, s.digest(1))
	s.NoError(err)
}

func (s *OrchestratorSuite) TestPauseIsOwnerOnly() {
	err := s.orchestrator.SetPaused(s.ctx, operator, true)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.False(s.orchestrator.Paused())
}

func (s *OrchestratorSuite) TestFeeLifecycle() {
	agentID := s.registerAgent(operator)
	s.Require().NoError(s.orchestrator.SetVerificationFee(s.ctx, owner, 25))
	s.Equal(uint64(25), s.orchestrator.VerificationFee())

	s.submitJob(agentID, 25)
	s.submitJob(agentID, 30) // overpayment is accrued as offered

	withdrawn, err := s.orchestrator.WithdrawFees(s.ctx, owner, "treasury")
	s.Require().NoError(err)
	s.Equal(uint64(55), withdrawn)

	_, err = s.orchestrator.WithdrawFees(s.ctx, owner, "treasury")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = s.orchestrator.WithdrawFees(s.ctx, operator, "treasury")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *OrchestratorSuite) TestFeedbackThroughProtocol() {
	agentID := s.registerAgent(operator)

	_, err := s.orchestrator.GiveFeedback(s.ctx, "client-1", agentID, resumeService.FeedbackParams{
		Score: 80, FileURI: "ipfs://fb1",
	})
	s.Require().NoError(err)
	_, err = s.orchestrator.GiveFeedback(s.ctx, "client-1", agentID, resumeService.FeedbackParams{
		Score: 90, FileURI: "ipfs://fb2",
	})
	s.Require().NoError(err)

	summary, err := s.resumes.SummarizeFeedback(s.ctx, agentID, nil, nil)
	s.Require().NoError(err)
	s.Equal(2, summary.Count)
	s.Equal(uint64(85), summary.AverageScore)
}

func (s *OrchestratorSuite) TestAuditTrail() {
	agentID := s.registerAgent(operator)
	record := s.submitJob(agentID, 0)
	_, err := s.orchestrator.VerifyJob(s.ctx, owner, agentID, record.JobID, true, s.digest(1))
	s.Require().NoError(err)

	events, err := s.auditStore.ListByAgent(s.ctx, agentID)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal(string(audit.EventAgentRegistered), events[0].Action)
	s.Equal(string(audit.EventJobSubmitted), events[1].Action)
	s.Equal(string(audit.EventJobVerified), events[2].Action)
	s.Equal(record.JobID, events[2].JobID)
}

func (s *OrchestratorSuite) TestProtocolStats() {
	agentID := s.registerAgent(operator)
	s.registerAgent("operator-2")
	s.submitJob(agentID, 0)

	stats, err := s.orchestrator.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, stats.TotalAgentsRegistered)
	s.Equal(uint64(1), stats.TotalJobsSubmitted)
	s.False(stats.Paused)
}
