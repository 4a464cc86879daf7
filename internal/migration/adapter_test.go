package migration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	identityService "agentledger/internal/identity/service"
	identityStore "agentledger/internal/identity/store"
	protocolService "agentledger/internal/protocol/service"
	resumeModels "agentledger/internal/resume/models"
	resumeService "agentledger/internal/resume/service"
	resumeStore "agentledger/internal/resume/store"
	verificationService "agentledger/internal/verification/service"
	verificationStore "agentledger/internal/verification/store"
	"agentledger/pkg/domain"
	"agentledger/pkg/requestcontext"
)

const migrationOwner = domain.Principal("protocol-owner")

type memorySource struct {
	agents []LegacyAgent
}

func (s *memorySource) Agents(ctx context.Context) ([]LegacyAgent, error) {
	return s.agents, nil
}

type AdapterSuite struct {
	suite.Suite
	identities   *identityService.Service
	resumes      *resumeService.Service
	orchestrator *protocolService.Orchestrator
	ctx          context.Context
}

func TestAdapterSuite(t *testing.T) {
	suite.Run(t, new(AdapterSuite))
}

func (s *AdapterSuite) SetupTest() {
	s.identities = identityService.New(identityStore.NewInMemory())
	s.resumes = resumeService.New(resumeStore.NewInMemory())
	verifications := verificationService.New(verificationStore.NewInMemory(), s.resumes, migrationOwner)
	s.orchestrator = protocolService.New(s.identities, s.resumes, verifications,
		protocolService.NewSerialAtomic(), migrationOwner, 0)
	s.ctx = requestcontext.WithTime(context.Background(),
		time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
}

func (s *AdapterSuite) adapter(requireFees bool) *Adapter {
	return New(s.orchestrator, Config{Owner: migrationOwner, RequireFees: requireFees})
}

func legacyHistory() []LegacyAgent {
	return []LegacyAgent{
		{
			Controller:   "legacy-operator-1",
			MetadataKeys: []string{"name"},
			Metadata:     map[string][]byte{"name": []byte("trading-bot")},
			Jobs: []LegacyJob{
				{
					Submitter: "legacy-operator-1",
					JobType:   resumeModels.JobTypeTradeExecution,
					ProofURI:  "ipfs://legacy-1",
					Value:     500,
					Status:    resumeModels.StatusVerified,
					Success:   true,
				},
				{
					Submitter: "legacy-operator-1",
					JobType:   resumeModels.JobTypeDataAnalysis,
					ProofURI:  "ipfs://legacy-2",
					Status:    resumeModels.StatusFailed,
				},
				{
					Submitter: "legacy-client-9",
					JobType:   resumeModels.JobTypeOther,
					ProofURI:  "ipfs://legacy-3",
					Status:    resumeModels.StatusPending,
				},
			},
		},
		{
			Controller: "legacy-operator-2",
			Jobs: []LegacyJob{
				{
					Submitter: "legacy-operator-2",
					JobType:   resumeModels.JobTypeCodeGeneration,
					ProofURI:  "ipfs://legacy-4",
					Status:    resumeModels.StatusDisputed,
				},
			},
		},
	}
}

func (s *AdapterSuite) TestReplaysFullHistory() {
	report, err := s.adapter(false).Run(s.ctx, &memorySource{agents: legacyHistory()})
	s.Require().NoError(err)

	s.Equal(2, report.AgentsRegistered)
	s.Equal(0, report.AgentsSkipped)
	s.Equal(4, report.JobsReplayed)
	s.Equal(3, report.ResolutionsReplayed)

	agentID, err := s.identities.RegisteredID(s.ctx, "legacy-operator-1")
	s.Require().NoError(err)

	jobs, err := s.resumes.JobRecords(s.ctx, agentID)
	s.Require().NoError(err)
	s.Require().Len(jobs, 3)
	s.Equal(resumeModels.StatusVerified, jobs[0].Status)
	s.True(jobs[0].OutcomeSuccess)
	s.Equal(resumeModels.StatusFailed, jobs[1].Status)
	s.Equal(resumeModels.StatusPending, jobs[2].Status)
	s.Equal(domain.Principal("legacy-client-9"), jobs[2].Submitter)

	// Base 100, one verified success, one legacy failure.
	reputation, err := s.resumes.Reputation(s.ctx, agentID)
	s.Require().NoError(err)
	s.Equal(uint64(105), reputation)

	// The disputed record carries no reputation effect.
	otherID, err := s.identities.RegisteredID(s.ctx, "legacy-operator-2")
	s.Require().NoError(err)
	otherRep, err := s.resumes.Reputation(s.ctx, otherID)
	s.Require().NoError(err)
	s.Equal(uint64(100), otherRep)
}

func (s *AdapterSuite) TestRetriedRunConverges() {
	source := &memorySource{agents: legacyHistory()}

	first, err := s.adapter(false).Run(s.ctx, source)
	s.Require().NoError(err)
	s.Equal(2, first.AgentsRegistered)

	second, err := s.adapter(false).Run(s.ctx, source)
	s.Require().NoError(err)
	s.Equal(0, second.AgentsRegistered)
	s.Equal(2, second.AgentsSkipped)
	s.Equal(0, second.JobsReplayed)

	// No duplicate history on the retried run.
	agentID, err := s.identities.RegisteredID(s.ctx, "legacy-operator-1")
	s.Require().NoError(err)
	jobs, err := s.resumes.JobRecords(s.ctx, agentID)
	s.Require().NoError(err)
	s.Len(jobs, 3)
}

func (s *AdapterSuite) TestReplayIsFeeExemptByDefault() {
	s.Require().NoError(s.orchestrator.SetVerificationFee(s.ctx, migrationOwner, 50))

	_, err := s.adapter(false).Run(s.ctx, &memorySource{agents: legacyHistory()})
	s.Require().NoError(err)

	balance, err := s.resumes.FeeBalance(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(0), balance)
}

func (s *AdapterSuite) TestRequireFeesPaysCurrentFee() {
	s.Require().NoError(s.orchestrator.SetVerificationFee(s.ctx, migrationOwner, 50))

	report, err := s.adapter(true).Run(s.ctx, &memorySource{agents: legacyHistory()})
	s.Require().NoError(err)
	s.Equal(4, report.JobsReplayed)

	balance, err := s.resumes.FeeBalance(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(200), balance)
}
