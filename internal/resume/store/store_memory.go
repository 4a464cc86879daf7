package store

import (
	"context"
	"sync"
	"time"

	"agentledger/internal/resume/models"
	"agentledger/pkg/domain"
	"agentledger/pkg/platform/sentinel"
)

// resumeState bundles one resume with its append-only ledgers.
type resumeState struct {
	resume     models.Resume
	jobs       []*models.JobRecord
	typeOrder  []models.JobType
	typeCounts map[models.JobType]int
	clients    []domain.Principal
	feedback   map[domain.Principal][]*models.Feedback
}

// InMemory is a mutex-guarded Store for tests and single-node deployments.
type InMemory struct {
	mu           sync.RWMutex
	byID         map[domain.ResumeID]*resumeState
	byAgent      map[domain.AgentID]domain.ResumeID
	nextResumeID uint64
	nextJobID    uint64
	feeBalance   uint64
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[domain.ResumeID]*resumeState),
		byAgent: make(map[domain.AgentID]domain.ResumeID),
	}
}

func (s *InMemory) Create(ctx context.Context, resume *models.Resume) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !resume.LinkedAgentID.IsZero() {
		if _, taken := s.byAgent[resume.LinkedAgentID]; taken {
			return sentinel.ErrAlreadyUsed
		}
	}

	s.nextResumeID++
	resume.ID = domain.ResumeID(s.nextResumeID)

	st := &resumeState{
		resume:     *resume,
		typeCounts: make(map[models.JobType]int),
		feedback:   make(map[domain.Principal][]*models.Feedback),
	}
	s.byID[resume.ID] = st
	if !resume.LinkedAgentID.IsZero() {
		s.byAgent[resume.LinkedAgentID] = resume.ID
	}
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, resumeID domain.ResumeID) (*models.Resume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.byID[resumeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := st.resume
	return &copied, nil
}

func (s *InMemory) FindByAgent(ctx context.Context, agentID domain.AgentID) (*models.Resume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.stateByAgent(agentID)
	if err != nil {
		return nil, err
	}
	copied := st.resume
	return &copied, nil
}

func (s *InMemory) SetIdentityLink(ctx context.Context, resumeID domain.ResumeID, agentID domain.AgentID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byID[resumeID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !st.resume.LinkedAgentID.IsZero() {
		return sentinel.ErrInvalidState
	}
	if _, taken := s.byAgent[agentID]; taken {
		return sentinel.ErrAlreadyUsed
	}
	st.resume.ApplyIdentityLink(agentID, now)
	s.byAgent[agentID] = resumeID
	return nil
}

func (s *InMemory) AppendJob(ctx context.Context, agentID domain.AgentID, record *models.JobRecord, fee uint64) (domain.JobID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.stateByAgent(agentID)
	if err != nil {
		return 0, err
	}

	s.nextJobID++
	record.JobID = domain.JobID(s.nextJobID)

	stored := *record
	st.jobs = append(st.jobs, &stored)
	if _, seen := st.typeCounts[record.JobType]; !seen {
		st.typeOrder = append(st.typeOrder, record.JobType)
	}
	st.typeCounts[record.JobType]++
	s.feeBalance += fee
	return record.JobID, nil
}

func (s *InMemory) ResolveJob(ctx context.Context, agentID domain.AgentID, jobID domain.JobID, resolve func(resume *models.Resume, job *models.JobRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.stateByAgent(agentID)
	if err != nil {
		return err
	}
	for _, job := range st.jobs {
		if job.JobID == jobID {
			return resolve(&st.resume, job)
		}
	}
	return sentinel.ErrNotFound
}

func (s *InMemory) ListJobs(ctx context.Context, agentID domain.AgentID) ([]models.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.stateByAgent(agentID)
	if err != nil {
		return nil, err
	}
	jobs := make([]models.JobRecord, 0, len(st.jobs))
	for _, job := range st.jobs {
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

func (s *InMemory) FindJob(ctx context.Context, agentID domain.AgentID, jobID domain.JobID) (*models.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.stateByAgent(agentID)
	if err != nil {
		return nil, err
	}
	for _, job := range st.jobs {
		if job.JobID == jobID {
			copied := *job
			return &copied, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) JobTypeCounts(ctx context.Context, agentID domain.AgentID) ([]models.JobTypeCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.stateByAgent(agentID)
	if err != nil {
		return nil, err
	}
	counts := make([]models.JobTypeCount, 0, len(st.typeOrder))
	for _, jt := range st.typeOrder {
		counts = append(counts, models.JobTypeCount{JobType: jt, Count: st.typeCounts[jt]})
	}
	return counts, nil
}

func (s *InMemory) AppendFeedback(ctx context.Context, agentID domain.AgentID, feedback *models.Feedback) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.stateByAgent(agentID)
	if err != nil {
		return 0, err
	}
	if _, seen := st.feedback[feedback.Client]; !seen {
		st.clients = append(st.clients, feedback.Client)
	}
	stored := *feedback
	st.feedback[feedback.Client] = append(st.feedback[feedback.Client], &stored)
	return len(st.feedback[feedback.Client]) - 1, nil
}

func (s *InMemory) RevokeFeedback(ctx context.Context, agentID domain.AgentID, client domain.Principal, index int, revoke func(*models.Feedback) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.stateByAgent(agentID)
	if err != nil {
		return err
	}
	entries := st.feedback[client]
	if index < 0 || index >= len(entries) {
		return sentinel.ErrNotFound
	}
	return revoke(entries[index])
}

func (s *InMemory) ListFeedback(ctx context.Context, agentID domain.AgentID, client domain.Principal) ([]models.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.stateByAgent(agentID)
	if err != nil {
		return nil, err
	}
	entries := st.feedback[client]
	out := make([]models.Feedback, 0, len(entries))
	for _, f := range entries {
		out = append(out, *f)
	}
	return out, nil
}

func (s *InMemory) FeedbackClients(ctx context.Context, agentID domain.AgentID) ([]domain.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.stateByAgent(agentID)
	if err != nil {
		return nil, err
	}
	return append([]domain.Principal{}, st.clients...), nil
}

func (s *InMemory) FeeBalance(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeBalance, nil
}

func (s *InMemory) WithdrawFees(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.feeBalance == 0 {
		return 0, sentinel.ErrInvalidState
	}
	withdrawn := s.feeBalance
	s.feeBalance = 0
	return withdrawn, nil
}

// stateByAgent resolves an agent's resume under the caller's lock.
func (s *InMemory) stateByAgent(agentID domain.AgentID) (*resumeState, error) {
	resumeID, ok := s.byAgent[agentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	st, ok := s.byID[resumeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return st, nil
}
