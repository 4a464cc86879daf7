package migration

import (
	"context"
	"fmt"
	"log/slog"

	identityModels "agentledger/internal/identity/models"
	protocolService "agentledger/internal/protocol/service"
	resumeModels "agentledger/internal/resume/models"
	"agentledger/pkg/domain"
	dErrors "agentledger/pkg/domain-errors"
)

// Protocol is the orchestrator surface the adapter replays through.
type Protocol interface {
	RegisterAgent(ctx context.Context, caller domain.Principal, metadataKeys []string, metadata map[string][]byte) (*identityModels.Identity, *resumeModels.Resume, error)
	SubmitJobRecord(ctx context.Context, caller domain.Principal, agentID domain.AgentID, params protocolService.SubmitJobParams) (*resumeModels.JobRecord, error)
	ReplayJobRecord(ctx context.Context, caller domain.Principal, agentID domain.AgentID, params protocolService.ReplayJobParams) (*resumeModels.JobRecord, error)
	ReplayResolution(ctx context.Context, caller domain.Principal, agentID domain.AgentID, jobID domain.JobID, status resumeModels.JobStatus, success bool) (*resumeModels.JobRecord, error)
	VerificationFee() uint64
}

// Config controls a migration run.
type Config struct {
	// Owner is the principal holding the protocol owner role; resolutions
	// and fee-exempt replays go through owner-only entry points.
	Owner domain.Principal

	// RequireFees makes replayed submissions pay the current verification
	// fee instead of using the fee-exempt replay path.
	RequireFees bool
}

// Adapter replays legacy agents, their job records, and their resolutions in
// that order. A retried run converges: an already-registered controller is
// treated as fully migrated and skipped.
type Adapter struct {
	protocol Protocol
	config   Config
	logger   *slog.Logger
}

type Option func(*Adapter)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

func New(protocol Protocol, config Config, opts ...Option) *Adapter {
	a := &Adapter{
		protocol: protocol,
		config:   config,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run migrates every agent the source yields. The first hard failure aborts
// the run; the partial report describes what landed before it.
func (a *Adapter) Run(ctx context.Context, source LegacySource) (*Report, error) {
	agents, err := source.Agents(ctx)
	if err != nil {
		return nil, fmt.Errorf("read legacy registry: %w", err)
	}

	report := &Report{}
	for _, agent := range agents {
		if err := a.replayAgent(ctx, agent, report); err != nil {
			return report, fmt.Errorf("replay agent %s: %w", agent.Controller.String(), err)
		}
	}

	a.logger.InfoContext(ctx, "migration run complete",
		"agents_registered", report.AgentsRegistered,
		"agents_skipped", report.AgentsSkipped,
		"jobs_replayed", report.JobsReplayed,
		"resolutions_replayed", report.ResolutionsReplayed,
	)
	return report, nil
}

func (a *Adapter) replayAgent(ctx context.Context, agent LegacyAgent, report *Report) error {
	identity, _, err := a.protocol.RegisterAgent(ctx, agent.Controller, agent.MetadataKeys, agent.Metadata)
	if dErrors.HasCode(err, dErrors.CodeConflict) {
		// Registered by an earlier run; its history is already in place.
		report.AgentsSkipped++
		a.logger.InfoContext(ctx, "skipping migrated agent",
			"controller", agent.Controller.String(),
		)
		return nil
	}
	if err != nil {
		return err
	}
	report.AgentsRegistered++

	for i, job := range agent.Jobs {
		record, err := a.replayJob(ctx, identity.ID, job)
		if err != nil {
			return fmt.Errorf("job %d: %w", i, err)
		}
		report.JobsReplayed++

		if job.Status == resumeModels.StatusPending {
			continue
		}
		if _, err := a.protocol.ReplayResolution(ctx, a.config.Owner, identity.ID, record.JobID, job.Status, job.Success); err != nil {
			return fmt.Errorf("job %d resolution: %w", i, err)
		}
		report.ResolutionsReplayed++
	}
	return nil
}

func (a *Adapter) replayJob(ctx context.Context, agentID domain.AgentID, job LegacyJob) (*resumeModels.JobRecord, error) {
	if a.config.RequireFees {
		return a.protocol.SubmitJobRecord(ctx, job.Submitter, agentID, protocolService.SubmitJobParams{
			JobType:     job.JobType,
			Description: job.Description,
			ProofURI:    job.ProofURI,
			ProofHash:   job.ProofHash,
			Value:       job.Value,
			Tags:        job.Tags,
			OfferedFee:  a.protocol.VerificationFee(),
		})
	}
	return a.protocol.ReplayJobRecord(ctx, a.config.Owner, agentID, protocolService.ReplayJobParams{
		Submitter:   job.Submitter,
		JobType:     job.JobType,
		Description: job.Description,
		ProofURI:    job.ProofURI,
		ProofHash:   job.ProofHash,
		Value:       job.Value,
		Tags:        job.Tags,
	})
}
