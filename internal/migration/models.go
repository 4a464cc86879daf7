// Package migration replays a prior-schema registry into the current one.
// The adapter is a client of the protocol orchestrator's public write API; it
// holds no privileged access to the layer stores.
package migration

import (
	"context"

	resumeModels "agentledger/internal/resume/models"
	"agentledger/pkg/domain"
)

// LegacyAgent is one registration from the prior schema, with its job
// history in original submission order.
type LegacyAgent struct {
	Controller   domain.Principal
	MetadataKeys []string
	Metadata     map[string][]byte
	Jobs         []LegacyJob
}

// LegacyJob is one historical job record. Status carries the prior-schema
// terminal state; Pending records replay unresolved.
type LegacyJob struct {
	Submitter   domain.Principal
	JobType     resumeModels.JobType
	Description string
	ProofURI    string
	ProofHash   domain.Digest
	Value       uint64
	Tags        []string
	Status      resumeModels.JobStatus
	Success     bool
}

// LegacySource is a read-only view of the prior-schema registry.
type LegacySource interface {
	Agents(ctx context.Context) ([]LegacyAgent, error)
}

// Report summarizes one migration run.
type Report struct {
	AgentsRegistered    int
	AgentsSkipped       int
	JobsReplayed        int
	ResolutionsReplayed int
}
