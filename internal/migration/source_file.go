package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	resumeModels "agentledger/internal/resume/models"
	"agentledger/pkg/domain"
)

// FileSource reads a legacy registry export from a JSON file. The export is
// an array of agents, each carrying its controller, metadata, and job history
// in submission order. Metadata values are base64 in the file, matching the
// standard encoding of []byte.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

type fileAgent struct {
	Controller   string            `json:"controller"`
	MetadataKeys []string          `json:"metadata_keys"`
	Metadata     map[string][]byte `json:"metadata"`
	Jobs         []fileJob         `json:"jobs"`
}

type fileJob struct {
	Submitter   string        `json:"submitter"`
	JobType     string        `json:"job_type"`
	Description string        `json:"description"`
	ProofURI    string        `json:"proof_uri"`
	ProofHash   domain.Digest `json:"proof_hash"`
	Value       uint64        `json:"value"`
	Tags        []string      `json:"tags"`
	Status      string        `json:"status"`
	Success     bool          `json:"success"`
}

func (s *FileSource) Agents(ctx context.Context) ([]LegacyAgent, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}

	var entries []fileAgent
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}

	agents := make([]LegacyAgent, 0, len(entries))
	for i, entry := range entries {
		agent, err := entry.toLegacy()
		if err != nil {
			return nil, fmt.Errorf("agent %d: %w", i, err)
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

func (e fileAgent) toLegacy() (LegacyAgent, error) {
	controller, err := domain.ParsePrincipal(e.Controller)
	if err != nil {
		return LegacyAgent{}, fmt.Errorf("controller: %w", err)
	}

	keys := e.MetadataKeys
	if keys == nil {
		// Exports without explicit ordering fall back to sorted keys.
		keys = make([]string, 0, len(e.Metadata))
		for key := range e.Metadata {
			keys = append(keys, key)
		}
		sort.Strings(keys)
	}
	for _, key := range keys {
		if _, ok := e.Metadata[key]; !ok {
			return LegacyAgent{}, fmt.Errorf("metadata key %q has no value", key)
		}
	}

	jobs := make([]LegacyJob, 0, len(e.Jobs))
	for i, job := range e.Jobs {
		legacy, err := job.toLegacy()
		if err != nil {
			return LegacyAgent{}, fmt.Errorf("job %d: %w", i, err)
		}
		jobs = append(jobs, legacy)
	}

	return LegacyAgent{
		Controller:   controller,
		MetadataKeys: keys,
		Metadata:     e.Metadata,
		Jobs:         jobs,
	}, nil
}

func (j fileJob) toLegacy() (LegacyJob, error) {
	submitter, err := domain.ParsePrincipal(j.Submitter)
	if err != nil {
		return LegacyJob{}, fmt.Errorf("submitter: %w", err)
	}
	jobType := resumeModels.JobType(j.JobType)
	if !jobType.IsValid() {
		return LegacyJob{}, fmt.Errorf("unknown job type %q", j.JobType)
	}
	status := resumeModels.JobStatus(j.Status)
	if !status.IsValid() {
		return LegacyJob{}, fmt.Errorf("unknown job status %q", j.Status)
	}

	return LegacyJob{
		Submitter:   submitter,
		JobType:     jobType,
		Description: j.Description,
		ProofURI:    j.ProofURI,
		ProofHash:   j.ProofHash,
		Value:       j.Value,
		Tags:        j.Tags,
		Status:      status,
		Success:     j.Success,
	}, nil
}
