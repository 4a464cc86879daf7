package models

import (
	"time"

	"agentledger/pkg/domain"
	dErrors "agentledger/pkg/domain-errors"
	platformstrings "agentledger/pkg/platform/strings"
)

// JobStatus is the verification state of a job record.
//
// Pending is the only non-terminal state. A record leaves Pending at most
// once and never returns: Verified, Failed, and Disputed are all terminal.
type JobStatus string

const (
	StatusPending  JobStatus = "PENDING"
	StatusVerified JobStatus = "VERIFIED"
	// StatusFailed is a legacy terminal status. The live verification path
	// always resolves to Verified and signals the outcome through the
	// success flag; Failed is reachable only through migration replay of
	// prior-schema records.
	StatusFailed   JobStatus = "FAILED"
	StatusDisputed JobStatus = "DISPUTED"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool { return s != StatusPending }

// IsValid reports whether the status is a known state.
func (s JobStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusFailed, StatusDisputed:
		return true
	}
	return false
}

// JobType is the enumerated category of a claimed unit of work.
type JobType string

const (
	JobTypeTradeExecution  JobType = "TRADE_EXECUTION"
	JobTypeCodeGeneration  JobType = "CODE_GENERATION"
	JobTypeDataAnalysis    JobType = "DATA_ANALYSIS"
	JobTypeContentCreation JobType = "CONTENT_CREATION"
	JobTypeModelTraining   JobType = "MODEL_TRAINING"
	JobTypeOther           JobType = "OTHER"
)

// IsValid reports whether the job type is a known category.
func (t JobType) IsValid() bool {
	switch t {
	case JobTypeTradeExecution, JobTypeCodeGeneration, JobTypeDataAnalysis,
		JobTypeContentCreation, JobTypeModelTraining, JobTypeOther:
		return true
	}
	return false
}

const (
	maxDescriptionLength = 1024
	maxTagLength         = 64
	// MaxJobTags bounds the classification tags on a record.
	MaxJobTags = 2
)

// JobRecord is a single unit of claimed work awaiting verification.
//
// Invariants:
//   - JobID is globally unique and monotonically increasing, never reused
//   - Status and OutcomeSuccess are written exactly once, by the
//     verification path, and are immutable afterward
//   - OutcomeSuccess is meaningful only once Status leaves Pending
type JobRecord struct {
	JobID          domain.JobID     `json:"job_id"`
	Submitter      domain.Principal `json:"submitter"`
	JobType        JobType          `json:"job_type"`
	Status         JobStatus        `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	EconomicValue  uint64           `json:"economic_value"`
	ProofHash      domain.Digest    `json:"proof_hash"`
	ProofURI       string           `json:"proof_uri"`
	Description    string           `json:"description"`
	OutcomeSuccess bool             `json:"outcome_success"`
	Tags           []string         `json:"tags,omitempty"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
}

// NewJobRecord validates the submission inputs and builds a Pending record.
// The store assigns the JobID on append.
func NewJobRecord(submitter domain.Principal, jobType JobType, description, proofURI string, proofHash domain.Digest, value uint64, tags []string, now time.Time) (*JobRecord, error) {
	if submitter.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "submitter is required")
	}
	if !jobType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown job type")
	}
	if proofURI == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "proof uri is required")
	}
	if len(description) > maxDescriptionLength {
		return nil, dErrors.New(dErrors.CodeValidation, "description exceeds maximum length")
	}
	tags = platformstrings.DedupeAndTrim(tags)
	if len(tags) > MaxJobTags {
		return nil, dErrors.New(dErrors.CodeValidation, "at most two tags are allowed")
	}
	for _, tag := range tags {
		if len(tag) > maxTagLength {
			return nil, dErrors.New(dErrors.CodeValidation, "tag exceeds maximum length")
		}
	}
	return &JobRecord{
		Submitter:     submitter,
		JobType:       jobType,
		Status:        StatusPending,
		CreatedAt:     now,
		EconomicValue: value,
		ProofHash:     proofHash,
		ProofURI:      proofURI,
		Description:   description,
		Tags:          append([]string{}, tags...),
	}, nil
}

// CanResolve checks that the record may still transition.
func (j *JobRecord) CanResolve() error {
	if j.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "job record is already resolved")
	}
	return nil
}

// ApplyResolution writes the terminal status and outcome. Call CanResolve
// first; the resolution is a one-way transition.
func (j *JobRecord) ApplyResolution(status JobStatus, success bool, now time.Time) {
	j.Status = status
	j.OutcomeSuccess = success
	resolved := now
	j.ResolvedAt = &resolved
}

// ReputationDelta returns the reputation adjustment a resolution carries.
// Verified successes earn the success delta; any failing resolution costs the
// failure delta; disputes carry no adjustment.
func ReputationDelta(status JobStatus, success bool) int64 {
	switch status {
	case StatusVerified:
		if success {
			return ReputationSuccess
		}
		return -ReputationFailure
	case StatusFailed:
		return -ReputationFailure
	default:
		return 0
	}
}

// Successful reports whether the record counts as a successful job.
func (j *JobRecord) Successful() bool {
	return j.Status == StatusVerified && j.OutcomeSuccess
}

// Failed reports whether the record counts as a failed job.
func (j *JobRecord) Failed() bool {
	return j.Status == StatusFailed || (j.Status == StatusVerified && !j.OutcomeSuccess)
}
