package handler

import (
	"encoding/base64"
	"time"

	identityModels "agentledger/internal/identity/models"
	resumeModels "agentledger/internal/resume/models"
	verificationModels "agentledger/internal/verification/models"
)

// AgentResponse is the HTTP view of an identity and its bound resume.
type AgentResponse struct {
	AgentID    string                  `json:"agent_id"`
	Controller string                  `json:"controller"`
	ResumeID   string                  `json:"resume_id"`
	Metadata   []MetadataEntryResponse `json:"metadata"`
	CreatedAt  time.Time               `json:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at"`

	Resume *ResumeResponse `json:"resume,omitempty"`
}

// MetadataEntryResponse is one metadata entry, value base64-encoded.
type MetadataEntryResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ResumeResponse is the HTTP view of a resume.
type ResumeResponse struct {
	ResumeID   string    `json:"resume_id"`
	Owner      string    `json:"owner"`
	AgentID    string    `json:"agent_id"`
	Reputation uint64    `json:"reputation"`
	Locked     bool      `json:"locked"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// JobRecordResponse is the HTTP view of one job record.
type JobRecordResponse struct {
	JobID          string     `json:"job_id"`
	Submitter      string     `json:"submitter"`
	JobType        string     `json:"job_type"`
	Status         string     `json:"status"`
	EconomicValue  uint64     `json:"economic_value"`
	ProofURI       string     `json:"proof_uri"`
	ProofHash      string     `json:"proof_hash,omitempty"`
	Description    string     `json:"description,omitempty"`
	OutcomeSuccess bool       `json:"outcome_success"`
	Tags           []string   `json:"tags,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// FeedbackIndexResponse reports where a feedback entry landed.
type FeedbackIndexResponse struct {
	Client string `json:"client"`
	Index  int    `json:"index"`
}

// AttestationResponse is the HTTP view of one verifier attestation.
type AttestationResponse struct {
	JobID     string    `json:"job_id"`
	Verifier  string    `json:"verifier"`
	Success   bool      `json:"success"`
	ProofHash string    `json:"proof_hash,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidationResponseView is the HTTP view of a validation request.
type ValidationResponseView struct {
	RequestHash string    `json:"request_hash"`
	Requester   string    `json:"requester"`
	Validator   string    `json:"validator"`
	AgentID     string    `json:"agent_id,omitempty"`
	RequestURI  string    `json:"request_uri"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`

	ResponseValue *uint8     `json:"response_value,omitempty"`
	ResponseURI   string     `json:"response_uri,omitempty"`
	ResponseHash  string     `json:"response_hash,omitempty"`
	ResponseTag   string     `json:"response_tag,omitempty"`
	Responder     string     `json:"responder,omitempty"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
}

// WithdrawResponse reports a completed fee withdrawal.
type WithdrawResponse struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// FromIdentity converts an identity (and optionally its resume) to the HTTP
// view.
func FromIdentity(identity *identityModels.Identity, resume *resumeModels.Resume) *AgentResponse {
	response := &AgentResponse{
		AgentID:    identity.ID.String(),
		Controller: identity.Controller.String(),
		ResumeID:   identity.LinkedResumeID.String(),
		Metadata:   make([]MetadataEntryResponse, 0, len(identity.MetadataKeys)),
		CreatedAt:  identity.CreatedAt,
		UpdatedAt:  identity.UpdatedAt,
	}
	for _, key := range identity.MetadataKeys {
		response.Metadata = append(response.Metadata, MetadataEntryResponse{
			Key:   key,
			Value: base64.StdEncoding.EncodeToString(identity.Metadata[key]),
		})
	}
	if resume != nil {
		response.Resume = FromResume(resume)
	}
	return response
}

// FromResume converts a resume to the HTTP view.
func FromResume(resume *resumeModels.Resume) *ResumeResponse {
	return &ResumeResponse{
		ResumeID:   resume.ID.String(),
		Owner:      resume.Owner.String(),
		AgentID:    resume.LinkedAgentID.String(),
		Reputation: resume.Reputation,
		Locked:     resume.Locked(),
		CreatedAt:  resume.CreatedAt,
		UpdatedAt:  resume.UpdatedAt,
	}
}

// FromJobRecord converts a job record to the HTTP view.
func FromJobRecord(record *resumeModels.JobRecord) *JobRecordResponse {
	response := &JobRecordResponse{
		JobID:          record.JobID.String(),
		Submitter:      record.Submitter.String(),
		JobType:        string(record.JobType),
		Status:         string(record.Status),
		EconomicValue:  record.EconomicValue,
		ProofURI:       record.ProofURI,
		Description:    record.Description,
		OutcomeSuccess: record.OutcomeSuccess,
		Tags:           record.Tags,
		CreatedAt:      record.CreatedAt,
		ResolvedAt:     record.ResolvedAt,
	}
	if !record.ProofHash.IsZero() {
		response.ProofHash = record.ProofHash.String()
	}
	return response
}

// FromJobRecords converts a job record list to the HTTP view.
func FromJobRecords(records []resumeModels.JobRecord) []JobRecordResponse {
	out := make([]JobRecordResponse, 0, len(records))
	for i := range records {
		out = append(out, *FromJobRecord(&records[i]))
	}
	return out
}

// FromAttestations converts attestations to the HTTP view.
func FromAttestations(attestations []verificationModels.Attestation) []AttestationResponse {
	out := make([]AttestationResponse, 0, len(attestations))
	for i := range attestations {
		a := &attestations[i]
		view := AttestationResponse{
			JobID:     a.JobID.String(),
			Verifier:  a.Verifier.String(),
			Success:   a.Success,
			CreatedAt: a.CreatedAt,
		}
		if !a.ProofHash.IsZero() {
			view.ProofHash = a.ProofHash.String()
		}
		out = append(out, view)
	}
	return out
}

// FromValidation converts a validation request to the HTTP view.
func FromValidation(request *verificationModels.ValidationRequest) *ValidationResponseView {
	view := &ValidationResponseView{
		RequestHash: request.RequestHash.String(),
		Requester:   request.Requester.String(),
		Validator:   request.Validator.String(),
		RequestURI:  request.RequestURI,
		Status:      string(request.Status),
		CreatedAt:   request.CreatedAt,
	}
	if !request.AgentID.IsZero() {
		view.AgentID = request.AgentID.String()
	}
	if request.Response != nil {
		value := request.Response.Value
		respondedAt := request.Response.RespondedAt
		view.ResponseValue = &value
		view.ResponseURI = request.Response.ResponseURI
		view.ResponseTag = request.Response.Tag
		view.Responder = request.Response.Responder.String()
		view.RespondedAt = &respondedAt
		if !request.Response.ResponseHash.IsZero() {
			view.ResponseHash = request.Response.ResponseHash.String()
		}
	}
	return view
}
