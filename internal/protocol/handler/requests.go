package handler

import (
	"encoding/base64"
	"strings"

	resumeModels "agentledger/internal/resume/models"
	"agentledger/pkg/domain"
	dErrors "agentledger/pkg/domain-errors"
)

// RegisterAgentRequest is the HTTP request body for POST /agents.
type RegisterAgentRequest struct {
	Metadata []MetadataEntryRequest `json:"metadata,omitempty"`
}

// MetadataEntryRequest is one metadata key/value pair; values travel
// base64-encoded because they are arbitrary bytes.
type MetadataEntryRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`

	parsedValue []byte
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *RegisterAgentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	seen := make(map[string]bool, len(r.Metadata))
	for i := range r.Metadata {
		entry := &r.Metadata[i]
		entry.Key = strings.TrimSpace(entry.Key)
		if entry.Key == "" {
			return dErrors.New(dErrors.CodeValidation, "metadata key is required")
		}
		if seen[entry.Key] {
			return dErrors.New(dErrors.CodeValidation, "duplicate metadata key")
		}
		seen[entry.Key] = true

		value, err := base64.StdEncoding.DecodeString(entry.Value)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "metadata value must be base64-encoded")
		}
		entry.parsedValue = value
	}
	return nil
}

// MetadataKeys returns the keys in request order.
func (r *RegisterAgentRequest) MetadataKeys() []string {
	keys := make([]string, 0, len(r.Metadata))
	for i := range r.Metadata {
		keys = append(keys, r.Metadata[i].Key)
	}
	return keys
}

// MetadataValues returns the decoded key/value mapping.
func (r *RegisterAgentRequest) MetadataValues() map[string][]byte {
	values := make(map[string][]byte, len(r.Metadata))
	for i := range r.Metadata {
		values[r.Metadata[i].Key] = r.Metadata[i].parsedValue
	}
	return values
}

// SetMetadataRequest is the HTTP request body for PUT /agents/{agentID}/metadata/{key}.
type SetMetadataRequest struct {
	Value string `json:"value"`

	parsedValue []byte
}

func (r *SetMetadataRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	value, err := base64.StdEncoding.DecodeString(r.Value)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "metadata value must be base64-encoded")
	}
	r.parsedValue = value
	return nil
}

// TransferRequest is the HTTP request body for POST /agents/{agentID}/transfer
// and POST /resumes/{resumeID}/transfer.
type TransferRequest struct {
	NewController string `json:"new_controller"`

	parsedController domain.Principal
}

func (r *TransferRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	principal, err := domain.ParsePrincipal(r.NewController)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "new_controller is required")
	}
	r.parsedController = principal
	return nil
}

// SubmitJobRequest is the HTTP request body for POST /agents/{agentID}/jobs.
type SubmitJobRequest struct {
	JobType     string   `json:"job_type"`
	Description string   `json:"description,omitempty"`
	ProofURI    string   `json:"proof_uri"`
	ProofHash   string   `json:"proof_hash,omitempty"`
	Value       uint64   `json:"economic_value,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	OfferedFee  uint64   `json:"offered_fee,omitempty"`

	parsedJobType resumeModels.JobType
	parsedHash    domain.Digest
}

func (r *SubmitJobRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.JobType = strings.TrimSpace(r.JobType)
	if r.JobType == "" {
		return dErrors.New(dErrors.CodeValidation, "job_type is required")
	}
	jobType := resumeModels.JobType(r.JobType)
	if !jobType.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown job type")
	}
	r.parsedJobType = jobType

	r.ProofURI = strings.TrimSpace(r.ProofURI)
	if r.ProofURI == "" {
		return dErrors.New(dErrors.CodeValidation, "proof_uri is required")
	}
	if r.ProofHash != "" {
		hash, err := domain.ParseDigest(r.ProofHash)
		if err != nil {
			return err
		}
		r.parsedHash = hash
	}
	return nil
}

// VerifyJobRequest is the HTTP request body for POST .../jobs/{jobID}/verify.
type VerifyJobRequest struct {
	Success   bool   `json:"success"`
	ProofHash string `json:"proof_hash,omitempty"`

	parsedHash domain.Digest
}

func (r *VerifyJobRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.ProofHash != "" {
		hash, err := domain.ParseDigest(r.ProofHash)
		if err != nil {
			return err
		}
		r.parsedHash = hash
	}
	return nil
}

// GiveFeedbackRequest is the HTTP request body for POST /agents/{agentID}/feedback.
type GiveFeedbackRequest struct {
	Score    int    `json:"score"`
	Tag1     string `json:"tag1,omitempty"`
	Tag2     string `json:"tag2,omitempty"`
	FileURI  string `json:"file_uri"`
	FileHash string `json:"file_hash,omitempty"`

	parsedHash domain.Digest
}

func (r *GiveFeedbackRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Score < 0 || r.Score > 100 {
		return dErrors.New(dErrors.CodeValidation, "score must be between 0 and 100")
	}
	r.FileURI = strings.TrimSpace(r.FileURI)
	if r.FileURI == "" {
		return dErrors.New(dErrors.CodeValidation, "file_uri is required")
	}
	if r.FileHash != "" {
		hash, err := domain.ParseDigest(r.FileHash)
		if err != nil {
			return err
		}
		r.parsedHash = hash
	}
	return nil
}

// VerifierRequest is the HTTP request body for POST /verifiers.
type VerifierRequest struct {
	Principal string `json:"principal"`

	parsedPrincipal domain.Principal
}

func (r *VerifierRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	principal, err := domain.ParsePrincipal(r.Principal)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "principal is required")
	}
	r.parsedPrincipal = principal
	return nil
}

// RequestValidationRequest is the HTTP request body for POST /validations.
type RequestValidationRequest struct {
	Validator   string `json:"validator"`
	AgentID     string `json:"agent_id,omitempty"`
	RequestURI  string `json:"request_uri"`
	RequestHash string `json:"request_hash"`

	parsedValidator domain.Principal
	parsedAgentID   domain.AgentID
	parsedHash      domain.Digest
}

func (r *RequestValidationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	validator, err := domain.ParsePrincipal(r.Validator)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "validator is required")
	}
	r.parsedValidator = validator

	if r.AgentID != "" {
		agentID, err := domain.ParseAgentID(r.AgentID)
		if err != nil {
			return err
		}
		r.parsedAgentID = agentID
	}

	r.RequestURI = strings.TrimSpace(r.RequestURI)
	if r.RequestURI == "" {
		return dErrors.New(dErrors.CodeValidation, "request_uri is required")
	}
	hash, err := domain.ParseDigest(r.RequestHash)
	if err != nil {
		return err
	}
	r.parsedHash = hash
	return nil
}

// RespondValidationRequest is the HTTP request body for
// POST /validations/{requestHash}/response.
type RespondValidationRequest struct {
	Value        int    `json:"value"`
	ResponseURI  string `json:"response_uri"`
	ResponseHash string `json:"response_hash,omitempty"`
	Tag          string `json:"tag,omitempty"`

	parsedHash domain.Digest
}

func (r *RespondValidationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Value < 0 || r.Value > 100 {
		return dErrors.New(dErrors.CodeValidation, "value must be between 0 and 100")
	}
	r.ResponseURI = strings.TrimSpace(r.ResponseURI)
	if r.ResponseURI == "" {
		return dErrors.New(dErrors.CodeValidation, "response_uri is required")
	}
	if r.ResponseHash != "" {
		hash, err := domain.ParseDigest(r.ResponseHash)
		if err != nil {
			return err
		}
		r.parsedHash = hash
	}
	return nil
}

// PauseRequest is the HTTP request body for POST /admin/pause.
type PauseRequest struct {
	Paused bool `json:"paused"`
}

func (r *PauseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// FeeRequest is the HTTP request body for POST /admin/fee.
type FeeRequest struct {
	Fee uint64 `json:"fee"`
}

func (r *FeeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// WithdrawRequest is the HTTP request body for POST /admin/withdraw.
type WithdrawRequest struct {
	To string `json:"to"`

	parsedTo domain.Principal
}

func (r *WithdrawRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	to, err := domain.ParsePrincipal(r.To)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "to is required")
	}
	r.parsedTo = to
	return nil
}
