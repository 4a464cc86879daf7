// Package models defines the verification layer's records: verifier
// attestations and the general-purpose validation request sub-protocol.
package models

import (
	"time"

	"agentledger/pkg/domain"
	dErrors "agentledger/pkg/domain-errors"
)

// Attestation records one verifier's resolution of a job record, with the
// proof hash they vouched for. Kept for audit; never mutated.
type Attestation struct {
	AgentID   domain.AgentID   `json:"agent_id"`
	JobID     domain.JobID     `json:"job_id"`
	Verifier  domain.Principal `json:"verifier"`
	Success   bool             `json:"success"`
	ProofHash domain.Digest    `json:"proof_hash"`
	CreatedAt time.Time        `json:"created_at"`
}

// ValidationStatus classifies a validation response.
type ValidationStatus string

const (
	ValidationPending  ValidationStatus = "PENDING"
	ValidationApproved ValidationStatus = "APPROVED"
	ValidationRejected ValidationStatus = "REJECTED"
)

// ApprovalThreshold is the minimum response value that classifies as
// Approved.
const ApprovalThreshold = 50

// ValidationRequest is a general-purpose attestation request keyed by its
// content hash, independent of any job record. The designated validator
// responds at most once.
type ValidationRequest struct {
	RequestHash domain.Digest    `json:"request_hash"`
	Requester   domain.Principal `json:"requester"`
	Validator   domain.Principal `json:"validator"`
	AgentID     domain.AgentID   `json:"agent_id"`
	RequestURI  string           `json:"request_uri"`
	Status      ValidationStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`

	Response *ValidationResponse `json:"response,omitempty"`
}

// ValidationResponse is the validator's one-shot answer.
type ValidationResponse struct {
	Value        uint8            `json:"value"`
	ResponseURI  string           `json:"response_uri"`
	ResponseHash domain.Digest    `json:"response_hash"`
	Tag          string           `json:"tag,omitempty"`
	Responder    domain.Principal `json:"responder"`
	RespondedAt  time.Time        `json:"responded_at"`
}

// NewValidationRequest validates and builds a pending request.
func NewValidationRequest(requester, validator domain.Principal, agentID domain.AgentID, requestURI string, requestHash domain.Digest, now time.Time) (*ValidationRequest, error) {
	if requester.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "requester is required")
	}
	if validator.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "validator is required")
	}
	if requestURI == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "request uri is required")
	}
	if requestHash.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "request hash is required")
	}
	return &ValidationRequest{
		RequestHash: requestHash,
		Requester:   requester,
		Validator:   validator,
		AgentID:     agentID,
		RequestURI:  requestURI,
		Status:      ValidationPending,
		CreatedAt:   now,
	}, nil
}

// CanRespond checks that the request is still open and the response inputs
// are well-formed. Caller authorization (designated validator or protocol
// owner) is the service's responsibility.
func (r *ValidationRequest) CanRespond(value int, responseURI string) error {
	if r.Response != nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "validation request already has a response")
	}
	if value < 0 || value > 100 {
		return dErrors.New(dErrors.CodeValidation, "response value must be between 0 and 100")
	}
	if responseURI == "" {
		return dErrors.New(dErrors.CodeValidation, "response uri is required")
	}
	return nil
}

// ApplyResponse records the response and classifies the request. Call
// CanRespond first.
func (r *ValidationRequest) ApplyResponse(responder domain.Principal, value int, responseURI string, responseHash domain.Digest, tag string, now time.Time) {
	r.Response = &ValidationResponse{
		Value:        uint8(value),
		ResponseURI:  responseURI,
		ResponseHash: responseHash,
		Tag:          tag,
		Responder:    responder,
		RespondedAt:  now,
	}
	if value >= ApprovalThreshold {
		r.Status = ValidationApproved
	} else {
		r.Status = ValidationRejected
	}
}
