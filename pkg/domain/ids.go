// Package domain holds the typed identifiers shared across registry layers.
//
// IDs are distinct types over uint64 so the compiler rejects cross-layer
// mix-ups (passing a ResumeID where an AgentID is expected). Zero is never a
// valid assigned ID; it is reserved to mean "absent" or "unlinked".
package domain

import (
	"strconv"
	"strings"

	dErrors "agentledger/pkg/domain-errors"
)

// AgentID identifies a registered agent identity (Layer 1).
type AgentID uint64

// ResumeID identifies a minted resume (Layer 2).
type ResumeID uint64

// JobID identifies a job record. JobIDs are monotonically increasing across
// the whole registry, not per resume, and are never reused.
type JobID uint64

func (id AgentID) IsZero() bool  { return id == 0 }
func (id ResumeID) IsZero() bool { return id == 0 }
func (id JobID) IsZero() bool    { return id == 0 }

func (id AgentID) String() string  { return strconv.FormatUint(uint64(id), 10) }
func (id ResumeID) String() string { return strconv.FormatUint(uint64(id), 10) }
func (id JobID) String() string    { return strconv.FormatUint(uint64(id), 10) }

// ParseAgentID parses a decimal agent ID from a trust boundary (URL path,
// request body). Rejects empty input, non-numeric input, and zero.
func ParseAgentID(s string) (AgentID, error) {
	v, err := parsePositive(s, "agent id")
	return AgentID(v), err
}

// ParseResumeID parses a decimal resume ID from a trust boundary.
func ParseResumeID(s string) (ResumeID, error) {
	v, err := parsePositive(s, "resume id")
	return ResumeID(v), err
}

// ParseJobID parses a decimal job ID from a trust boundary.
func ParseJobID(s string) (JobID, error) {
	v, err := parsePositive(s, "job id")
	return JobID(v), err
}

func parsePositive(s, what string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, what+" is required")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, what+" must be a positive integer")
	}
	if v == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, what+" must be non-zero")
	}
	return v, nil
}
