package models

import (
	"time"

	"agentledger/pkg/domain"
	dErrors "agentledger/pkg/domain-errors"
)

// MaxFeedbackScore bounds client ratings.
const MaxFeedbackScore = 100

// Feedback is an independent client-submitted rating, separate from job
// verification. Entries are append-only; revocation flips a flag but never
// removes the entry.
type Feedback struct {
	Client    domain.Principal `json:"client"`
	Score     uint8            `json:"score"`
	Tag1      string           `json:"tag1,omitempty"`
	Tag2      string           `json:"tag2,omitempty"`
	FileURI   string           `json:"file_uri"`
	FileHash  domain.Digest    `json:"file_hash"`
	CreatedAt time.Time        `json:"created_at"`
	Revoked   bool             `json:"revoked"`
}

// NewFeedback validates and builds a feedback entry.
func NewFeedback(client domain.Principal, score int, tag1, tag2, fileURI string, fileHash domain.Digest, now time.Time) (*Feedback, error) {
	if client.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "feedback client is required")
	}
	if score < 0 || score > MaxFeedbackScore {
		return nil, dErrors.New(dErrors.CodeValidation, "score must be between 0 and 100")
	}
	if fileURI == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "file uri is required")
	}
	if len(tag1) > maxTagLength || len(tag2) > maxTagLength {
		return nil, dErrors.New(dErrors.CodeValidation, "tag exceeds maximum length")
	}
	return &Feedback{
		Client:    client,
		Score:     uint8(score),
		Tag1:      tag1,
		Tag2:      tag2,
		FileURI:   fileURI,
		FileHash:  fileHash,
		CreatedAt: now,
	}, nil
}

// CanRevoke checks that the entry is still active.
func (f *Feedback) CanRevoke() error {
	if f.Revoked {
		return dErrors.New(dErrors.CodeInvariantViolation, "feedback entry is already revoked")
	}
	return nil
}

// ApplyRevocation marks the entry revoked. Call CanRevoke first.
func (f *Feedback) ApplyRevocation() {
	f.Revoked = true
}

// MatchesTags reports whether the entry carries any of the filter tags.
// An empty filter matches every entry.
func (f *Feedback) MatchesTags(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, tag := range tags {
		if tag != "" && (f.Tag1 == tag || f.Tag2 == tag) {
			return true
		}
	}
	return false
}

// FeedbackSummary is the aggregate returned by feedback summarization.
type FeedbackSummary struct {
	Count        int    `json:"count"`
	AverageScore uint64 `json:"average_score"`
}
