// Package models defines the transferable agent identity and its ordered
// metadata store.
package models

import (
	"time"

	"agentledger/pkg/domain"
	dErrors "agentledger/pkg/domain-errors"
)

const (
	maxMetadataKeyLength   = 128
	maxMetadataValueLength = 4096
	// MetadataCreatedAtKey is written on registration with the mint
	// timestamp, so every identity carries at least one metadata entry.
	MetadataCreatedAtKey = "created_at"
)

// Identity is a transferable registry entry controlled by a principal.
//
// Invariants:
//   - ID is unique and never reused; identities are never destroyed
//   - LinkedResumeID is written at most once (the forward half of the
//     identity/resume link); control transfers never touch it
//   - Metadata keys enumerate in first-write order
type Identity struct {
	ID             domain.AgentID    `json:"id"`
	Controller     domain.Principal  `json:"controller"`
	LinkedResumeID domain.ResumeID   `json:"linked_resume_id"`
	MetadataKeys   []string          `json:"metadata_keys"`
	Metadata       map[string][]byte `json:"metadata"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ValidateMetadataEntries checks a metadata snapshot without touching any
// identity, so callers can reject bad input before a multi-write sequence
// starts.
func ValidateMetadataEntries(keys []string, values map[string][]byte) error {
	for _, key := range keys {
		if key == "" {
			return dErrors.New(dErrors.CodeValidation, "metadata key is required")
		}
		if len(key) > maxMetadataKeyLength {
			return dErrors.New(dErrors.CodeValidation, "metadata key exceeds maximum length")
		}
		if len(values[key]) > maxMetadataValueLength {
			return dErrors.New(dErrors.CodeValidation, "metadata value exceeds maximum length")
		}
	}
	return nil
}

// NewIdentity mints an identity for a controller. Initial metadata is applied
// in the given key order, followed by the creation timestamp entry.
func NewIdentity(controller domain.Principal, resumeID domain.ResumeID, keys []string, values map[string][]byte, now time.Time) (*Identity, error) {
	if controller.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "controller is required")
	}
	identity := &Identity{
		Controller:     controller,
		LinkedResumeID: resumeID,
		Metadata:       make(map[string][]byte),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, key := range keys {
		if err := identity.setMetadata(key, values[key]); err != nil {
			return nil, err
		}
	}
	if err := identity.setMetadata(MetadataCreatedAtKey, []byte(now.UTC().Format(time.RFC3339))); err != nil {
		return nil, err
	}
	return identity, nil
}

// CanSetMetadata checks that the caller controls the identity and the key is
// well-formed.
func (i *Identity) CanSetMetadata(caller domain.Principal, key string, value []byte) error {
	if caller != i.Controller {
		return dErrors.New(dErrors.CodeForbidden, "only the controller may set metadata")
	}
	if key == "" {
		return dErrors.New(dErrors.CodeValidation, "metadata key is required")
	}
	if len(key) > maxMetadataKeyLength {
		return dErrors.New(dErrors.CodeValidation, "metadata key exceeds maximum length")
	}
	if len(value) > maxMetadataValueLength {
		return dErrors.New(dErrors.CodeValidation, "metadata value exceeds maximum length")
	}
	return nil
}

// ApplySetMetadata overwrites or creates an entry, tracking first-time keys
// for enumeration. Call CanSetMetadata first.
func (i *Identity) ApplySetMetadata(key string, value []byte, now time.Time) {
	_ = i.setMetadata(key, value)
	i.UpdatedAt = now
}

func (i *Identity) setMetadata(key string, value []byte) error {
	if key == "" {
		return dErrors.New(dErrors.CodeValidation, "metadata key is required")
	}
	if len(key) > maxMetadataKeyLength {
		return dErrors.New(dErrors.CodeValidation, "metadata key exceeds maximum length")
	}
	if len(value) > maxMetadataValueLength {
		return dErrors.New(dErrors.CodeValidation, "metadata value exceeds maximum length")
	}
	if _, seen := i.Metadata[key]; !seen {
		i.MetadataKeys = append(i.MetadataKeys, key)
	}
	i.Metadata[key] = append([]byte{}, value...)
	return nil
}

// MetadataValue reads one entry; the second return reports presence.
func (i *Identity) MetadataValue(key string) ([]byte, bool) {
	value, ok := i.Metadata[key]
	return value, ok
}

// CanTransfer checks that the caller controls the identity and the recipient
// is a usable principal.
func (i *Identity) CanTransfer(caller, newController domain.Principal) error {
	if caller != i.Controller {
		return dErrors.New(dErrors.CodeForbidden, "only the controller may transfer an identity")
	}
	if newController.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "new controller is required")
	}
	if newController == i.Controller {
		return dErrors.New(dErrors.CodeValidation, "identity is already controlled by this principal")
	}
	return nil
}

// ApplyTransfer moves control to the new principal. Call CanTransfer first.
// The resume link is untouched: work history follows the identity, not the
// controller.
func (i *Identity) ApplyTransfer(newController domain.Principal, now time.Time) {
	i.Controller = newController
	i.UpdatedAt = now
}

// CanLinkResume checks that the forward link has not been written yet.
func (i *Identity) CanLinkResume(resumeID domain.ResumeID) error {
	if resumeID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "resume id is required")
	}
	if !i.LinkedResumeID.IsZero() {
		return dErrors.New(dErrors.CodeInvariantViolation, "identity is already linked to a resume")
	}
	return nil
}

// ApplyResumeLink completes the forward link. Call CanLinkResume first.
func (i *Identity) ApplyResumeLink(resumeID domain.ResumeID, now time.Time) {
	i.LinkedResumeID = resumeID
	i.UpdatedAt = now
}
