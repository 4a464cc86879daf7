package domain

import (
	"strings"

	dErrors "agentledger/pkg/domain-errors"
)

// Principal is the opaque account identifier of a caller: an agent operator,
// a feedback client, a verifier, or the protocol owner. The registry never
// interprets the value beyond equality; it only rejects the zero principal.
type Principal string

const maxPrincipalLength = 256

// IsZero reports whether the principal is the empty (invalid) principal.
func (p Principal) IsZero() bool { return p == "" }

func (p Principal) String() string { return string(p) }

// ParsePrincipal validates a principal at a trust boundary.
func ParsePrincipal(s string) (Principal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal is required")
	}
	if len(s) > maxPrincipalLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal exceeds maximum length")
	}
	return Principal(s), nil
}
