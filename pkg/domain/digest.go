package domain

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	dErrors "agentledger/pkg/domain-errors"
)

// DigestSize is the byte length of every content digest the registry accepts
// (proof hashes, feedback file hashes, validation request/response hashes).
const DigestSize = 32

// Digest is a fixed-size content digest referencing an off-chain document.
// The registry stores and compares digests but never dereferences them.
type Digest [DigestSize]byte

// IsZero reports whether the digest is all zeroes (treated as "not provided").
func (d Digest) IsZero() bool { return d == Digest{} }

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// ParseDigest parses a 64-character hex digest from a trust boundary.
func ParseDigest(s string) (Digest, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Digest{}, dErrors.New(dErrors.CodeInvalidInput, "digest is required")
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != DigestSize {
		return Digest{}, dErrors.New(dErrors.CodeInvalidInput, "digest must be 32 bytes hex-encoded")
	}
	var d Digest
	copy(d[:], raw)
	return d, nil
}

// MarshalJSON renders the digest as a hex string.
func (d Digest) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a hex string. An empty string decodes to the zero
// digest so optional fields round-trip cleanly.
func (d *Digest) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Digest{}
		return nil
	}
	parsed, err := ParseDigest(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
