package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "agentledger/pkg/domain-errors"
)

// TestParseAgentID_Invariants validates the parsing invariant:
// "IDs must be positive decimal integers, zero is reserved for absent".
func TestParseAgentID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseAgentID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects non-numeric input", func(t *testing.T) {
		_, err := ParseAgentID("not-a-number")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects zero", func(t *testing.T) {
		_, err := ParseAgentID("0")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects negative input", func(t *testing.T) {
		_, err := ParseAgentID("-7")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts positive integer", func(t *testing.T) {
		id, err := ParseAgentID("42")
		require.NoError(t, err)
		assert.Equal(t, AgentID(42), id)
		assert.False(t, id.IsZero())
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		id, err := ParseAgentID("  42 ")
		require.NoError(t, err)
		assert.Equal(t, AgentID(42), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	agentID := AgentID(1)
	resumeID := ResumeID(2)
	jobID := JobID(3)

	// These would fail to compile if types were interchangeable:
	// var _ AgentID = resumeID  // compile error
	// var _ ResumeID = jobID    // compile error

	assert.NotEqual(t, uint64(agentID), uint64(resumeID))
	assert.NotEqual(t, uint64(resumeID), uint64(jobID))
}

// TestParseID_SecurityInvariants validates trust boundary parsing rules.
// Parsing must reject attack vectors at API entry points.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Attack vectors
		{"SQL injection attempt", "'; DROP TABLE resumes;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "42\x00", true},
		{"Oversized input", strings.Repeat("9", 1000), true},
		{"Unicode digits", "４２", true},
		{"Hex prefix", "0x2a", true},
		{"Plus sign", "+42", true},

		// Edge cases
		{"Empty string", "", true},
		{"Zero", "0", true},
		{"Whitespace only", "   ", true},
		{"Leading zeroes accepted", "0042", false},
		{"Max uint64", "18446744073709551615", false},
		{"Max uint64 plus one", "18446744073709551616", true},

		// Valid
		{"Small positive", "7", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAgentID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestAllIDTypes_ConsistentBehavior ensures all ID types share one parsing
// behavior. Inconsistent validation across ID types could create security
// holes.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	t.Run("all accept valid input", func(t *testing.T) {
		_, errAgent := ParseAgentID("12")
		_, errResume := ParseResumeID("12")
		_, errJob := ParseJobID("12")

		require.NoError(t, errAgent)
		require.NoError(t, errResume)
		require.NoError(t, errJob)
	})

	for _, input := range []string{"", "invalid", "0", "-1"} {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errAgent := ParseAgentID(input)
			_, errResume := ParseResumeID(input)
			_, errJob := ParseJobID(input)

			require.Error(t, errAgent)
			require.Error(t, errResume)
			require.Error(t, errJob)
		})
	}
}

func TestIDString_RoundTrips(t *testing.T) {
	id := JobID(9000)
	parsed, err := ParseJobID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}
