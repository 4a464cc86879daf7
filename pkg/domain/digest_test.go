package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "agentledger/pkg/domain-errors"
)

func TestParseDigest(t *testing.T) {
	valid := strings.Repeat("ab", DigestSize)

	t.Run("accepts 64-char hex", func(t *testing.T) {
		d, err := ParseDigest(valid)
		require.NoError(t, err)
		assert.Equal(t, valid, d.String())
		assert.False(t, d.IsZero())
	})

	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseDigest("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects short hex", func(t *testing.T) {
		_, err := ParseDigest("abcd")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects non-hex characters", func(t *testing.T) {
		_, err := ParseDigest(strings.Repeat("zz", DigestSize))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestDigestJSON(t *testing.T) {
	valid := strings.Repeat("0f", DigestSize)

	t.Run("marshals as hex string", func(t *testing.T) {
		d, err := ParseDigest(valid)
		require.NoError(t, err)

		raw, err := json.Marshal(d)
		require.NoError(t, err)
		assert.Equal(t, `"`+valid+`"`, string(raw))
	})

	t.Run("empty string decodes to zero digest", func(t *testing.T) {
		var d Digest
		require.NoError(t, json.Unmarshal([]byte(`""`), &d))
		assert.True(t, d.IsZero())
	})

	t.Run("malformed hex is rejected", func(t *testing.T) {
		var d Digest
		require.Error(t, json.Unmarshal([]byte(`"nope"`), &d))
	})
}

func TestParsePrincipal(t *testing.T) {
	t.Run("rejects empty and whitespace", func(t *testing.T) {
		for _, input := range []string{"", "   "} {
			_, err := ParsePrincipal(input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		}
	})

	t.Run("rejects oversized principal", func(t *testing.T) {
		_, err := ParsePrincipal(strings.Repeat("a", maxPrincipalLength+1))
		require.Error(t, err)
	})

	t.Run("trims and accepts", func(t *testing.T) {
		p, err := ParsePrincipal("  operator-1 ")
		require.NoError(t, err)
		assert.Equal(t, Principal("operator-1"), p)
		assert.False(t, p.IsZero())
	})
}
