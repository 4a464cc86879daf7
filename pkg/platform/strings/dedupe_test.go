package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "trims whitespace",
			input:    []string{"  speed  ", "quality  "},
			expected: []string{"speed", "quality"},
		},
		{
			name:     "first occurrence wins",
			input:    []string{"speed", "quality", "speed"},
			expected: []string{"speed", "quality"},
		},
		{
			name:     "drops empty and whitespace-only entries",
			input:    []string{"speed", "", "   ", "quality"},
			expected: []string{"speed", "quality"},
		},
		{
			name:     "case is preserved",
			input:    []string{"Speed", "speed"},
			expected: []string{"Speed", "speed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}
