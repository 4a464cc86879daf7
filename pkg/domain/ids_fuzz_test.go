//go:build go1.18

package domain

import (
	"testing"
)

// FuzzParseAgentID tests that parsing never panics on arbitrary input
// and always returns either a valid ID or an error.
func FuzzParseAgentID(f *testing.F) {
	f.Add("")
	f.Add("1")
	f.Add("0")
	f.Add("18446744073709551615")
	f.Add("18446744073709551616")
	f.Add("'; DROP TABLE resumes;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("42\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseAgentID(input)

		if err == nil {
			if id.IsZero() {
				t.Error("Zero ID was accepted")
			}
			roundTrip, err2 := ParseAgentID(id.String())
			if err2 != nil {
				t.Errorf("Valid ID failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("Round-trip changed ID value")
			}
		}
	})
}

// FuzzParseAllIDs ensures all ID types have consistent behavior.
func FuzzParseAllIDs(f *testing.F) {
	f.Add("42")
	f.Add("")
	f.Add("invalid")

	f.Fuzz(func(t *testing.T, input string) {
		_, errAgent := ParseAgentID(input)
		_, errResume := ParseResumeID(input)
		_, errJob := ParseJobID(input)

		if (errAgent == nil) != (errResume == nil) || (errResume == nil) != (errJob == nil) {
			t.Error("Inconsistent parsing across ID types")
		}
	})
}
