package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParsePrincipal checks that parsing never panics and that accepted input
// round-trips through String.
func FuzzParsePrincipal(f *testing.F) {
	f.Add("")
	f.Add("So11111111111111111111111111111111111111112")
	f.Add("11111111111111111111111111111111")
	f.Add("'; DROP TABLE agreements;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		p, err := ParsePrincipal(input)
		if err != nil {
			return
		}
		roundTrip, err := ParsePrincipal(p.String())
		if err != nil {
			t.Errorf("valid principal failed round-trip: %v", err)
		}
		if roundTrip != p {
			t.Error("round-trip changed principal value")
		}
		if !utf8.ValidString(input) {
			t.Error("non-UTF8 input was accepted")
		}
	})
}
