package sharepoint

import (
	"net/url"
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
)

// FuzzEscapePath checks the path-quoting invariants hold for arbitrary input:
// never a lone single quote, always reversible per segment.
func FuzzEscapePath(f *testing.F) {
	f.Add([]byte("/sites/eng/Shared Documents"))
	f.Add([]byte("/sites/eng/O'Brien's Files/100%"))
	f.Add([]byte("///"))

	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)
		p, err := fuzzConsumer.GetString()
		if err != nil {
			return
		}

		escaped := escapePath(p)

		// Single quotes must always come out doubled; an odd run would break
		// the API's quoted-path form.
		stripped := strings.ReplaceAll(escaped, "''", "")
		if strings.Contains(stripped, "'") {
			t.Errorf("escapePath(%q) = %q left an unpaired quote", p, escaped)
		}

		// Segment count is preserved and each segment round-trips.
		inSegs := strings.Split(strings.ReplaceAll(p, "'", "''"), "/")
		outSegs := strings.Split(escaped, "/")
		if len(inSegs) != len(outSegs) {
			t.Fatalf("escapePath(%q) changed segment count", p)
		}
		for i, seg := range outSegs {
			back, err := url.PathUnescape(seg)
			if err != nil {
				t.Errorf("segment %q does not unescape: %v", seg, err)
				continue
			}
			if back != inSegs[i] {
				t.Errorf("segment round-trip: got %q want %q", back, inSegs[i])
			}
		}
	})
}
