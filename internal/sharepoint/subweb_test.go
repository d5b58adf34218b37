package sharepoint

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeProber answers true for every URL in the sites set.
type fakeProber struct {
	sites  map[string]bool
	probed []string
}

func (p *fakeProber) probe(ctx context.Context, candidateURL string) bool {
	p.probed = append(p.probed, candidateURL)
	return p.sites[strings.ToLower(candidateURL)]
}

func newTestResolver(t *testing.T, siteURL string, sites ...string) (*SubwebResolver, *fakeProber) {
	t.Helper()
	u, err := url.Parse(siteURL)
	require.NoError(t, err)

	p := &fakeProber{sites: make(map[string]bool)}
	for _, s := range sites {
		p.sites[strings.ToLower(s)] = true
	}
	return NewSubwebResolver(u, p.probe, zap.NewNop()), p
}

func TestResolveReRootsIntoNestedSubweb(t *testing.T) {
	r, p := newTestResolver(t, "https://spsite.corp/sites/A",
		"https://spsite.corp/sites/A/PAL",
		"https://spsite.corp/sites/A/PAL/SITE",
	)

	got := r.Resolve(context.Background(), "/sites/A/PAL/SITE/Shared Documents")
	assert.Equal(t, "https://spsite.corp/sites/A/PAL/SITE", got)

	// Sequential shallow-to-deep probing: PAL, PAL/SITE, then the folder
	// segment that terminates the walk.
	assert.Equal(t, []string{
		"https://spsite.corp/sites/A/PAL",
		"https://spsite.corp/sites/A/PAL/SITE",
		"https://spsite.corp/sites/A/PAL/SITE/Shared Documents",
	}, p.probed)
}

func TestResolveStaysAtRootForPlainLibrary(t *testing.T) {
	r, _ := newTestResolver(t, "https://spsite.corp/sites/A")
	got := r.Resolve(context.Background(), "/sites/A/Shared Documents")
	assert.Equal(t, "https://spsite.corp/sites/A", got)
}

func TestResolveMemoizesPerPath(t *testing.T) {
	r, _ := newTestResolver(t, "https://spsite.corp/sites/A",
		"https://spsite.corp/sites/A/PAL",
	)

	first := r.Resolve(context.Background(), "/sites/A/PAL/Shared Documents")
	probesAfterFirst := r.Probes()
	require.Greater(t, probesAfterFirst, 0)

	second := r.Resolve(context.Background(), "/sites/A/PAL/Shared Documents")
	assert.Equal(t, first, second)
	assert.Equal(t, probesAfterFirst, r.Probes(), "a memoized resolution issues zero probes")

	// Case differences and surrounding slashes hit the same cache entry.
	third := r.Resolve(context.Background(), "sites/a/pal/shared documents/")
	assert.Equal(t, first, third)
	assert.Equal(t, probesAfterFirst, r.Probes())
}

func TestResolveOfSiteRootItself(t *testing.T) {
	r, p := newTestResolver(t, "https://spsite.corp/sites/A")
	got := r.Resolve(context.Background(), "/sites/A")
	assert.Equal(t, "https://spsite.corp/sites/A", got)
	assert.Empty(t, p.probed)
}
