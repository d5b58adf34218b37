// File: internal/sharepoint/subweb.go
package sharepoint

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// SubwebResolver re-points API calls at the correct scope inside a nested
// site topology. Folder-metadata lookups resolve across the whole site
// collection, but listing endpoints are scoped to "the current web": a
// library living inside a nested sub-site answers empty or with a server
// error when queried from the parent's scope.
//
// The resolver walks the target path's segments from shallowest to deepest,
// probing each candidate boundary with a minimal does-a-site-exist-here
// request; the deepest affirmative segment becomes the new site root.
// Probing is deliberately sequential: out-of-order probing could select a
// shallower root when an intermediate probe is slow.
//
// Results are memoized per instance: the same path resolves identically with
// zero additional probes on a second call.
type SubwebResolver struct {
	siteURL *url.URL
	logger  *zap.Logger

	// probe answers whether a site root exists at the candidate URL.
	probe func(ctx context.Context, candidateURL string) bool

	mu     sync.Mutex
	cache  map[string]string
	probes int
}

// NewSubwebResolver builds a resolver rooted at siteURL. probe is supplied by
// the connector so resolution rides the same session and retry policy.
func NewSubwebResolver(siteURL *url.URL, probe func(ctx context.Context, candidateURL string) bool, logger *zap.Logger) *SubwebResolver {
	return &SubwebResolver{
		siteURL: siteURL,
		logger:  logger.Named("subweb"),
		probe:   probe,
		cache:   make(map[string]string),
	}
}

// Resolve returns the site root URL that owns targetPath. targetPath is
// server-relative (e.g. "/sites/A/PAL/SITE/Shared Documents").
func (r *SubwebResolver) Resolve(ctx context.Context, targetPath string) string {
	key := strings.ToLower(strings.Trim(targetPath, "/"))

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return cached
	}
	r.mu.Unlock()

	resolved := r.walk(ctx, targetPath)

	r.mu.Lock()
	r.cache[key] = resolved
	r.mu.Unlock()
	return resolved
}

// walk probes candidate boundaries shallowest first and keeps the deepest
// affirmative answer.
func (r *SubwebResolver) walk(ctx context.Context, targetPath string) string {
	base := strings.TrimRight(r.siteURL.String(), "/")
	rootPath := strings.Trim(r.siteURL.Path, "/")

	rel := strings.Trim(targetPath, "/")
	if rootPath != "" && strings.HasPrefix(strings.ToLower(rel), strings.ToLower(rootPath)) {
		rel = strings.Trim(rel[len(rootPath):], "/")
	}
	if rel == "" {
		return base
	}

	resolved := base
	candidate := base
	for _, segment := range strings.Split(rel, "/") {
		candidate = candidate + "/" + segment
		r.mu.Lock()
		r.probes++
		r.mu.Unlock()
		if r.probe(ctx, candidate) {
			resolved = candidate
			continue
		}
		// The first non-site segment starts folder territory; anything
		// deeper cannot be a site boundary either.
		break
	}

	if resolved != base {
		r.logger.Info("Target path lives inside a nested sub-site; re-rooting API scope.",
			zap.String("path", targetPath),
			zap.String("resolved_root", resolved))
	}
	return resolved
}

// Probes reports how many network probes were issued. Memoized resolutions
// issue none.
func (r *SubwebResolver) Probes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.probes
}
