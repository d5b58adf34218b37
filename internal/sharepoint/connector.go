// File: internal/sharepoint/connector.go
package sharepoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/auth"
	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/config"
)

// errNotFound marks a 404 from the repository. Terminal: never retried.
var errNotFound = errors.New("not found")

// ErrAuthRequired re-exports the auth sentinel for callers that only import
// this package.
var ErrAuthRequired = auth.ErrAuthRequired

const filesSelect = "$select=Name,ServerRelativeUrl,Length,TimeLastModified"
const foldersSelect = "$select=Name,ServerRelativeUrl,ItemCount"

// Connector performs resource discovery and download against a resolved site
// root. One request is in flight at a time; independent Connector instances
// may run concurrently, each subject to server throttling on its own.
type Connector struct {
	logger   *zap.Logger
	cfg      *config.Config
	siteURL  *url.URL
	session  *auth.Session
	retrier  *retrier
	resolver *SubwebResolver
	limiter  *rate.Limiter

	extAllow   map[string]bool
	sysFolders map[string]bool

	// diag points at the current operation's counters.
	diag *Diagnostics
}

// NewConnector authenticates against the site (running the full strategy
// cascade) and returns a connector bound to the winning session.
func NewConnector(ctx context.Context, cfg *config.Config, registry *auth.Registry, logger *zap.Logger) (*Connector, error) {
	siteURL, err := url.Parse(strings.TrimRight(cfg.Site.URL, "/"))
	if err != nil || siteURL.Host == "" {
		return nil, fmt.Errorf("invalid site url %q", cfg.Site.URL)
	}

	session, err := registry.Authenticate(ctx, siteURL.String())
	if err != nil {
		return nil, err
	}

	c := &Connector{
		logger:     logger.Named("connector").With(zap.String("site", siteURL.Host)),
		cfg:        cfg,
		siteURL:    siteURL,
		session:    session,
		retrier:    newRetrier(cfg.Network, logger),
		extAllow:   lowerSet(cfg.Site.Extensions),
		sysFolders: lowerSet(cfg.Site.SystemFolders),
		diag:       &Diagnostics{},
	}
	if cfg.Network.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.Network.RequestsPerSecond), 1)
	}
	c.resolver = NewSubwebResolver(siteURL, c.siteExists, logger)
	return c, nil
}

// AuthMethod reports which credential strategy won the cascade.
func (c *Connector) AuthMethod() string { return string(c.session.Strategy()) }

// InsecureFallback reports whether the session downgraded TLS verification.
func (c *Connector) InsecureFallback() bool { return c.session.InsecureFallback() }

// Close releases the underlying session.
func (c *Connector) Close() { c.session.Close() }

// ConnectAndDiscover probes the site, resolves the listing scope, and walks
// the folder tree depth-first under the maxFiles and depth budgets. An empty
// startPath triggers default-library autodetection.
func (c *Connector) ConnectAndDiscover(ctx context.Context, startPath string, recursive bool, maxFiles int) (*DiscoveryResult, error) {
	diag := &Diagnostics{}
	c.diag = diag
	if maxFiles <= 0 {
		maxFiles = c.cfg.Site.MaxFiles
	}

	info, err := c.probeWeb(ctx, c.siteURL.String())
	if err != nil {
		return nil, fmt.Errorf("site probe: %w", err)
	}
	result := &DiscoveryResult{Title: info.Title}

	listPath := c.normalizePath(startPath)
	if listPath == "" {
		listPath = c.detectDefaultLibrary(ctx)
		if listPath == "" {
			diag.Notes = append(diag.Notes, "no default document library found; probed: "+strings.Join(c.cfg.Site.DefaultLibraries, ", "))
			c.finishDiag(result, diag)
			return result, nil
		}
	}
	result.ResolvedPath = listPath

	// Listing endpoints are scoped to the current web; re-root when the
	// target path lives inside a nested sub-site.
	apiRoot := c.resolver.Resolve(ctx, listPath)

	visited := make(map[string]bool)
	files := make([]DiscoveredFile, 0, 16)

	var walk func(folder string, depth int) error
	walk = func(folder string, depth int) error {
		if len(files) >= maxFiles || depth > c.cfg.Site.MaxDepth {
			return nil
		}
		key := strings.ToLower(folder)
		if visited[key] {
			return nil
		}
		visited[key] = true

		entries, err := c.listFiles(ctx, apiRoot, folder)
		if err != nil {
			if errors.Is(err, errNotFound) {
				diag.Notes = append(diag.Notes, fmt.Sprintf("folder %q not visible from resolved scope %s", folder, apiRoot))
				return nil
			}
			return err
		}
		for _, entry := range entries {
			ext := strings.ToLower(path.Ext(entry.Name))
			if !c.extAllow[ext] {
				continue
			}
			size, _ := entry.Length.Int64()
			files = append(files, DiscoveredFile{
				Name:               entry.Name,
				ServerRelativePath: entry.ServerRelativeURL,
				Size:               size,
				Modified:           parseModified(entry.TimeLastModified),
				Extension:          ext,
			})
			if len(files) >= maxFiles {
				return nil
			}
		}

		if !recursive || depth >= c.cfg.Site.MaxDepth {
			return nil
		}
		folders, err := c.listFolders(ctx, apiRoot, folder)
		if err != nil {
			if errors.Is(err, errNotFound) {
				return nil
			}
			return err
		}
		for _, sub := range folders {
			if c.sysFolders[strings.ToLower(sub.Name)] {
				continue
			}
			if err := walk(sub.ServerRelativeURL, depth+1); err != nil {
				return err
			}
			if len(files) >= maxFiles {
				return nil
			}
		}
		return nil
	}

	if err := walk(listPath, 1); err != nil {
		return nil, err
	}

	result.Files = files
	c.finishDiag(result, diag)
	c.logger.Info("Discovery complete.",
		zap.Int("files", len(files)),
		zap.Int("requests", diag.RequestsIssued),
		zap.Int("throttle_waits", diag.ThrottleWaits))
	return result, nil
}

// Download streams the file's binary content endpoint into dest. The write
// lands in a temp file first and is renamed on success; a failed, cancelled,
// or timed-out download never leaves a partial file at dest.
func (c *Connector) Download(ctx context.Context, serverRelPath, dest string) (int64, error) {
	apiRoot := c.resolver.Resolve(ctx, path.Dir(serverRelPath))
	target := fmt.Sprintf("%s/_api/web/GetFileByServerRelativeUrl('%s')/$value", apiRoot, escapePath(serverRelPath))

	resp, err := c.doGet(ctx, target)
	if err != nil {
		return 0, err
	}
	defer drainAndClose(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, fmt.Errorf("%w: %s", errNotFound, serverRelPath)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return 0, fmt.Errorf("%w downloading %s (status %d)", ErrAuthRequired, serverRelPath, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("download of %s answered status %d", serverRelPath, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("creating destination directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".aegis-download-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}

	written, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("downloading %s: %w", serverRelPath, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("finalizing download: %w", err)
	}
	return written, nil
}

// ProbeTitle confirms auth against an arbitrary site root and returns its
// title. Used by the link validator's last stage.
func (c *Connector) ProbeTitle(ctx context.Context) (string, error) {
	info, err := c.probeWeb(ctx, c.siteURL.String())
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

// -- request plumbing --

// doGet routes one request through pacing, the session (TLS downgrade), and
// the retry policy.
func (c *Connector) doGet(ctx context.Context, rawURL string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return c.retrier.execute(ctx, c.diag,
		func(ctx context.Context) (*http.Response, error) {
			before := c.session.Downgrades()
			resp, err := c.session.Get(ctx, rawURL)
			if c.session.Downgrades() > before {
				// The downgrade retry is a soft event, not a fatal attempt.
				c.diag.SoftRetries++
				c.diag.InsecureFallback = true
			}
			return resp, err
		},
		func() error {
			fresh, err := c.session.Fresh()
			if err != nil {
				return err
			}
			c.session = fresh
			return nil
		})
}

// getDecoded fetches rawURL and maps terminal statuses to sentinels.
func (c *Connector) getDecoded(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.doGet(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (status %d)", ErrAuthRequired, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}
	return io.ReadAll(resp.Body)
}

func (c *Connector) probeWeb(ctx context.Context, base string) (*webInfo, error) {
	body, err := c.getDecoded(ctx, base+"/_api/web")
	if err != nil {
		return nil, err
	}
	return decodeWebInfo(body)
}

func (c *Connector) listFiles(ctx context.Context, apiRoot, folder string) ([]fileEntry, error) {
	u := fmt.Sprintf("%s/_api/web/GetFolderByServerRelativeUrl('%s')/Files?%s&$top=%d",
		apiRoot, escapePath(folder), filesSelect, c.cfg.Site.PageSize)
	body, err := c.getDecoded(ctx, u)
	if err != nil {
		return nil, err
	}
	var entries []fileEntry
	if err := decodeList(body, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Connector) listFolders(ctx context.Context, apiRoot, folder string) ([]folderEntry, error) {
	u := fmt.Sprintf("%s/_api/web/GetFolderByServerRelativeUrl('%s')/Folders?%s",
		apiRoot, escapePath(folder), foldersSelect)
	body, err := c.getDecoded(ctx, u)
	if err != nil {
		return nil, err
	}
	var entries []folderEntry
	if err := decodeList(body, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// siteExists is the resolver's minimal does-a-site-exist-here probe.
func (c *Connector) siteExists(ctx context.Context, candidateURL string) bool {
	resp, err := c.doGet(ctx, candidateURL+"/_api/web")
	if err != nil {
		return false
	}
	drainAndClose(resp)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// folderExists backs default-library autodetection.
func (c *Connector) folderExists(ctx context.Context, serverRelPath string) bool {
	u := fmt.Sprintf("%s/_api/web/GetFolderByServerRelativeUrl('%s')?$select=Name",
		c.siteURL.String(), escapePath(serverRelPath))
	_, err := c.getDecoded(ctx, u)
	return err == nil
}

// detectDefaultLibrary probes the short ordered candidate list and accepts
// the first library that resolves.
func (c *Connector) detectDefaultLibrary(ctx context.Context) string {
	for _, lib := range c.cfg.Site.DefaultLibraries {
		candidate := joinServerRel(c.siteURL.Path, lib)
		if c.folderExists(ctx, candidate) {
			c.logger.Info("Auto-detected default library.", zap.String("library", candidate))
			return candidate
		}
	}
	return ""
}

// normalizePath turns a caller-supplied path into a server-relative one.
func (c *Connector) normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "/") {
		return strings.TrimRight(p, "/")
	}
	return joinServerRel(c.siteURL.Path, p)
}

func (c *Connector) finishDiag(result *DiscoveryResult, diag *Diagnostics) {
	diag.InsecureFallback = diag.InsecureFallback || c.session.InsecureFallback()
	result.Diagnostics = *diag
}

// -- helpers --

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = true
	}
	return set
}

func joinServerRel(base, rel string) string {
	base = strings.TrimRight(base, "/")
	return base + "/" + strings.Trim(rel, "/")
}

// escapePath encodes a server-relative path for embedding inside the API's
// quoted-path form: single quotes are doubled, segments percent-encoded,
// slashes preserved.
func escapePath(p string) string {
	p = strings.ReplaceAll(p, "'", "''")
	segments := strings.Split(p, "/")
	for i, s := range segments {
		// The doubled quote must stay literal or the server's quote
		// unescaping never sees it.
		segments[i] = strings.ReplaceAll(url.PathEscape(s), "%27", "'")
	}
	return strings.Join(segments, "/")
}
