// File: internal/headless/fallback.go
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/config"
)

// ErrNoBrowser means no configured channel resolved to a usable binary.
var ErrNoBrowser = errors.New("no suitable browser binary found")

// ErrAuthNotConfirmed means the 3-phase confirmation protocol did not observe
// a signed-in state before the deadline.
var ErrAuthNotConfirmed = errors.New("browser sign-in not confirmed before deadline")

const locationPollInterval = 500 * time.Millisecond

// Authenticator drives a real browser engine through the identity-federation
// redirect chain when every programmatic credential strategy has failed. One
// browser process is spawned per Authenticate call; callers must not run more
// than one concurrent instance per target domain without external
// serialization.
type Authenticator struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu            sync.Mutex
	profileDir    string
	profileIsTemp bool
}

// New builds the fallback authenticator. Nothing is launched until
// Authenticate is called.
func New(cfg config.BrowserConfig, logger *zap.Logger) *Authenticator {
	return &Authenticator{cfg: cfg, logger: logger.Named("headless")}
}

// Authenticate completes ambient sign-in against siteURL and returns the
// browser's session cookies for that origin. Success is confirmed only by the
// 3-phase protocol:
//
//  1. Navigate the site's human-facing homepage, never a bare API endpoint,
//     so the full identity-federation redirect chain is triggered. Hitting
//     the API directly mistakes an in-flight redirect for a stuck login page.
//  2. Wait, bounded by the configured deadline, for the redirect chain to
//     settle back on the original domain.
//  3. Execute an in-page fetch of the metadata endpoint and inspect the
//     status it returns.
func (a *Authenticator) Authenticate(ctx context.Context, siteURL string) ([]*http.Cookie, error) {
	execPath := LocateBinary(a.cfg.Channels)
	if execPath == "" {
		return nil, ErrNoBrowser
	}

	site, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("parsing site url: %w", err)
	}

	profile, err := a.ensureProfileDir()
	if err != nil {
		return nil, err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, a.allocatorOptions(execPath, profile)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	a.logger.Info("Launching browser for ambient sign-in.",
		zap.String("binary", execPath),
		zap.String("profile", profile),
		zap.String("site", site.Host))

	// Phase 1: trigger the redirect chain from the homepage.
	if err := chromedp.Run(browserCtx, chromedp.Navigate(siteURL)); err != nil {
		return nil, fmt.Errorf("navigating to site homepage: %w", err)
	}

	// Phase 2: wait for the chain to settle back on the original domain.
	wait := a.cfg.AuthWait
	if wait <= 0 {
		wait = 90 * time.Second
	}
	settleCtx, cancelSettle := context.WithTimeout(browserCtx, wait)
	defer cancelSettle()
	if err := a.waitForReturn(settleCtx, site.Host); err != nil {
		return nil, err
	}

	// Phase 3: in-page probe of the metadata endpoint.
	status, err := a.probeFromPage(settleCtx, siteURL)
	if err != nil {
		return nil, fmt.Errorf("in-page metadata probe: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: metadata endpoint answered %d", ErrAuthNotConfirmed, status)
	}

	cookies, err := a.harvestCookies(browserCtx, site)
	if err != nil {
		return nil, fmt.Errorf("harvesting session cookies: %w", err)
	}
	a.logger.Info("Browser sign-in confirmed.", zap.Int("cookies", len(cookies)))
	return cookies, nil
}

// allocatorOptions assembles the launch flags. Three of these encode
// historically observed failure modes: the persistent profile (ephemeral
// profiles disable ambient SSO), the ambient-auth feature flag, and the
// identity-provider allow-list (undeclared domains block the cross-domain
// redirect outright).
func (a *Authenticator) allocatorOptions(execPath, profile string) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.ExecPath(execPath),
		chromedp.UserDataDir(profile),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("enable-features", "AmbientAuthenticationInPrivateModesEnabled"),
	}
	if a.cfg.Headless {
		// Full "new" headless shares the desktop binary's network stack,
		// unlike the old minimal headless mode.
		opts = append(opts, chromedp.Flag("headless", "new"), chromedp.Flag("disable-gpu", true))
	}
	if len(a.cfg.IdentityDomains) > 0 {
		allow := strings.Join(a.cfg.IdentityDomains, ",")
		opts = append(opts,
			chromedp.Flag("auth-server-allowlist", allow),
			chromedp.Flag("auth-negotiate-delegate-allowlist", allow),
		)
	}
	return opts
}

// ensureProfileDir resolves the persistent profile directory, creating it if
// needed. Only when no durable location exists does it fall back to a
// temporary directory, which Close deletes.
func (a *Authenticator) ensureProfileDir() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.profileDir != "" {
		return a.profileDir, nil
	}

	dir := a.cfg.ProfileDir
	if dir == "" {
		if home, err := homedir.Dir(); err == nil && home != "" {
			dir = filepath.Join(home, ".cache", "aegis", "browser-profile")
		}
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o700); err == nil {
			a.profileDir = dir
			return dir, nil
		}
	}

	tmp, err := os.MkdirTemp("", "aegis-browser-profile-")
	if err != nil {
		return "", fmt.Errorf("creating browser profile dir: %w", err)
	}
	a.logger.Warn("No persistent profile location available; ambient SSO may be degraded in a fresh profile.",
		zap.String("profile", tmp))
	a.profileDir = tmp
	a.profileIsTemp = true
	return tmp, nil
}

// waitForReturn polls the page location until the redirect chain lands back
// on the original host.
func (a *Authenticator) waitForReturn(ctx context.Context, originalHost string) error {
	ticker := time.NewTicker(locationPollInterval)
	defer ticker.Stop()

	for {
		var loc string
		if err := chromedp.Run(ctx, chromedp.Location(&loc)); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: redirect chain never settled", ErrAuthNotConfirmed)
			}
			return err
		}
		if u, err := url.Parse(loc); err == nil && strings.EqualFold(u.Host, originalHost) {
			return nil
		}
		a.logger.Debug("Waiting for federation redirect chain to settle.", zap.String("location", loc))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: redirect chain never settled (last at %s)", ErrAuthNotConfirmed, loc)
		case <-ticker.C:
		}
	}
}

// probeFromPage fetches the metadata endpoint from inside the page, so the
// request rides the browser's authenticated state.
func (a *Authenticator) probeFromPage(ctx context.Context, siteURL string) (int, error) {
	js := fmt.Sprintf(
		`fetch(%q, {headers: {"Accept": "application/json;odata=verbose"}, credentials: "include"}).then(r => r.status)`,
		strings.TrimRight(siteURL, "/")+"/_api/web")

	var status int
	err := chromedp.Run(ctx, chromedp.Evaluate(js, &status,
		func(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
	return status, err
}

// harvestCookies converts the browser's cookies for the site into net/http form.
func (a *Authenticator) harvestCookies(ctx context.Context, site *url.URL) ([]*http.Cookie, error) {
	var raw []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	cookies := make([]*http.Cookie, 0, len(raw))
	for _, c := range raw {
		if !strings.HasSuffix(site.Hostname(), strings.TrimPrefix(c.Domain, ".")) {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		cookies = append(cookies, hc)
	}
	return cookies, nil
}

// Close deletes temporary profile resources. Persistent profiles are kept so
// ambient SSO survives across runs.
func (a *Authenticator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.profileIsTemp && a.profileDir != "" {
		err := os.RemoveAll(a.profileDir)
		a.profileDir = ""
		a.profileIsTemp = false
		return err
	}
	return nil
}
