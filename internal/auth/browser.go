// File: internal/auth/browser.go
package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// BrowserAuthenticator is the contract the headless fallback engine fulfills:
// drive a real browser through the identity-federation redirect chain and
// hand back the resulting session cookies.
type BrowserAuthenticator interface {
	Authenticate(ctx context.Context, siteURL string) ([]*http.Cookie, error)
	Close() error
}

// browserStrategy adapts the headless engine into the strategy cascade. It is
// always ordered last: spinning up a browser process is the most expensive
// and least transparent path.
type browserStrategy struct {
	runner BrowserAuthenticator
	logger *zap.Logger

	site    *url.URL
	cookies []*http.Cookie
}

func newBrowserStrategy(runner BrowserAuthenticator, logger *zap.Logger) *browserStrategy {
	return &browserStrategy{runner: runner, logger: logger.Named("browser_fallback")}
}

func (b *browserStrategy) Kind() Kind { return KindHeadlessBrowser }

func (b *browserStrategy) Prepare(ctx context.Context, targetURL string) error {
	site, err := url.Parse(targetURL)
	if err != nil {
		return fmt.Errorf("parsing target url: %w", err)
	}
	b.logger.Info("All programmatic strategies exhausted; launching browser sign-in.", zap.String("site", site.Host))

	cookies, err := b.runner.Authenticate(ctx, targetURL)
	if err != nil {
		return fmt.Errorf("browser sign-in: %w", err)
	}
	b.site = site
	b.cookies = cookies
	return nil
}

func (b *browserStrategy) Configure(s *Session) error {
	if b.site == nil || len(b.cookies) == 0 {
		return fmt.Errorf("browser strategy not prepared")
	}
	s.SeedCookies(b.site, b.cookies)
	return nil
}
