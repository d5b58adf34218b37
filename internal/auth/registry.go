// File: internal/auth/registry.go
package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/config"
)

// Registry enumerates the credential strategies available on this host, in
// priority order, and runs the authentication cascade against a site.
type Registry struct {
	cfg    *config.Config
	caps   Capabilities
	logger *zap.Logger

	strategies []Strategy
	negotiate  *negotiateStrategy
}

// NewRegistry builds the strategy list from the capability snapshot. The
// browser runner is injected so tests can substitute a fake engine; pass nil
// to disable the headless fallback regardless of capabilities.
func NewRegistry(cfg *config.Config, caps Capabilities, browser BrowserAuthenticator, logger *zap.Logger) *Registry {
	r := &Registry{
		cfg:    cfg,
		caps:   caps,
		logger: logger.Named("auth_registry"),
	}

	// Fixed priority order, cheapest and most transparent first. Hosts
	// without native credential material skip OS-native negotiation.
	if caps.NativeCapable() {
		r.negotiate = newNegotiateStrategy(cfg.Auth, caps, logger)
		r.strategies = append(r.strategies, r.negotiate)
	}
	if caps.HasOAuth {
		r.strategies = append(r.strategies, newOAuthStrategy(cfg.Auth.OAuth, logger))
	}
	if caps.HasPassword {
		r.strategies = append(r.strategies, newNTLMStrategy(cfg.Auth, logger))
	}
	// HeadlessBrowser always goes last: process spin-up is the most expensive
	// path and the least transparent to the user.
	if browser != nil && caps.BrowserPath != "" {
		r.strategies = append(r.strategies, newBrowserStrategy(browser, logger))
	}

	kinds := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		kinds[i] = string(s.Kind())
	}
	r.logger.Info("Credential strategies selected.", zap.Strings("order", kinds))
	return r
}

// SelectStrategies returns the ordered strategy list.
func (r *Registry) SelectStrategies() []Strategy {
	out := make([]Strategy, len(r.strategies))
	copy(out, r.strategies)
	return out
}

// GeneratePreemptiveToken mints a Negotiate token for targetHost without
// waiting for a challenge response. Returns "" when no native strategy is
// available.
func (r *Registry) GeneratePreemptiveToken(ctx context.Context, targetHost string) (string, error) {
	if r.negotiate == nil {
		return "", nil
	}
	return r.negotiate.PreemptiveToken(ctx, targetHost)
}

// Authenticate runs the full cascade, including the browser fallback, and
// returns the first Session that passes the site's metadata probe.
func (r *Registry) Authenticate(ctx context.Context, siteURL string) (*Session, error) {
	return r.Establish(ctx, siteURL, r.SelectStrategies())
}

// Establish runs the cascade over an explicit strategy list, short-circuiting
// on the first success. On exhaustion the returned CascadeError enumerates
// every strategy attempted with its terminal reason.
func (r *Registry) Establish(ctx context.Context, siteURL string, strategies []Strategy) (*Session, error) {
	if len(strategies) == 0 {
		return nil, ErrNoStrategies
	}

	cascade := &CascadeError{}
	for _, strat := range strategies {
		if err := ctx.Err(); err != nil {
			cascade.Attempts = append(cascade.Attempts, StrategyAttempt{Kind: strat.Kind(), Err: err})
			break
		}

		if err := strat.Prepare(ctx, siteURL); err != nil {
			r.logger.Warn("Strategy preparation failed.", zap.String("strategy", string(strat.Kind())), zap.Error(err))
			cascade.Attempts = append(cascade.Attempts, StrategyAttempt{Kind: strat.Kind(), Err: err})
			continue
		}

		session, err := NewSession(r.cfg.Network, strat, r.logger)
		if err != nil {
			cascade.Attempts = append(cascade.Attempts, StrategyAttempt{Kind: strat.Kind(), Err: err})
			continue
		}

		if err := r.probe(ctx, session, siteURL); err != nil {
			r.logger.Warn("Strategy probe failed.", zap.String("strategy", string(strat.Kind())), zap.Error(err))
			cascade.Attempts = append(cascade.Attempts, StrategyAttempt{Kind: strat.Kind(), Err: err})
			session.Close()
			continue
		}

		r.logger.Info("Authenticated.", zap.String("strategy", string(strat.Kind())))
		return session, nil
	}

	return nil, cascade
}

// probe confirms the session credential against the site metadata endpoint.
func (r *Registry) probe(ctx context.Context, s *Session, siteURL string) error {
	resp, err := s.Get(ctx, siteURL+"/_api/web")
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", ErrAuthRequired, resp.StatusCode)
	default:
		return fmt.Errorf("unexpected probe status %d", resp.StatusCode)
	}
}
