package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/auth"
	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/config"
	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/headless"
	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/sharepoint"
)

// buildRegistry detects local credential material and assembles the strategy
// cascade. The returned cleanup func tears down the browser fallback if one
// was attached.
func buildRegistry(cfg *config.Config, logger *zap.Logger) (*auth.Registry, func()) {
	caps := auth.DetectCapabilities(cfg)
	logger.Debug("Detected credential capabilities",
		zap.Bool("kerberos_config", caps.HasKerberosConfig),
		zap.Bool("ccache", caps.HasCCache),
		zap.Bool("keytab", caps.HasKeytab),
		zap.Bool("password", caps.HasPassword),
		zap.Bool("oauth", caps.HasOAuth),
		zap.String("browser", caps.BrowserPath),
	)

	cleanup := func() {}
	var browser auth.BrowserAuthenticator
	if caps.BrowserPath != "" {
		hb := headless.New(cfg.Browser, logger)
		browser = hb
		cleanup = func() {
			if err := hb.Close(); err != nil {
				logger.Warn("Browser cleanup failed", zap.Error(err))
			}
		}
	}
	return auth.NewRegistry(cfg, caps, browser, logger), cleanup
}

// newConnector authenticates against the configured site and returns a live
// connector. Device-code challenges that outlive the deadline surface as a
// user-facing instruction rather than a raw error chain.
func newConnector(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sharepoint.Connector, func(), error) {
	registry, cleanup := buildRegistry(cfg, logger)

	conn, err := sharepoint.NewConnector(ctx, cfg, registry, logger)
	if err != nil {
		cleanup()
		var pending *auth.PendingChallengeError
		if errors.As(err, &pending) {
			fmt.Fprintf(os.Stderr, "Authentication pending: enter code %s at %s and retry.\n",
				pending.UserCode, pending.VerificationURI)
		}
		return nil, nil, err
	}

	closeAll := func() {
		conn.Close()
		cleanup()
	}
	return conn, closeAll, nil
}

// readURLList loads one URL per line, skipping blanks and # comments.
func readURLList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open url list: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read url list: %w", err)
	}
	return urls, nil
}
