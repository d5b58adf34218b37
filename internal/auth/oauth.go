// File: internal/auth/oauth.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/config"
)

// PendingChallengeError reports a device-code grant that was issued but never
// confirmed out of band. Callers surface the pending challenge rather than a
// generic timeout.
type PendingChallengeError struct {
	UserCode        string
	VerificationURI string
	Err             error
}

func (e *PendingChallengeError) Error() string {
	return fmt.Sprintf("device confirmation pending (code %s at %s): %v", e.UserCode, e.VerificationURI, e.Err)
}

func (e *PendingChallengeError) Unwrap() error { return e.Err }

// oauthStrategy covers both OAuth grants: the confidential client-credentials
// flow when a client secret is configured, otherwise the device-code flow.
type oauthStrategy struct {
	oauthCfg config.OAuthConfig
	logger   *zap.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

func newOAuthStrategy(oauthCfg config.OAuthConfig, logger *zap.Logger) *oauthStrategy {
	return &oauthStrategy{oauthCfg: oauthCfg, logger: logger.Named("oauth")}
}

func (o *oauthStrategy) Kind() Kind { return KindOAuth }

func (o *oauthStrategy) Prepare(ctx context.Context, targetURL string) error {
	o.mu.Lock()
	if o.token != nil && o.token.Valid() {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	var (
		tok *oauth2.Token
		err error
	)
	if o.oauthCfg.ClientSecret != "" {
		tok, err = o.confidentialToken(ctx)
	} else {
		tok, err = o.deviceToken(ctx)
	}
	if err != nil {
		return err
	}

	o.logTokenClaims(tok)
	o.mu.Lock()
	o.token = tok
	o.mu.Unlock()
	return nil
}

func (o *oauthStrategy) confidentialToken(ctx context.Context) (*oauth2.Token, error) {
	cc := clientcredentials.Config{
		ClientID:     o.oauthCfg.ClientID,
		ClientSecret: o.oauthCfg.ClientSecret,
		TokenURL:     o.oauthCfg.TokenURL,
		Scopes:       o.oauthCfg.Scopes,
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("client-credentials grant: %w", err)
	}
	return tok, nil
}

// deviceToken runs the device-code grant. The poll blocks until the user
// confirms in a separate browser session or the context deadline passes; the
// deadline case surfaces the still-pending challenge.
func (o *oauthStrategy) deviceToken(ctx context.Context) (*oauth2.Token, error) {
	cfg := oauth2.Config{
		ClientID: o.oauthCfg.ClientID,
		Scopes:   o.oauthCfg.Scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:      o.oauthCfg.TokenURL,
			DeviceAuthURL: o.oauthCfg.DeviceAuthURL,
		},
	}

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device authorization request: %w", err)
	}
	o.logger.Info("Device confirmation required.",
		zap.String("user_code", da.UserCode),
		zap.String("verification_uri", da.VerificationURI))

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, &PendingChallengeError{
				UserCode:        da.UserCode,
				VerificationURI: da.VerificationURI,
				Err:             err,
			}
		}
		return nil, fmt.Errorf("device token poll: %w", err)
	}
	return tok, nil
}

// logTokenClaims records expiry and identity claims at debug level. The token
// is not verified here; the resource server does that.
func (o *oauthStrategy) logTokenClaims(tok *oauth2.Token) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err != nil {
		return
	}
	fields := []zap.Field{}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		fields = append(fields, zap.Time("expires", exp.Time))
	}
	if upn, ok := claims["upn"].(string); ok {
		fields = append(fields, zap.String("upn", upn))
	}
	o.logger.Debug("Access token acquired.", fields...)
}

func (o *oauthStrategy) Configure(s *Session) error {
	o.mu.Lock()
	tok := o.token
	o.mu.Unlock()
	if tok == nil {
		return fmt.Errorf("oauth strategy not prepared")
	}
	s.SetDecorator(func(req *http.Request) error {
		tok.SetAuthHeader(req)
		return nil
	})
	return nil
}
