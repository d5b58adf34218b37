// File: internal/auth/ntlm.go
package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Azure/go-ntlmssp"
	"go.uber.org/zap"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/config"
)

// ntlmStrategy is the legacy NTLM challenge/response path for servers that
// reject Kerberos. The handshake is connection-scoped, which is why a failed
// attempt requires a Fresh session rather than a plain retry.
type ntlmStrategy struct {
	authCfg config.AuthConfig
	logger  *zap.Logger
}

func newNTLMStrategy(authCfg config.AuthConfig, logger *zap.Logger) *ntlmStrategy {
	return &ntlmStrategy{authCfg: authCfg, logger: logger.Named("ntlm")}
}

func (n *ntlmStrategy) Kind() Kind { return KindLegacyNegotiate }

func (n *ntlmStrategy) Prepare(ctx context.Context, targetURL string) error {
	if n.authCfg.Username == "" || n.authCfg.Password == "" {
		return fmt.Errorf("ntlm requires explicit username and password")
	}
	return nil
}

func (n *ntlmStrategy) Configure(s *Session) error {
	user := n.authCfg.Username
	if n.authCfg.Domain != "" {
		user = n.authCfg.Domain + `\` + n.authCfg.Username
	}
	pass := n.authCfg.Password

	s.SetTransportWrapper(func(base http.RoundTripper) http.RoundTripper {
		return ntlmssp.Negotiator{RoundTripper: base}
	})
	s.SetDecorator(func(req *http.Request) error {
		// go-ntlmssp picks the credentials up from the basic auth header and
		// replaces it with the NTLM handshake.
		req.SetBasicAuth(user, pass)
		return nil
	})
	return nil
}
