// File: internal/auth/negotiate.go
package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"

	krb5client "github.com/jcmturner/gokrb5/v8/client"
	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/spnego"
	"go.uber.org/zap"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/config"
)

// negotiateStrategy implements SPNEGO/Kerberos negotiation. Tokens are minted
// preemptively on every request: some servers answer 401 with an empty
// challenge header, which breaks purely reactive negotiation.
type negotiateStrategy struct {
	authCfg config.AuthConfig
	caps    Capabilities
	logger  *zap.Logger

	mu     sync.Mutex
	client *krb5client.Client
}

func newNegotiateStrategy(authCfg config.AuthConfig, caps Capabilities, logger *zap.Logger) *negotiateStrategy {
	return &negotiateStrategy{
		authCfg: authCfg,
		caps:    caps,
		logger:  logger.Named("negotiate"),
	}
}

func (n *negotiateStrategy) Kind() Kind { return KindNativeNegotiate }

// Prepare establishes the Kerberos client. The gokrb5 login is not context
// aware, so it runs in a goroutine and the wait is bounded by ctx.
func (n *negotiateStrategy) Prepare(ctx context.Context, targetURL string) error {
	n.mu.Lock()
	if n.client != nil {
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	done := make(chan error, 1)
	var cl *krb5client.Client
	go func() {
		var err error
		cl, err = n.buildClient()
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("kerberos login: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("kerberos login: %w", ctx.Err())
	}

	n.mu.Lock()
	n.client = cl
	n.mu.Unlock()
	n.logger.Debug("Kerberos client established.")
	return nil
}

// buildClient picks the credential source in fixed priority order:
// ccache, keytab, password.
func (n *negotiateStrategy) buildClient() (*krb5client.Client, error) {
	conf, err := krb5config.Load(krb5ConfPath(n.authCfg))
	if err != nil {
		return nil, fmt.Errorf("loading krb5.conf: %w", err)
	}
	realm := strings.ToUpper(n.authCfg.Domain)
	if realm == "" {
		realm = conf.LibDefaults.DefaultRealm
	}

	switch {
	case n.caps.HasCCache:
		cc, err := credentials.LoadCCache(CCachePath(n.authCfg))
		if err != nil {
			return nil, fmt.Errorf("loading credential cache: %w", err)
		}
		return krb5client.NewFromCCache(cc, conf, krb5client.DisablePAFXFAST(true))
	case n.caps.HasKeytab:
		kt, err := keytab.Load(n.authCfg.KeytabPath)
		if err != nil {
			return nil, fmt.Errorf("loading keytab: %w", err)
		}
		cl := krb5client.NewWithKeytab(n.authCfg.Username, realm, kt, conf, krb5client.DisablePAFXFAST(true))
		return cl, cl.Login()
	case n.caps.HasPassword:
		cl := krb5client.NewWithPassword(n.authCfg.Username, realm, n.authCfg.Password, conf, krb5client.DisablePAFXFAST(true))
		return cl, cl.Login()
	default:
		return nil, fmt.Errorf("no kerberos credential source available")
	}
}

// Configure attaches a preemptive SPNEGO header to every outgoing request.
func (n *negotiateStrategy) Configure(s *Session) error {
	n.mu.Lock()
	cl := n.client
	n.mu.Unlock()
	if cl == nil {
		return fmt.Errorf("negotiate strategy not prepared")
	}
	s.SetDecorator(func(req *http.Request) error {
		// Empty SPN lets gokrb5 derive HTTP/<host> from the request.
		return spnego.SetSPNEGOHeader(cl, req, "")
	})
	return nil
}

// PreemptiveToken builds a Negotiate header value for targetHost without
// waiting for a challenge response.
func (n *negotiateStrategy) PreemptiveToken(ctx context.Context, targetHost string) (string, error) {
	if err := n.Prepare(ctx, ""); err != nil {
		return "", err
	}
	n.mu.Lock()
	cl := n.client
	n.mu.Unlock()

	spn := "HTTP/" + strings.Split(targetHost, ":")[0]
	sc := spnego.SPNEGOClient(cl, spn)
	tok, err := sc.InitSecContext()
	if err != nil {
		return "", fmt.Errorf("initializing SPNEGO context for %s: %w", spn, err)
	}
	raw, err := tok.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshaling SPNEGO token: %w", err)
	}
	return "Negotiate " + base64.StdEncoding.EncodeToString(raw), nil
}
