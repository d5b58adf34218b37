// File: internal/auth/strategy.go
package auth

import (
	"context"
	"net/http"
)

// Kind identifies a credential strategy. Strategies are ordered by
// transparency and cost, cheapest first.
type Kind string

const (
	// KindNativeNegotiate asserts the OS session identity via SPNEGO/Kerberos
	// without interactive prompts.
	KindNativeNegotiate Kind = "native-negotiate"
	// KindOAuth covers both the device-code grant and the confidential
	// client-credentials grant, depending on configuration.
	KindOAuth Kind = "oauth"
	// KindLegacyNegotiate is the NTLM challenge/response fallback for servers
	// that reject or lack Kerberos.
	KindLegacyNegotiate Kind = "legacy-negotiate"
	// KindHeadlessBrowser drives a real browser engine to complete ambient
	// single-sign-on. Most expensive and least transparent; always last.
	KindHeadlessBrowser Kind = "headless-browser"
	// KindAnonymous sends unauthenticated requests. Used by the link
	// validator for public URLs; never selected by the registry cascade.
	KindAnonymous Kind = "anonymous"
)

// Strategy is one credential acquisition path. The registry iterates an
// ordered list of these and short-circuits on the first that authenticates.
type Strategy interface {
	Kind() Kind

	// Prepare performs the strategy's one-time credential acquisition
	// (Kerberos login, OAuth token fetch, browser sign-in), bounded by ctx.
	// Prepare must return rather than hang when the context expires.
	Prepare(ctx context.Context, targetURL string) error

	// Configure binds the acquired credential to a Session so that every
	// outgoing request carries it.
	Configure(s *Session) error
}

// anonymous is the no-op strategy.
type anonymous struct{}

// Anonymous returns a strategy that attaches no credentials.
func Anonymous() Strategy { return anonymous{} }

func (anonymous) Kind() Kind                                  { return KindAnonymous }
func (anonymous) Prepare(context.Context, string) error       { return nil }
func (anonymous) Configure(*Session) error                    { return nil }

// requestDecorator mutates an outgoing request to attach a credential.
type requestDecorator func(*http.Request) error

// transportWrapper wraps the session transport, for strategies whose
// handshake lives at the connection layer (NTLM).
type transportWrapper func(http.RoundTripper) http.RoundTripper
