// File: internal/auth/session.go
package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/config"
)

// Session wraps one HTTP client with exactly one bound credential strategy
// and a TLS-verification flag. Requests are executed one at a time; a Session
// is not shared across goroutines.
//
// TLS handling: verification starts on. On the first TLS/certificate error the
// Session disables verification, logs the insecure fallback once, and retries
// the same request. The downgrade happens at most once and never reverts
// within the Session's lifetime, and it does not consume the caller's
// fatal-retry budget.
type Session struct {
	id       string
	strategy Strategy
	logger   *zap.Logger
	netCfg   config.NetworkConfig
	created  time.Time

	client *http.Client
	jar    http.CookieJar

	decorate requestDecorator
	wrap     transportWrapper

	mu               sync.Mutex
	sslVerify        bool
	insecureFallback bool
	downgrades       int
}

// NewSession constructs a Session bound to the given strategy. The strategy
// must already be Prepared; Configure is invoked here.
func NewSession(netCfg config.NetworkConfig, strategy Strategy, logger *zap.Logger) (*Session, error) {
	if strategy == nil {
		strategy = Anonymous()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	id := uuid.New().String()
	s := &Session{
		id:        id,
		strategy:  strategy,
		logger:    logger.Named("session").With(zap.String("session_id", id[:8]), zap.String("strategy", string(strategy.Kind()))),
		netCfg:    netCfg,
		created:   time.Now(),
		jar:       jar,
		sslVerify: true,
	}

	if err := strategy.Configure(s); err != nil {
		return nil, fmt.Errorf("binding %s credentials: %w", strategy.Kind(), err)
	}
	s.rebuildClient()
	return s, nil
}

// SetDecorator installs the per-request credential decorator. Called by
// Strategy.Configure implementations.
func (s *Session) SetDecorator(d requestDecorator) { s.decorate = d }

// SetTransportWrapper installs a transport-layer credential wrapper. Called by
// Strategy.Configure implementations.
func (s *Session) SetTransportWrapper(w transportWrapper) { s.wrap = w }

// SeedCookies places externally obtained cookies (browser sign-in) into the
// session jar for the given site.
func (s *Session) SeedCookies(site *url.URL, cookies []*http.Cookie) {
	s.jar.SetCookies(site, cookies)
}

// Strategy returns the kind of the bound credential strategy.
func (s *Session) Strategy() Kind { return s.strategy.Kind() }

// InsecureFallback reports whether TLS verification was downgraded. Callers
// surface this as an audit warning.
func (s *Session) InsecureFallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insecureFallback
}

// rebuildClient constructs the HTTP client from the current TLS state.
func (s *Session) rebuildClient() {
	proxy := http.ProxyFromEnvironment
	if s.netCfg.ProxyURL != "" {
		if proxyURL, err := url.Parse(s.netCfg.ProxyURL); err == nil {
			proxy = http.ProxyURL(proxyURL)
		} else {
			s.logger.Warn("Ignoring unparseable proxy URL.", zap.String("proxy_url", s.netCfg.ProxyURL))
		}
	}

	transport := &http.Transport{
		Proxy: proxy,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: !s.sslVerify},
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       60 * time.Second,
		ExpectContinueTimeout: 2 * time.Second,
	}

	var rt http.RoundTripper = transport
	if s.wrap != nil {
		rt = s.wrap(transport)
	}

	s.client = &http.Client{
		Transport: rt,
		Jar:       s.jar,
		Timeout:   s.netCfg.Timeout,
	}
}

// Do executes one request, attaching the bound credential. On the first TLS
// error it downgrades verification and retries the same request once.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	if s.decorate != nil {
		if err := s.decorate(req); err != nil {
			return nil, fmt.Errorf("attaching %s credentials: %w", s.strategy.Kind(), err)
		}
	}

	resp, err := s.client.Do(req)
	if err == nil || !IsTLSError(err) {
		return resp, err
	}

	if !s.downgradeTLS() {
		// Already downgraded once; a further TLS error is a real failure.
		return nil, err
	}

	retry, rerr := replayableRequest(req)
	if rerr != nil {
		return nil, rerr
	}
	return s.client.Do(retry)
}

// Get issues a GET with the repository's JSON Accept header.
func (s *Session) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json;odata=verbose")
	return s.Do(req)
}

// downgradeTLS flips verification off exactly once. Returns false when the
// Session had already downgraded.
func (s *Session) downgradeTLS() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sslVerify {
		return false
	}
	s.sslVerify = false
	s.insecureFallback = true
	s.downgrades++
	s.logger.Warn("TLS verification failed; continuing without certificate verification for this session.")
	s.rebuildClient()
	return true
}

// Downgrades returns how many downgrade events occurred (0 or 1).
func (s *Session) Downgrades() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downgrades
}

// Fresh constructs an entirely new session: new transport, new cookie jar,
// reinitialized credential binding. Required because native Negotiate/NTLM
// state is connection-scoped and cannot be salvaged after a failed attempt.
// The TLS downgrade, once taken, carries over: a degraded endpoint does not
// regain verification by way of a reconnect.
func (s *Session) Fresh() (*Session, error) {
	next, err := NewSession(s.netCfg, s.strategy, s.logger)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	downgraded := s.insecureFallback
	s.mu.Unlock()
	if downgraded {
		// Inherited state, not a new downgrade event: no warning, no
		// counter increment.
		next.mu.Lock()
		next.sslVerify = false
		next.insecureFallback = true
		next.rebuildClient()
		next.mu.Unlock()
	}
	s.Close()
	return next, nil
}

// Close releases idle connections. The Session must not be used afterwards.
func (s *Session) Close() {
	if t, ok := s.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	s.client.CloseIdleConnections()
}

// replayableRequest clones a request for re-execution. Bodyless requests
// clone trivially; bodied requests need GetBody.
func replayableRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("cannot replay request with non-replayable body")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("replaying request body: %w", err)
	}
	clone.Body = body
	return clone, nil
}

// IsTLSError reports whether err stems from certificate or TLS negotiation
// failure, as opposed to an ordinary transport error.
func IsTLSError(err error) bool {
	if err == nil {
		return false
	}
	var (
		unknownAuthority x509.UnknownAuthorityError
		hostnameErr      x509.HostnameError
		certInvalid      x509.CertificateInvalidError
		recordHeader     tls.RecordHeaderError
	)
	if errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) ||
		errors.As(err, &certInvalid) || errors.As(err, &recordHeader) {
		return true
	}
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "tls:") ||
		strings.Contains(msg, "x509:") ||
		strings.Contains(msg, "certificate")
}
