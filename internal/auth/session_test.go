package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/config"
)

func testNetCfg() config.NetworkConfig {
	return config.NetworkConfig{
		Timeout:         5 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    time.Millisecond,
		ThrottleBackoff: time.Millisecond,
	}
}

// stubStrategy is a controllable strategy for session and registry tests.
type stubStrategy struct {
	kind       Kind
	prepareErr error
	prepared   int32
	header     string
}

func (s *stubStrategy) Kind() Kind { return s.kind }

func (s *stubStrategy) Prepare(ctx context.Context, targetURL string) error {
	atomic.AddInt32(&s.prepared, 1)
	return s.prepareErr
}

func (s *stubStrategy) Configure(sess *Session) error {
	if s.header != "" {
		sess.SetDecorator(func(req *http.Request) error {
			req.Header.Set("X-Test-Credential", s.header)
			return nil
		})
	}
	return nil
}

func TestSessionTLSDowngradeHappensOnce(t *testing.T) {
	// Self-signed certificate; the first request must fail verification.
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sess, err := NewSession(testNetCfg(), Anonymous(), zap.NewNop())
	require.NoError(t, err)
	defer sess.Close()

	assert.False(t, sess.InsecureFallback())

	resp, err := sess.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	drainBody(resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, sess.InsecureFallback())
	assert.Equal(t, 1, sess.Downgrades())

	// A second request must reuse the downgraded transport, not downgrade again.
	resp, err = sess.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	drainBody(resp)
	assert.Equal(t, 1, sess.Downgrades())
}

func TestSessionFreshCarriesDowngrade(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sess, err := NewSession(testNetCfg(), Anonymous(), zap.NewNop())
	require.NoError(t, err)

	resp, err := sess.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	drainBody(resp)
	require.True(t, sess.InsecureFallback())

	fresh, err := sess.Fresh()
	require.NoError(t, err)
	defer fresh.Close()

	// A degraded endpoint does not regain verification by reconnecting,
	// but inheriting the state is not a second downgrade event.
	assert.True(t, fresh.InsecureFallback())
	assert.Equal(t, 0, fresh.Downgrades())

	resp, err = fresh.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	drainBody(resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionAttachesCredentialDecorator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test-Credential") != "token-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sess, err := NewSession(testNetCfg(), &stubStrategy{kind: KindOAuth, header: "token-123"}, zap.NewNop())
	require.NoError(t, err)
	defer sess.Close()

	resp, err := sess.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	drainBody(resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionRoutesThroughExplicitProxy(t *testing.T) {
	proxy := goproxy.NewProxyHttpServer()
	var proxied int32
	proxy.OnRequest().DoFunc(func(req *http.Request, pctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		atomic.AddInt32(&proxied, 1)
		return req, goproxy.NewResponse(req, "application/json", http.StatusOK, `{"d":{"Title":"Intranet"}}`)
	})
	proxySrv := httptest.NewServer(proxy)
	defer proxySrv.Close()

	netCfg := testNetCfg()
	netCfg.ProxyURL = proxySrv.URL

	sess, err := NewSession(netCfg, Anonymous(), zap.NewNop())
	require.NoError(t, err)
	defer sess.Close()

	// The host never resolves; only the proxy can answer this.
	resp, err := sess.Get(context.Background(), "http://repository.internal/_api/web")
	require.NoError(t, err)
	drainBody(resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&proxied))
}

func TestReplayableRequest(t *testing.T) {
	t.Run("bodyless clones trivially", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "http://example.test/", nil)
		require.NoError(t, err)
		clone, err := replayableRequest(req)
		require.NoError(t, err)
		assert.Equal(t, req.URL.String(), clone.URL.String())
	})

	t.Run("replayable body is re-read", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, "http://example.test/", strings.NewReader("payload"))
		require.NoError(t, err)
		clone, err := replayableRequest(req)
		require.NoError(t, err)
		body, err := io.ReadAll(clone.Body)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(body))
	})

	t.Run("non-replayable body is rejected", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, "http://example.test/", strings.NewReader("payload"))
		require.NoError(t, err)
		req.GetBody = nil
		_, err = replayableRequest(req)
		assert.Error(t, err)
	})
}

func TestIsTLSError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unknown authority", x509.UnknownAuthorityError{}, true},
		{"hostname mismatch", x509.HostnameError{Certificate: &x509.Certificate{}, Host: "a"}, true},
		{"record header", tls.RecordHeaderError{Msg: "bad record"}, true},
		{"wrapped x509 text", fmt.Errorf("Get \"https://x\": x509: certificate has expired"), true},
		{"plain refusal", errors.New("dial tcp: connection refused"), false},
		{"deadline", context.DeadlineExceeded, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTLSError(tc.err))
		})
	}
}

func drainBody(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
