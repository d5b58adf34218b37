package sharepoint

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/config"
)

func testRetrier(sleeps *[]time.Duration) *retrier {
	r := newRetrier(config.NetworkConfig{
		MaxRetries:      3,
		RetryBackoff:    2 * time.Second,
		ThrottleBackoff: 5 * time.Second,
	}, zap.NewNop())
	r.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return r
}

func TestRetrierHonorsThrottleWithoutFatalBudget(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var sleeps []time.Duration
	retr := testRetrier(&sleeps)
	diag := &Diagnostics{}

	resp, err := retr.execute(context.Background(), diag,
		func(ctx context.Context) (*http.Response, error) {
			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
			return http.DefaultClient.Do(req)
		}, nil)
	require.NoError(t, err)
	drainAndClose(resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, diag.SoftRetries)
	assert.Equal(t, 2, diag.ThrottleWaits)
	assert.Equal(t, 0, diag.FatalRetries, "throttling must never consume the fatal budget")
	assert.Equal(t, 3, diag.RequestsIssued)
	assert.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second}, sleeps)
}

func TestRetrierFallsBackToConfiguredThrottleWait(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// No Retry-After header.
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var sleeps []time.Duration
	retr := testRetrier(&sleeps)
	diag := &Diagnostics{}

	resp, err := retr.execute(context.Background(), diag,
		func(ctx context.Context) (*http.Response, error) {
			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
			return http.DefaultClient.Do(req)
		}, nil)
	require.NoError(t, err)
	drainAndClose(resp)

	assert.Equal(t, []time.Duration{5 * time.Second}, sleeps)
}

func TestRetrierExhaustsFatalBudgetWithLinearBackoff(t *testing.T) {
	var sleeps []time.Duration
	retr := testRetrier(&sleeps)
	diag := &Diagnostics{}

	transportErr := errors.New("dial tcp 10.0.0.1:443: connect: connection refused")
	refreshes := 0

	_, err := retr.execute(context.Background(), diag,
		func(ctx context.Context) (*http.Response, error) {
			return nil, transportErr
		},
		func() error {
			refreshes++
			return nil
		})
	require.Error(t, err)

	assert.Equal(t, 3, diag.FatalRetries)
	assert.Equal(t, 4, diag.RequestsIssued, "initial attempt plus three retries")
	assert.Equal(t, 3, refreshes, "every fatal retry gets a fresh session")
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}, sleeps)
	assert.Contains(t, err.Error(), string(CategoryConnectionRefused))
}

func TestRetrierReturnsContextErrorOnDeadline(t *testing.T) {
	var sleeps []time.Duration
	retr := testRetrier(&sleeps)
	diag := &Diagnostics{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := retr.execute(ctx, diag,
		func(ctx context.Context) (*http.Response, error) {
			return nil, ctx.Err()
		}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, diag.FatalRetries, "a caller deadline is not a transport failure")
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"delta seconds", "30", 30 * time.Second},
		{"missing", "", 0},
		{"garbage", "soon", 0},
		{"negative", "-5", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tc.header != "" {
				resp.Header.Set("Retry-After", tc.header)
			}
			assert.Equal(t, tc.want, retryAfter(resp))
		})
	}

	t.Run("http date", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{}}
		resp.Header.Set("Retry-After", time.Now().Add(90*time.Second).UTC().Format(http.TimeFormat))
		got := retryAfter(resp)
		assert.InDelta(t, float64(90*time.Second), float64(got), float64(5*time.Second))
	})
}
