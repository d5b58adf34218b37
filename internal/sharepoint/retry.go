// File: internal/sharepoint/retry.go
package sharepoint

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/config"
)

// retrier executes requests under the connector's retry policy. Two counters
// are kept deliberately separate:
//
//   - fatal attempts: connection-level failures, bounded by MaxRetries, with
//     linear backoff and a fresh session per attempt;
//   - soft retries: 429 backpressure waits (and the session's one-time TLS
//     downgrade), never counted against the fatal budget.
//
// Terminal statuses (401/403/404) are returned to the caller unretried.
type retrier struct {
	logger          *zap.Logger
	maxRetries      int
	retryBackoff    time.Duration
	throttleBackoff time.Duration

	// sleep is swapped out by tests to observe waits without real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func newRetrier(netCfg config.NetworkConfig, logger *zap.Logger) *retrier {
	return &retrier{
		logger:          logger.Named("retry"),
		maxRetries:      netCfg.MaxRetries,
		retryBackoff:    netCfg.RetryBackoff,
		throttleBackoff: netCfg.ThrottleBackoff,
		sleep:           sleepCtx,
	}
}

// execute runs do until a response or the fatal budget is exhausted. refresh
// replaces the degraded session before a fatal retry; diag accumulates
// counters for the caller's diagnostics.
func (r *retrier) execute(ctx context.Context, diag *Diagnostics, do func(context.Context) (*http.Response, error), refresh func() error) (*http.Response, error) {
	fatal := 0
	for {
		diag.RequestsIssued++
		resp, err := do(ctx)

		if err == nil {
			if resp.StatusCode != http.StatusTooManyRequests {
				return resp, nil
			}

			// Throttled. Honor the server's suggested wait; this never
			// consumes the fatal budget.
			wait := retryAfter(resp)
			if wait <= 0 {
				wait = r.throttleBackoff
			}
			drainAndClose(resp)
			diag.SoftRetries++
			diag.ThrottleWaits++
			r.logger.Info("Server throttled the request; backing off.", zap.Duration("wait", wait))
			if serr := r.sleep(ctx, wait); serr != nil {
				return nil, serr
			}
			continue
		}

		// Graceful timeout: a caller deadline yields an error, never a hang.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		category := ClassifyTransportError(err)
		if fatal >= r.maxRetries {
			return nil, fmt.Errorf("request failed after %d attempts (%s: %s): %w",
				fatal+1, category, category.Hint(), err)
		}
		fatal++
		diag.FatalRetries++
		r.logger.Warn("Transport failure; rebuilding session and retrying.",
			zap.Int("attempt", fatal),
			zap.String("category", string(category)),
			zap.Error(err))

		if refresh != nil {
			if rerr := refresh(); rerr != nil {
				return nil, fmt.Errorf("rebuilding session: %w", rerr)
			}
		}
		// Linear backoff between fatal attempts.
		if serr := r.sleep(ctx, time.Duration(fatal)*r.retryBackoff); serr != nil {
			return nil, serr
		}
	}
}

// retryAfter extracts the server's suggested wait from a 429, accepting both
// delta-seconds and HTTP-date forms.
func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if date, err := http.ParseTime(header); err == nil {
		if d := time.Until(date); d > 0 {
			return d
		}
	}
	return 0
}

func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
