// File: internal/auth/errors.go
package auth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAuthRequired marks a definitive 401/403 after credential attachment.
// It is terminal for the strategy that produced it; the cascade moves on.
var ErrAuthRequired = errors.New("authentication required")

// ErrNoStrategies means the capability snapshot left nothing to try.
var ErrNoStrategies = errors.New("no credential strategies available on this host")

// StrategyAttempt records one strategy's terminal failure inside a cascade.
type StrategyAttempt struct {
	Kind Kind
	Err  error
}

// CascadeError aggregates every strategy attempted and its individual
// terminal reason. The last failure alone is never a faithful summary.
type CascadeError struct {
	Attempts []StrategyAttempt
}

func (e *CascadeError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("all %d credential strategies failed:", len(e.Attempts)))
	for _, a := range e.Attempts {
		b.WriteString(fmt.Sprintf(" [%s: %v]", a.Kind, a.Err))
	}
	return b.String()
}

// Unwrap exposes the individual attempt errors to errors.Is/As.
func (e *CascadeError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a.Err
	}
	return errs
}
