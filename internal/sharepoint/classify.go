// File: internal/sharepoint/classify.go
package sharepoint

import (
	"context"
	"errors"
	"net"
	"strings"
)

// FailureCategory buckets a transport error for diagnostics. Classification
// feeds the operator-facing message only; it never alters retry policy.
type FailureCategory string

const (
	CategoryTLS               FailureCategory = "tls"
	CategoryDNS               FailureCategory = "dns"
	CategoryConnectionRefused FailureCategory = "connection-refused"
	CategoryTimeout           FailureCategory = "timeout"
	CategoryProxy             FailureCategory = "proxy"
	CategoryReset             FailureCategory = "reset"
	CategoryUnknown           FailureCategory = "unknown"
)

// ClassifyTransportError categorizes err from its text and wrapped types.
func ClassifyTransportError(err error) FailureCategory {
	if err == nil {
		return CategoryUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "proxyconnect") || strings.Contains(msg, "proxy"):
		return CategoryProxy
	case strings.Contains(msg, "tls") || strings.Contains(msg, "certificate") || strings.Contains(msg, "x509"):
		return CategoryTLS
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "dns"):
		return CategoryDNS
	case strings.Contains(msg, "connection refused"):
		return CategoryConnectionRefused
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return CategoryTimeout
	case strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe") || strings.Contains(msg, "eof"):
		return CategoryReset
	default:
		return CategoryUnknown
	}
}

// Hint returns the operator-facing explanation for a category.
func (c FailureCategory) Hint() string {
	switch c {
	case CategoryTLS:
		return "TLS/certificate failure; the corporate network likely intercepts SSL"
	case CategoryDNS:
		return "hostname did not resolve; check the site URL and VPN/DNS settings"
	case CategoryConnectionRefused:
		return "connection refused; the server or an intermediate firewall rejected the connection"
	case CategoryTimeout:
		return "the request timed out; the server may be throttling or the network is slow"
	case CategoryProxy:
		return "the corporate proxy rejected or dropped the connection"
	case CategoryReset:
		return "the connection was reset mid-request; a proxy or load balancer may be interfering"
	default:
		return "unrecognized transport failure"
	}
}
