package sharepoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureCategory
	}{
		{"nil", nil, CategoryUnknown},
		{"context deadline", context.DeadlineExceeded, CategoryTimeout},
		{"wrapped deadline", fmt.Errorf("Get \"https://x\": %w", context.DeadlineExceeded), CategoryTimeout},
		{"dns error type", &net.DNSError{Err: "no such host", Name: "intranet.corp", IsNotFound: true}, CategoryDNS},
		{"refused", errors.New("dial tcp 10.0.0.1:443: connect: connection refused"), CategoryConnectionRefused},
		{"proxy before tls", errors.New("proxyconnect tcp: tls: first record does not look like a TLS handshake"), CategoryProxy},
		{"unknown authority", errors.New("x509: certificate signed by unknown authority"), CategoryTLS},
		{"reset", errors.New("read tcp 10.0.0.2:54321: read: connection reset by peer"), CategoryReset},
		{"mystery", errors.New("something odd happened"), CategoryUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyTransportError(tc.err))
		})
	}
}

func TestEveryCategoryHasAHint(t *testing.T) {
	categories := []FailureCategory{
		CategoryTLS, CategoryDNS, CategoryConnectionRefused,
		CategoryTimeout, CategoryProxy, CategoryReset, CategoryUnknown,
	}
	for _, c := range categories {
		assert.NotEmpty(t, c.Hint(), string(c))
	}
}
