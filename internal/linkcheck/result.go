// File: internal/linkcheck/result.go
package linkcheck

// Status is the verdict for one validated URL.
type Status string

const (
	StatusWorking      Status = "WORKING"
	StatusSSLWarning   Status = "SSL_WARNING"
	StatusAuthRequired Status = "AUTH_REQUIRED"
	StatusBroken       Status = "BROKEN"
	StatusTimeout      Status = "TIMEOUT"
	StatusError        Status = "ERROR"
)

// Result is the immutable per-URL validation record.
type Result struct {
	URL        string `json:"url"`
	Status     Status `json:"status"`
	StatusCode int    `json:"status_code,omitempty"`
	// AuthMethod names the credential strategy that produced the verdict.
	AuthMethod string `json:"auth_method,omitempty"`
	// Stage names the cascade stage that reached a definitive verdict.
	Stage  string `json:"stage"`
	Detail string `json:"detail,omitempty"`
}
