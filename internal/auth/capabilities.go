// File: internal/auth/capabilities.go
package auth

import (
	"os"
	"runtime"
	"strings"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/config"
	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/headless"
)

// Capabilities is a typed snapshot of what the current host can do. It is
// computed once at startup and injected into the registry; nothing re-probes
// the platform at call sites.
type Capabilities struct {
	GOOS string

	// HasKerberosConfig reports a readable krb5.conf.
	HasKerberosConfig bool
	// HasCCache reports a usable credential cache (config or $KRB5CCNAME).
	HasCCache bool
	// HasKeytab reports a readable keytab file.
	HasKeytab bool

	// HasPassword reports explicit username/password credentials.
	HasPassword bool
	// HasOAuth reports a configured OAuth client.
	HasOAuth bool

	// BrowserPath is the resolved browser binary for the headless fallback,
	// empty when no suitable binary exists on this host.
	BrowserPath string
}

// NativeCapable reports whether any OS-native negotiation strategy can run.
func (c Capabilities) NativeCapable() bool {
	return c.HasKerberosConfig && (c.HasCCache || c.HasKeytab || c.HasPassword)
}

// DetectCapabilities probes the platform exactly once. Callers hold on to the
// snapshot for the life of the process.
func DetectCapabilities(cfg *config.Config) Capabilities {
	caps := Capabilities{GOOS: runtime.GOOS}

	caps.HasKerberosConfig = fileReadable(krb5ConfPath(cfg.Auth))
	caps.HasCCache = fileReadable(CCachePath(cfg.Auth))
	caps.HasKeytab = cfg.Auth.KeytabPath != "" && fileReadable(cfg.Auth.KeytabPath)
	caps.HasPassword = cfg.Auth.Username != "" && cfg.Auth.Password != ""
	caps.HasOAuth = cfg.Auth.OAuth.ClientID != "" && cfg.Auth.OAuth.TokenURL != ""
	caps.BrowserPath = headless.LocateBinary(cfg.Browser.Channels)

	return caps
}

// krb5ConfPath resolves the Kerberos configuration file location.
func krb5ConfPath(a config.AuthConfig) string {
	if a.Krb5ConfPath != "" {
		return a.Krb5ConfPath
	}
	if p := os.Getenv("KRB5_CONFIG"); p != "" {
		return p
	}
	return "/etc/krb5.conf"
}

// CCachePath resolves the credential cache location, honoring $KRB5CCNAME.
func CCachePath(a config.AuthConfig) string {
	if a.CCachePath != "" {
		return a.CCachePath
	}
	cc := os.Getenv("KRB5CCNAME")
	return strings.TrimPrefix(cc, "FILE:")
}

func fileReadable(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
