// File: internal/linkcheck/validator.go
package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/auth"
	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/config"
)

// loginURLPattern matches identity-provider and login-page URLs. A document
// link whose final resolved URL matches this almost certainly bounced through
// a federation redirect.
var loginURLPattern = regexp.MustCompile(`(?i)(login|signin|sign-in|sign_in|authorize|adfs|/sts/|okta|microsoftonline|_layouts/15/authenticate|wsignin)`)

const maxLoginSniffBytes = 64 * 1024

// Validator runs the stateless per-URL validation cascade against the same
// identity provider, for callers that do not hold a live connector. Each
// stage terminates early on a definitive verdict or falls through on an
// inconclusive signal.
type Validator struct {
	cfg      *config.Config
	registry *auth.Registry
	logger   *zap.Logger
}

func NewValidator(cfg *config.Config, registry *auth.Registry, logger *zap.Logger) *Validator {
	return &Validator{cfg: cfg, registry: registry, logger: logger.Named("linkcheck")}
}

// Validate classifies one URL. Every call builds fresh sessions; nothing is
// shared across URLs.
func (v *Validator) Validate(ctx context.Context, rawURL string) Result {
	session, err := v.sessionFor(ctx, rawURL)
	if err != nil {
		return v.escalate(ctx, rawURL, Result{URL: rawURL})
	}
	defer session.Close()
	method := string(session.Strategy())

	// Stage 1: HEAD. Cheap, but many servers answer it dishonestly; the
	// listed statuses mean "retry with GET", not "broken".
	if res, definitive := v.headStage(ctx, session, rawURL, method); definitive {
		return res
	}

	// Stage 2: GET with content heuristics.
	res, definitive := v.getStage(ctx, session, rawURL, method)
	if definitive {
		return res
	}

	// Stage 3: site-level root probe over the full cascade, browser included.
	return v.escalate(ctx, rawURL, res)
}

// sessionFor prepares the cheapest available programmatic strategy for this
// URL, falling back to an anonymous session when none prepares.
func (v *Validator) sessionFor(ctx context.Context, rawURL string) (*auth.Session, error) {
	for _, strat := range v.registry.SelectStrategies() {
		if strat.Kind() == auth.KindHeadlessBrowser {
			continue
		}
		if err := strat.Prepare(ctx, rawURL); err != nil {
			v.logger.Debug("Strategy unavailable for link validation.",
				zap.String("strategy", string(strat.Kind())), zap.Error(err))
			continue
		}
		return auth.NewSession(v.cfg.Network, strat, v.logger)
	}
	return auth.NewSession(v.cfg.Network, auth.Anonymous(), v.logger)
}

func (v *Validator) headStage(ctx context.Context, session *auth.Session, rawURL, method string) (Result, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return Result{URL: rawURL, Status: StatusError, Stage: "head", Detail: err.Error()}, true
	}

	resp, err := session.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Result{URL: rawURL, Status: StatusTimeout, Stage: "head", AuthMethod: method, Detail: err.Error()}, true
		}
		// Transport trouble on HEAD is inconclusive; GET decides.
		return Result{}, false
	}
	drain(resp)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// A 2xx that landed on a different, login-looking URL is not an
		// answer; GET inspects the page.
		if resp.Request != nil && resp.Request.URL != nil {
			finalURL := resp.Request.URL.String()
			if finalURL != rawURL && loginURLPattern.MatchString(finalURL) {
				return Result{}, false
			}
		}
		return v.verdictWorking(session, rawURL, resp.StatusCode, method, "head"), true
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return Result{URL: rawURL, Status: StatusBroken, StatusCode: resp.StatusCode, AuthMethod: method, Stage: "head"}, true
	default:
		// 401/403/405/501 and anything else: retry with GET.
		return Result{}, false
	}
}

func (v *Validator) getStage(ctx context.Context, session *auth.Session, rawURL, method string) (Result, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{URL: rawURL, Status: StatusError, Stage: "get", Detail: err.Error()}, true
	}

	resp, err := session.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Result{URL: rawURL, Status: StatusTimeout, Stage: "get", AuthMethod: method, Detail: err.Error()}, true
		}
		return Result{URL: rawURL, Status: StatusError, Stage: "get", AuthMethod: method, Detail: err.Error()}, true
	}
	defer drain(resp)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		contentType := resp.Header.Get("Content-Type")
		finalURL := rawURL
		if resp.Request != nil && resp.Request.URL != nil {
			finalURL = resp.Request.URL.String()
		}

		// A document-extension URL answering with HTML is almost certainly a
		// login redirect, whatever the status code says.
		if v.isDocumentURL(rawURL) && strings.Contains(contentType, "text/html") {
			return Result{URL: rawURL, Status: StatusAuthRequired, StatusCode: resp.StatusCode, AuthMethod: method,
				Stage: "get", Detail: fmt.Sprintf("document link answered %s", contentType)}, true
		}
		if loginURLPattern.MatchString(finalURL) && finalURL != rawURL {
			return Result{URL: rawURL, Status: StatusAuthRequired, StatusCode: resp.StatusCode, AuthMethod: method,
				Stage: "get", Detail: "resolved to login page " + finalURL}, true
		}
		if strings.Contains(contentType, "text/html") && looksLikeLoginPage(resp.Body) {
			return Result{URL: rawURL, Status: StatusAuthRequired, StatusCode: resp.StatusCode, AuthMethod: method,
				Stage: "get", Detail: "page content resembles a sign-in form"}, true
		}
		return v.verdictWorking(session, rawURL, resp.StatusCode, method, "get"), true

	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return Result{URL: rawURL, Status: StatusBroken, StatusCode: resp.StatusCode, AuthMethod: method, Stage: "get"}, true

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Inconclusive: the root probe decides whether auth works at all.
		return Result{URL: rawURL, Status: StatusAuthRequired, StatusCode: resp.StatusCode, AuthMethod: method, Stage: "get"}, false

	case resp.StatusCode >= 500:
		return Result{URL: rawURL, Status: StatusError, StatusCode: resp.StatusCode, AuthMethod: method, Stage: "get"}, true

	default:
		return Result{URL: rawURL, Status: StatusError, StatusCode: resp.StatusCode, AuthMethod: method, Stage: "get"}, false
	}
}

// escalate is the last-resort stage: authenticate against the link's site
// root with the full strategy cascade and report site-level auth state.
func (v *Validator) escalate(ctx context.Context, rawURL string, prior Result) Result {
	origin, err := siteOrigin(rawURL)
	if err != nil {
		prior.URL = rawURL
		if prior.Status == "" {
			prior.Status = StatusError
			prior.Detail = err.Error()
		}
		prior.Stage = "root-probe"
		return prior
	}

	session, err := v.registry.Authenticate(ctx, origin)
	if err != nil {
		var pending *auth.PendingChallengeError
		if errors.As(err, &pending) {
			return Result{URL: rawURL, Status: StatusAuthRequired, Stage: "root-probe",
				Detail: fmt.Sprintf("confirmation pending: code %s at %s", pending.UserCode, pending.VerificationURI)}
		}
		if isTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
			return Result{URL: rawURL, Status: StatusTimeout, Stage: "root-probe", Detail: err.Error()}
		}
		return Result{URL: rawURL, Status: StatusAuthRequired, Stage: "root-probe", Detail: err.Error()}
	}
	defer session.Close()

	// The site accepts our identity, yet the link itself did not resolve:
	// item-level permissions or an interactive-only resource.
	status := StatusAuthRequired
	if session.InsecureFallback() {
		status = StatusSSLWarning
	}
	return Result{URL: rawURL, Status: status, StatusCode: prior.StatusCode,
		AuthMethod: string(session.Strategy()), Stage: "root-probe",
		Detail: "site-level authentication succeeded; link requires additional permissions"}
}

func (v *Validator) verdictWorking(session *auth.Session, rawURL string, code int, method, stage string) Result {
	status := StatusWorking
	detail := ""
	if session.InsecureFallback() {
		status = StatusSSLWarning
		detail = "reachable only with TLS verification disabled"
	}
	return Result{URL: rawURL, Status: status, StatusCode: code, AuthMethod: method, Stage: stage, Detail: detail}
}

// isDocumentURL checks the URL path against the configured extension allow-list.
func (v *Validator) isDocumentURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, allowed := range v.cfg.Site.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// looksLikeLoginPage sniffs an HTML body for a sign-in form.
func looksLikeLoginPage(body io.Reader) bool {
	doc, err := html.Parse(io.LimitReader(body, maxLoginSniffBytes))
	if err != nil {
		return false
	}
	var found bool
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && n.Data == "input" {
			for _, attr := range n.Attr {
				if attr.Key == "type" && strings.EqualFold(attr.Val, "password") {
					found = true
					return
				}
			}
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title := strings.ToLower(n.FirstChild.Data)
			if strings.Contains(title, "sign in") || strings.Contains(title, "log in") {
				found = true
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return found
}

// siteOrigin derives the probable site root from an arbitrary link: scheme,
// host, and up to the first two path segments.
func siteOrigin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("unparseable url %q", rawURL)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	origin := u.Scheme + "://" + u.Host
	if len(segments) >= 2 && segments[0] != "" {
		origin += "/" + segments[0] + "/" + segments[1]
	}
	return origin, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "Client.Timeout exceeded")
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
