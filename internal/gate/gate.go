// Package gate remembers a default sender filter for the email listing and
// makes it explicit in the URL. The redirect decision is a pure function;
// reading and writing the remembered value goes through Values, implemented
// by the session manager and by Cookies.
package gate

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.io/razzkumar/maildev/internal/metrics"
)

const (
	// FilterKey is the listing query parameter carrying the sender filter.
	FilterKey = "from"
	// CookieName is the cookie the filter is remembered in.
	CookieName = "filterFrom"
	// SessionKey is the session entry the filter is remembered in.
	SessionKey = "filterFrom"
	// CookieMaxAge is how long the filter cookie lives.
	CookieMaxAge = 30 * 24 * time.Hour
)

// Values is a key-value view over one place the filter is kept.
type Values interface {
	Get(key string) string
	Set(key, value string)
	Delete(key string)
}

// Redirect reports where a request must be sent so that it carries the
// persisted filter explicitly. It redirects only GET requests under prefix
// that have a persisted value and no non-empty from parameter. Path and
// prefix are in escaped form, so the target keeps the request's encoding.
func Redirect(method, path, prefix string, query url.Values, persisted string) (string, bool) {
	if method != http.MethodGet || !strings.HasPrefix(path, prefix) {
		return "", false
	}
	if persisted == "" || query.Get(FilterKey) != "" {
		return "", false
	}
	next := url.Values{}
	for key, vals := range query {
		next[key] = append([]string(nil), vals...)
	}
	next.Set(FilterKey, persisted)
	return path + "?" + next.Encode(), true
}

// Persisted resolves the default filter, preferring the session over the
// cookie. Either source may be nil.
func Persisted(session, cookies Values) string {
	if session != nil {
		if value := session.Get(SessionKey); value != "" {
			return value
		}
	}
	if cookies != nil {
		return cookies.Get(CookieName)
	}
	return ""
}

// Remember stores the filter in both places.
func Remember(session, cookies Values, from string) {
	if session != nil {
		session.Set(SessionKey, from)
	}
	if cookies != nil {
		cookies.Set(CookieName, from)
	}
}

// Forget clears the filter from both places.
func Forget(session, cookies Values) {
	if session != nil {
		session.Delete(SessionKey)
	}
	if cookies != nil {
		cookies.Delete(CookieName)
	}
}

// SourceFunc returns the session and cookie views for one request. The
// session view is nil when no session facility is configured.
type SourceFunc func(w http.ResponseWriter, r *http.Request) (session, cookies Values)

// Gate redirects listing requests under a path prefix.
type Gate struct {
	prefix        string
	escapedPrefix string
	source        SourceFunc
	logger        *slog.Logger
}

// New returns a gate for requests whose path starts with prefix.
func New(prefix string, source SourceFunc, logger *slog.Logger) *Gate {
	escaped := (&url.URL{Path: prefix}).EscapedPath()
	return &Gate{prefix: prefix, escapedPrefix: escaped, source: source, logger: logger}
}

// Middleware redirects listing requests that lack an explicit filter.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, g.prefix) {
			session, cookies := g.source(w, r)
			if target, ok := Redirect(r.Method, r.URL.EscapedPath(), g.escapedPrefix, r.URL.Query(), Persisted(session, cookies)); ok {
				metrics.FilterRedirects.Inc()
				g.logger.Debug("redirect to persisted filter", "target", target)
				http.Redirect(w, r, target, http.StatusFound)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Cookies implements Values over request and response cookies.
type Cookies struct {
	w      http.ResponseWriter
	r      *http.Request
	maxAge time.Duration
}

// NewCookies returns the cookie view for one request and its response.
func NewCookies(w http.ResponseWriter, r *http.Request, maxAge time.Duration) *Cookies {
	return &Cookies{w: w, r: r, maxAge: maxAge}
}

// Get returns the decoded cookie value, or "" when the cookie is absent.
func (c *Cookies) Get(key string) string {
	cookie, err := c.r.Cookie(key)
	if err != nil {
		return ""
	}
	if value, err := url.PathUnescape(cookie.Value); err == nil {
		return value
	}
	return cookie.Value
}

// Set writes the cookie percent-encoded, with spaces as %20 and a literal
// plus as %2B.
func (c *Cookies) Set(key, value string) {
	http.SetCookie(c.w, &http.Cookie{
		Name:    key,
		Value:   strings.ReplaceAll(url.QueryEscape(value), "+", "%20"),
		Path:    "/",
		MaxAge:  int(c.maxAge.Seconds()),
		Expires: time.Now().Add(c.maxAge),
	})
}

// Delete expires the cookie.
func (c *Cookies) Delete(key string) {
	http.SetCookie(c.w, &http.Cookie{
		Name:   key,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}
