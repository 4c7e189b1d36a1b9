package gate

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.io/razzkumar/maildev/internal/metrics"
)

type memValues map[string]string

func (m memValues) Get(key string) string { return m[key] }
func (m memValues) Set(key, value string) { m[key] = value }
func (m memValues) Delete(key string) { delete(m, key) }

func TestRedirectDecision(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		path      string
		query     url.Values
		persisted string
		target    string
		redirect  bool
	}{
		{name: "listing without filter", method: http.MethodGet, path: "/email", query: url.Values{}, persisted: "x@a.com", target: "/email?from=x%40a.com", redirect: true},
		{name: "keeps other params", method: http.MethodGet, path: "/email", query: url.Values{"skip": {"2"}}, persisted: "x@a.com", target: "/email?from=x%40a.com&skip=2", redirect: true},
		{name: "sub path of listing", method: http.MethodGet, path: "/email/abc", query: url.Values{}, persisted: "x@a.com", target: "/email/abc?from=x%40a.com", redirect: true},
		{name: "escaped path kept", method: http.MethodGet, path: "/email/abc/attachment/what%3F%23.png", query: url.Values{}, persisted: "x@a.com", target: "/email/abc/attachment/what%3F%23.png?from=x%40a.com", redirect: true},
		{name: "empty from counts as absent", method: http.MethodGet, path: "/email", query: url.Values{"from": {""}}, persisted: "x@a.com", target: "/email?from=x%40a.com", redirect: true},
		{name: "explicit from", method: http.MethodGet, path: "/email", query: url.Values{"from": {"y@b.com"}}, persisted: "x@a.com"},
		{name: "nothing persisted", method: http.MethodGet, path: "/email", query: url.Values{}},
		{name: "not a GET", method: http.MethodDelete, path: "/email/all", query: url.Values{}, persisted: "x@a.com"},
		{name: "outside listing prefix", method: http.MethodGet, path: "/config", query: url.Values{}, persisted: "x@a.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, ok := Redirect(tt.method, tt.path, "/email", tt.query, tt.persisted)
			assert.Equal(t, tt.redirect, ok)
			assert.Equal(t, tt.target, target)
		})
	}
}

func TestRedirectDoesNotMutateQuery(t *testing.T) {
	query := url.Values{"skip": {"1"}}
	_, ok := Redirect(http.MethodGet, "/email", "/email", query, "x@a.com")
	require.True(t, ok)
	assert.Equal(t, url.Values{"skip": {"1"}}, query)
}

func TestPersistedPrefersSession(t *testing.T) {
	session := memValues{SessionKey: "session@a.com"}
	cookies := memValues{CookieName: "cookie@a.com"}

	assert.Equal(t, "session@a.com", Persisted(session, cookies))
	assert.Equal(t, "cookie@a.com", Persisted(memValues{}, cookies))
	assert.Equal(t, "cookie@a.com", Persisted(nil, cookies))
	assert.Equal(t, "", Persisted(nil, nil))
}

func TestRememberAndForget(t *testing.T) {
	session, cookies := memValues{}, memValues{}
	Remember(session, cookies, "x@a.com")
	assert.Equal(t, "x@a.com", session[SessionKey])
	assert.Equal(t, "x@a.com", cookies[CookieName])

	Forget(session, cookies)
	assert.Equal(t, "", Persisted(session, cookies))

	Remember(nil, cookies, "y@b.com")
	assert.Equal(t, "y@b.com", Persisted(nil, cookies))
}

func TestMiddlewareRedirectsFromCookie(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := New("/email", func(w http.ResponseWriter, r *http.Request) (Values, Values) {
		return nil, NewCookies(w, r, CookieMaxAge)
	}, logger)

	called := false
	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	before := testutil.ToFloat64(metrics.FilterRedirects)
	req := httptest.NewRequest(http.MethodGet, "/email?skip=1", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: url.QueryEscape("x+tag@a.com")})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/email?from=x%2Btag%40a.com&skip=1", rec.Header().Get("Location"))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.FilterRedirects))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/email", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCookiesValues(t *testing.T) {
	rec := httptest.NewRecorder()
	c := NewCookies(rec, httptest.NewRequest(http.MethodPost, "/", nil), CookieMaxAge)
	c.Set(CookieName, "x@a.com")
	c.Delete("other")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, "x%40a.com", cookies[0].Value)
	assert.Equal(t, int(CookieMaxAge.Seconds()), cookies[0].MaxAge)
	assert.Equal(t, -1, cookies[1].MaxAge)
}

func TestMiddlewareKeepsEscapedPath(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := New("/email", func(w http.ResponseWriter, r *http.Request) (Values, Values) {
		return nil, NewCookies(w, r, CookieMaxAge)
	}, logger)
	handler := g.Middleware(http.NotFoundHandler())

	tests := []struct {
		path   string
		target string
	}{
		{path: "/email/abc/attachment/what%3F%23.png", target: "/email/abc/attachment/what%3F%23.png?from=x%40a.com"},
		{path: "/email/abc/attachment/my%20logo.png", target: "/email/abc/attachment/my%20logo.png?from=x%40a.com"},
		{path: "/email/abc/attachment/100%25.png", target: "/email/abc/attachment/100%25.png?from=x%40a.com"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.AddCookie(&http.Cookie{Name: CookieName, Value: "x%40a.com"})
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, tt.target, rec.Header().Get("Location"))
		})
	}
}

func TestCookiesDecodeLikeURIComponent(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		value string
	}{
		{name: "literal plus", raw: "a+b@x.com", value: "a+b@x.com"},
		{name: "encoded plus", raw: "a%2Bb%40x.com", value: "a+b@x.com"},
		{name: "encoded space", raw: "a%20b", value: "a b"},
		{name: "invalid escape kept", raw: "100%zz", value: "100%zz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: CookieName, Value: tt.raw})
			c := NewCookies(httptest.NewRecorder(), req, CookieMaxAge)
			assert.Equal(t, tt.value, c.Get(CookieName))
		})
	}
}

func TestCookiesRoundTrip(t *testing.T) {
	for _, value := range []string{"x@a.com", "a+b@x.com", " spaced name ", "100%"} {
		rec := httptest.NewRecorder()
		NewCookies(rec, httptest.NewRequest(http.MethodPost, "/", nil), CookieMaxAge).Set(CookieName, value)
		written := rec.Result().Cookies()
		require.Len(t, written, 1)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: written[0].Value})
		assert.Equal(t, value, NewCookies(httptest.NewRecorder(), req, CookieMaxAge).Get(CookieName), value)
	}
}
