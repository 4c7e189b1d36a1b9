package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New("test-secret", time.Hour)
	require.NoError(t, err)
	return m
}

func TestSessionRoundTripThroughCookie(t *testing.T) {
	m := newManager(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	s := m.Load(rec, req)
	assert.Equal(t, "", s.Get("filterFrom"))
	s.Set("filterFrom", "x@a.com")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, m.CookieName(), cookies[0].Name)

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(cookies[0])
	loaded := m.Load(httptest.NewRecorder(), next)
	assert.Equal(t, "x@a.com", loaded.Get("filterFrom"))

	loaded.Delete("filterFrom")
	assert.Equal(t, "", m.Load(httptest.NewRecorder(), next).Get("filterFrom"))
}

func TestReadingDoesNotIssueCookie(t *testing.T) {
	m := newManager(t)
	rec := httptest.NewRecorder()
	s := m.Load(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_ = s.Get("filterFrom")
	s.Delete("filterFrom")
	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, 0, m.Len())
}

func TestTamperedCookieIsIgnored(t *testing.T) {
	m := newManager(t)
	other, err := New("other-secret", time.Hour)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	other.Load(rec, httptest.NewRequest(http.MethodGet, "/", nil)).Set("k", "v")
	forged := rec.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(forged)
	assert.Equal(t, "", m.Load(httptest.NewRecorder(), req).Get("k"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: m.CookieName(), Value: "%%%"})
	assert.Equal(t, "", m.Load(httptest.NewRecorder(), req).Get("k"))
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	m := newManager(t)
	m.Load(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)).Set("k", "v")
	require.Equal(t, 1, m.Len())

	assert.Equal(t, 0, m.Sweep(time.Now()))
	assert.Equal(t, 1, m.Sweep(time.Now().Add(2*time.Hour)))
	assert.Equal(t, 0, m.Len())
}

func TestGeneratedSecretWhenEmpty(t *testing.T) {
	m, err := New("  ", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, m.secret)
	assert.Equal(t, time.Minute, m.MaxAge())
}
