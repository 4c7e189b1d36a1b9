package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	cookieName = "maildev.sid"
)

// Manager keeps ephemeral per-browser values in memory. Browsers hold only a
// signed session id; values are lost when the process restarts.
type Manager struct {
	secret []byte
	maxAge time.Duration

	mu       sync.RWMutex
	sessions map[string]*entry
}

type entry struct {
	values  map[string]string
	touched time.Time
}

func New(secret string, maxAge time.Duration) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		generated := make([]byte, 32)
		if _, err := rand.Read(generated); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		secret = base64.RawURLEncoding.EncodeToString(generated)
	}
	return &Manager{
		secret:   []byte(secret),
		maxAge:   maxAge,
		sessions: make(map[string]*entry),
	}, nil
}

func (m *Manager) CookieName() string {
	return cookieName
}

func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

// Load returns the session for the request. A session id is only issued to
// the client once a value is written.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) *Session {
	s := &Session{manager: m, w: w}
	if cookie, err := r.Cookie(cookieName); err == nil {
		if id, err := m.parse(cookie.Value); err == nil {
			s.id = id
		}
	}
	return s
}

// Sweep drops sessions idle for longer than the max age and reports how many
// were removed.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.sessions {
		if now.Sub(e.touched) > m.maxAge {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) get(id, key string, now time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return ""
	}
	if now.Sub(e.touched) > m.maxAge {
		delete(m.sessions, id)
		return ""
	}
	e.touched = now
	return e.values[key]
}

func (m *Manager) set(id, key, value string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		e = &entry{values: map[string]string{}}
		m.sessions[id] = e
	}
	e.values[key] = value
	e.touched = now
}

func (m *Manager) delete(id, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[id]; ok {
		delete(e.values, key)
	}
}

func (m *Manager) issue(id string) string {
	token := id + "|" + m.sign(id)
	return base64.RawURLEncoding.EncodeToString([]byte(token))
}

func (m *Manager) parse(token string) (string, error) {
	if token == "" {
		return "", errors.New("missing session token")
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", errors.New("invalid session token")
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 2 {
		return "", errors.New("invalid session token")
	}
	if !m.verify(parts[0], parts[1]) {
		return "", errors.New("invalid session token")
	}
	return parts[0], nil
}

func (m *Manager) sign(payload string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (m *Manager) verify(payload, signature string) bool {
	expected := m.sign(payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Session is the request-scoped view of one browser's values.
type Session struct {
	manager *Manager
	w       http.ResponseWriter
	id      string
}

func (s *Session) Get(key string) string {
	if s.id == "" {
		return ""
	}
	return s.manager.get(s.id, key, time.Now())
}

func (s *Session) Set(key, value string) {
	now := time.Now()
	if s.id == "" {
		s.id = uuid.NewString()
		http.SetCookie(s.w, &http.Cookie{
			Name:     cookieName,
			Value:    s.manager.issue(s.id),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	s.manager.set(s.id, key, value, now)
}

func (s *Session) Delete(key string) {
	if s.id == "" {
		return
	}
	s.manager.delete(s.id, key)
}
