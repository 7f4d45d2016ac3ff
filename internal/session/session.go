// Package session keeps per-browser state in the sessions table behind an opaque cookie.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/internal/security"
	"github.com/mytheresa/go-storefront/models"
)

const idLength = 32

// Flash kinds.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type data struct {
	UserID    uint    `json:"user_id,omitempty"`
	CSRFToken string  `json:"csrf_token,omitempty"`
	Flashes   []Flash `json:"flashes,omitempty"`
}

// Store persists session rows.
type Store interface {
	Find(ctx context.Context, id string, now time.Time) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, id string) error
}

// Session is the state of one browser session during a request.
type Session struct {
	id        string
	oldID     string
	data      data
	isNew     bool
	modified  bool
	destroyed bool
}

// UserID returns the logged-in user, or zero.
func (s *Session) UserID() uint {
	return s.data.UserID
}

// SetUserID records the logged-in user.
func (s *Session) SetUserID(id uint) {
	s.data.UserID = id
	s.modified = true
}

// CSRFToken returns the session's anti-forgery token, creating it on first use.
func (s *Session) CSRFToken() (string, error) {
	if s.data.CSRFToken == "" {
		token, err := security.NewToken()
		if err != nil {
			return "", err
		}
		s.data.CSRFToken = token
		s.modified = true
	}
	return s.data.CSRFToken, nil
}

// AddFlash queues a message for the next page.
func (s *Session) AddFlash(kind, message string) {
	s.data.Flashes = append(s.data.Flashes, Flash{Kind: kind, Message: message})
	s.modified = true
}

// PopFlashes returns and clears queued messages.
func (s *Session) PopFlashes() []Flash {
	if len(s.data.Flashes) == 0 {
		return nil
	}
	flashes := s.data.Flashes
	s.data.Flashes = nil
	s.modified = true
	return flashes
}

// Renew assigns a fresh session id, keeping the data. Call it whenever the privilege level changes.
// The CSRF token is rotated as well.
func (s *Session) Renew() error {
	id, err := newID()
	if err != nil {
		return err
	}
	if !s.isNew && s.oldID == "" {
		s.oldID = s.id
	}
	s.id = id
	s.data.CSRFToken = ""
	s.modified = true
	return nil
}

// Destroy discards every value and removes the row when the response is written. Flashes added
// afterwards land in a new session.
func (s *Session) Destroy() error {
	id, err := newID()
	if err != nil {
		return err
	}
	if !s.isNew && s.oldID == "" {
		s.oldID = s.id
	}
	s.id = id
	s.data = data{}
	s.isNew = true
	s.destroyed = true
	s.modified = false
	return nil
}

func newID() (string, error) {
	id, err := gonanoid.New(idLength)
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return id, nil
}

// New returns an empty session that is not yet bound to a cookie. LoadAndSave creates sessions
// itself; New serves code that needs one outside a request, such as tests.
func New() *Session {
	return &Session{isNew: true}
}

type contextKey struct{}

// FromContext returns the request's session. Outside LoadAndSave it returns a detached empty
// session, so callers never deal with nil.
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(contextKey{}).(*Session); ok {
		return s
	}
	return New()
}

// WithSession returns ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// Config holds cookie settings.
type Config struct {
	CookieName string
	Lifetime   time.Duration
	Secure     bool
}

// Manager loads the session before a handler runs and commits it before the first response byte.
type Manager struct {
	store Store
	cfg   Config
	log   *zap.Logger
	now   func() time.Time
}

// NewManager returns a Manager.
func NewManager(store Store, cfg Config, log *zap.Logger) *Manager {
	return &Manager{store: store, cfg: cfg, log: log, now: time.Now}
}

// LoadAndSave is middleware attaching the session to the request context.
func (m *Manager) LoadAndSave(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.load(r)
		if err != nil {
			m.log.Error("failed to load session", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		sw := &writer{ResponseWriter: w}
		sw.commit = func() {
			if err := m.commit(r.Context(), w, s); err != nil {
				m.log.Error("failed to save session", zap.Error(err))
			}
		}

		next.ServeHTTP(sw, r.WithContext(WithSession(r.Context(), s)))
		sw.flush()
	})
}

func (m *Manager) load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err == nil && cookie.Value != "" {
		row, err := m.store.Find(r.Context(), cookie.Value, m.now())
		switch {
		case err == nil:
			s := &Session{id: row.ID}
			if err := json.Unmarshal([]byte(row.Data), &s.data); err != nil {
				m.log.Warn("discarding unreadable session", zap.Error(err))
				return m.fresh()
			}
			return s, nil
		case !errors.Is(err, models.ErrSessionNotFound):
			return nil, err
		}
	}
	return m.fresh()
}

func (m *Manager) fresh() (*Session, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	return &Session{id: id, isNew: true}, nil
}

func (m *Manager) commit(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if s.oldID != "" {
		if err := m.store.Delete(ctx, s.oldID); err != nil {
			return err
		}
	}

	if s.isNew && !s.modified {
		if s.destroyed {
			m.clearCookie(w)
		}
		return nil
	}

	raw, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	expires := m.now().Add(m.cfg.Lifetime)
	if err := m.store.Save(ctx, &models.Session{ID: s.id, Data: string(raw), ExpiresAt: expires}); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    s.id,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(m.cfg.Lifetime.Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// writer commits the session right before headers are sent.
type writer struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (w *writer) flush() {
	if !w.committed {
		w.committed = true
		w.commit()
	}
}

func (w *writer) WriteHeader(code int) {
	w.flush()
	w.ResponseWriter.WriteHeader(code)
}

func (w *writer) Write(b []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(b)
}

func (w *writer) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
