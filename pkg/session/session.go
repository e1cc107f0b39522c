package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loft-dughairi/storefront/pkg/authn"
	"github.com/loft-dughairi/storefront/pkg/logger"
	"github.com/loft-dughairi/storefront/pkg/metrics"
	"github.com/loft-dughairi/storefront/pkg/notify"
)

// Topic is the notify topic session changes are published on
const Topic = "session"

// Session management errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session has expired")
)

// EventKind describes a session transition
type EventKind string

const (
	EventLogin       EventKind = "login"
	EventLogout      EventKind = "logout"
	EventInvalidated EventKind = "invalidated"
)

// SessionData represents the credential and identity of a logged-in user
type SessionData struct {
	SessionID   string    `json:"session_id"`
	UserID      int64     `json:"user_id"`
	Role        string    `json:"role"`
	Email       string    `json:"email"`
	AccessToken string    `json:"access_token"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Event is published on Topic after every login or logout
type Event struct {
	Kind      EventKind
	SessionID string
	Email     string
	Reason    string
}

// Manager owns the single session of a storefront client
type Manager struct {
	mu      sync.RWMutex
	current *SessionData
	storage Storage
	hub     *notify.Hub
	log     *logger.Logger
	now     func() time.Time
}

// NewManager creates a session manager publishing changes on hub
func NewManager(storage Storage, hub *notify.Hub, log *logger.Logger) *Manager {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Manager{
		storage: storage,
		hub:     hub,
		log:     log.With("session"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Login installs a bearer token as the current session
func (m *Manager) Login(ctx context.Context, token string) (*SessionData, error) {
	claims, err := authn.ParseClaims(token)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	now := m.now()
	if claims.Expired(now) {
		return nil, fmt.Errorf("login: %w", authn.ErrExpiredToken)
	}

	data := &SessionData{
		SessionID:   uuid.NewString(),
		UserID:      claims.UserID,
		Role:        claims.Role,
		Email:       claims.Email,
		AccessToken: token,
		CreatedAt:   now,
		ExpiresAt:   claims.ExpiresAtTime(),
	}
	if err := m.storage.Save(ctx, data); err != nil {
		return nil, fmt.Errorf("login: save session: %w", err)
	}

	m.mu.Lock()
	m.current = data
	m.mu.Unlock()

	metrics.ObserveSessionEvent(string(EventLogin))
	m.log.Info(logger.WithSession(ctx, data.SessionID, data.Email), "session started", logger.Fields{"role": data.Role})
	m.publish(Event{Kind: EventLogin, SessionID: data.SessionID, Email: data.Email})

	copyData := *data
	return &copyData, nil
}

// Restore reloads a previously saved session, if it is still valid
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	data, err := m.storage.Load(ctx)
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("restore session: %w", err)
	}
	if _, err := m.Login(ctx, data.AccessToken); err != nil {
		_ = m.storage.Delete(ctx)
		return false, nil
	}
	return true, nil
}

// Logout clears the session and notifies subscribers
func (m *Manager) Logout(ctx context.Context) {
	m.end(ctx, EventLogout, "")
}

// Invalidate ends the session because the backend rejected the credential
func (m *Manager) Invalidate(ctx context.Context, reason string) {
	m.end(ctx, EventInvalidated, reason)
}

func (m *Manager) end(ctx context.Context, kind EventKind, reason string) {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	if prev == nil {
		return
	}
	if err := m.storage.Delete(ctx); err != nil {
		m.log.LogError(ctx, err, "failed to delete stored session")
	}

	metrics.ObserveSessionEvent(string(kind))
	sctx := logger.WithSession(ctx, prev.SessionID, prev.Email)
	if kind == EventInvalidated {
		m.log.Warn(sctx, "session invalidated", logger.Fields{"reason": reason})
	} else {
		m.log.Info(sctx, "session ended")
	}
	m.publish(Event{Kind: kind, SessionID: prev.SessionID, Email: prev.Email, Reason: reason})
}

func (m *Manager) publish(ev Event) {
	if m.hub != nil {
		m.hub.Publish(Topic, ev)
	}
}

// OnChange subscribes fn to session changes; delivery is deferred
func (m *Manager) OnChange(fn func(Event)) func() {
	if m.hub == nil {
		return func() {}
	}
	return m.hub.Subscribe(Topic, func(ev notify.Event) {
		if e, ok := ev.Payload.(Event); ok {
			fn(e)
		}
	})
}

func (m *Manager) active() *SessionData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	if !m.current.ExpiresAt.IsZero() && !m.now().Before(m.current.ExpiresAt) {
		return nil
	}
	return m.current
}

// IsAuthenticated reports whether a non-expired session is installed
func (m *Manager) IsAuthenticated() bool {
	return m.active() != nil
}

// Token returns the bearer token, or "" when unauthenticated
func (m *Manager) Token() string {
	if s := m.active(); s != nil {
		return s.AccessToken
	}
	return ""
}

// Email returns the session user's email
func (m *Manager) Email() string {
	if s := m.active(); s != nil {
		return s.Email
	}
	return ""
}

// IsAdmin reports whether the session may perform back-office transitions
func (m *Manager) IsAdmin() bool {
	s := m.active()
	if s == nil {
		return false
	}
	return (&authn.Claims{Role: s.Role}).IsAdmin()
}

// Current returns a copy of the active session
func (m *Manager) Current() (*SessionData, bool) {
	s := m.active()
	if s == nil {
		return nil, false
	}
	c := *s
	return &c, true
}

// Context tags ctx with the session for logging
func (m *Manager) Context(ctx context.Context) context.Context {
	if s := m.active(); s != nil {
		return logger.WithSession(ctx, s.SessionID, s.Email)
	}
	return ctx
}

// Close releases the storage
func (m *Manager) Close() error {
	return m.storage.Close()
}
