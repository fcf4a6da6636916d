package auth

import (
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/core"
)

// EventType is an auth state transition.
type EventType string

const (
	SignedIn  EventType = "SIGNED_IN"
	SignedOut EventType = "SIGNED_OUT"
)

// Event describes one auth transition. UserID is set for SignedIn.
type Event struct {
	Type   EventType
	UserID string
}

// Listener observes auth transitions. Listeners are invoked
// synchronously, in registration order, on the goroutine performing
// the transition; they must be fast and queue any slow work.
type Listener func(Event)

// Session holds the current identity. The backend issues and verifies
// the access token; the session only extracts the subject claim to
// scope local caches, so the parse is deliberately unverified.
type Session struct {
	logger *zap.Logger

	mu        sync.RWMutex
	userID    string
	email     string
	token     string
	listeners []Listener
}

// NewSession creates an empty (signed-out) session.
func NewSession(logger *zap.Logger) *Session {
	return &Session{logger: logger}
}

// OnChange registers a transition listener.
func (s *Session) OnChange(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// SignIn installs the access token and emits SignedIn. Signing in over
// an existing identity (user switch) emits the event all the same, so
// caches scoped to the previous user are cleared.
func (s *Session) SignIn(accessToken string) (string, error) {
	userID, email, err := subjectOf(accessToken)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.userID = userID
	s.email = email
	s.token = accessToken
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	s.logger.Info("User signed in", zap.String("user_id", userID))
	emit(listeners, Event{Type: SignedIn, UserID: userID})
	return userID, nil
}

// SignOut drops the identity and emits SignedOut. Signing out while
// already signed out is a no-op.
func (s *Session) SignOut() {
	s.mu.Lock()
	if s.userID == "" {
		s.mu.Unlock()
		return
	}
	s.userID = ""
	s.email = ""
	s.token = ""
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	s.logger.Info("User signed out")
	emit(listeners, Event{Type: SignedOut})
}

// UserID returns the current identity, or ErrNotAuthenticated.
func (s *Session) UserID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userID == "" {
		return "", core.ErrNotAuthenticated
	}
	return s.userID, nil
}

// Authenticated reports whether an identity is present.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID != ""
}

// Token returns the current access token for gateway requests.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func emit(listeners []Listener, evt Event) {
	for _, l := range listeners {
		l(evt)
	}
}

func subjectOf(accessToken string) (userID, email string, err error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return "", "", fmt.Errorf("parse access token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", "", fmt.Errorf("access token has no subject")
	}
	if e, ok := claims["email"].(string); ok {
		email = e
	}
	return sub, email, nil
}
