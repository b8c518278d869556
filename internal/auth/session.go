package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultSessionTTL is how long a login stays valid.
const DefaultSessionTTL = time.Hour

// secretSource feeds generated signing secrets.
var secretSource io.Reader = rand.Reader

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrNoSession    = errors.New("session not found")
)

// Session is one authenticated browser session.
type Session struct {
	ID        string
	Addr      string
	CreatedAt time.Time
	LastUsed  time.Time
}

// SessionStore keeps authenticated sessions in memory. Clients hold a signed
// token naming their session id; the store decides whether it is still live.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	secret   []byte
	now      func() time.Time
}

// NewSessionStore creates a store signing tokens with secret. An empty
// secret is replaced by random bytes, so tokens die with the process.
func NewSessionStore(secret []byte, ttl time.Duration) (*SessionStore, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := io.ReadFull(secretSource, secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		secret:   secret,
		now:      time.Now,
	}, nil
}

// TTL returns the session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Create starts a new session and returns its signed token.
func (s *SessionStore) Create(addr string) (string, error) {
	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		Addr:      addr,
		CreatedAt: now,
		LastUsed:  now,
	}

	claims := jwt.RegisteredClaims{
		ID:        sess.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return token, nil
}

// Lookup validates token and returns its live session.
func (s *SessionStore) Lookup(token string) (*Session, error) {
	id, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNoSession
	}
	now := s.now()
	if now.Sub(sess.CreatedAt) > s.ttl {
		delete(s.sessions, id)
		return nil, ErrNoSession
	}
	sess.LastUsed = now
	return sess, nil
}

// Authenticated reports whether token names a live session.
func (s *SessionStore) Authenticated(token string) bool {
	if token == "" {
		return false
	}
	_, err := s.Lookup(token)
	return err == nil
}

// Revoke ends the session named by token. Unknown or invalid tokens are
// ignored.
func (s *SessionStore) Revoke(token string) {
	id, err := s.parse(token)
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Count returns the number of stored sessions.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Cleanup removes expired sessions.
func (s *SessionStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.CreatedAt) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunCleanup calls Cleanup every interval until stop is closed.
func (s *SessionStore) RunCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-stop:
			return
		}
	}
}

func (s *SessionStore) parse(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.ID == "" {
		return "", ErrInvalidToken
	}
	return claims.ID, nil
}
