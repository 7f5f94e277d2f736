// Package auth holds the dev-mode session store: opaque tokens kept in
// memory with a sliding expiry. It is a gate in front of the API, not a
// real account system.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// TTL is how long a session survives without activity.
const TTL = 24 * time.Hour

// Sessions is a process-wide, in-memory session token store. Safe for
// concurrent use.
type Sessions struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

// NewSessions creates an empty session store.
func NewSessions() *Sessions {
	return &Sessions{
		tokens: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Create issues a new session token.
func (s *Sessions) Create() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = s.now()
	return token, nil
}

// Verify reports whether the token belongs to a live session. A
// successful check refreshes the session's expiry; an expired token is
// removed.
func (s *Sessions) Verify(token string) bool {
	if token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	issued, ok := s.tokens[token]
	if !ok {
		return false
	}
	if s.now().Sub(issued) > TTL {
		delete(s.tokens, token)
		return false
	}
	s.tokens[token] = s.now()
	return true
}
