package session

import (
	"sync"
	"time"

	"github.com/poolfund/poolfund-api/internal/types"
)

// DefaultTTL is how long a pending order stays approvable. Staleness is
// checked lazily at read time; there is no background sweeper.
const DefaultTTL = 5 * time.Minute

// Session binds one user to exactly one pending swap awaiting approval.
// It lives for a single approve/decline round trip and is never persisted.
type Session struct {
	UserID      string
	RequestID   string
	TokenMint   string
	TokenSymbol string
	Side        string
	Amount      float64
	Payload     []byte
	CreatedAt   time.Time
}

// Store holds at most one pending order session per user.
//
// All operations are atomic per user id: Consume is the get-then-clear
// around execution, so two concurrent approvals for the same user can
// never both observe the session as present.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Put stores a session for a user, silently replacing any existing one.
func (s *Store) Put(userID string, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.UserID = userID
	s.sessions[userID] = sess
}

// Get returns the user's pending session, or nil when absent or stale.
// A stale session is dropped on observation.
func (s *Store) Get(userID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	if s.expired(sess) {
		delete(s.sessions, userID)
		return nil
	}
	return sess
}

// Clear removes the user's session if any. Idempotent.
func (s *Store) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, userID)
}

// Consume atomically removes and returns the user's session when requestID
// matches. A mismatched request id leaves the session untouched so a
// still-valid newer order cannot be destroyed by a stale approval.
func (s *Store) Consume(userID, requestID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil, types.ErrSessionNotFound
	}
	if s.expired(sess) {
		delete(s.sessions, userID)
		return nil, types.ErrSessionNotFound
	}
	if sess.RequestID != requestID {
		return nil, types.ErrSessionMismatch
	}

	delete(s.sessions, userID)
	return sess, nil
}

func (s *Store) expired(sess *Session) bool {
	return s.now().Sub(sess.CreatedAt) > s.ttl
}
