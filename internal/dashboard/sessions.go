package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/cordoba-data/program-dashboard/internal/catalog"
)

// BuildFunc builds a fresh catalogue. It only fails when ctx is done.
type BuildFunc func(ctx context.Context) (*catalog.Catalogue, error)

// DefaultSessionIdle is how long an untouched session keeps its catalogue.
const DefaultSessionIdle = 2 * time.Hour

// Sessions holds one catalogue per browser session. The catalogue is built on
// first use and kept until refreshed or the session goes idle.
type Sessions struct {
	build   BuildFunc
	maxIdle time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	// build serialises catalogue builds of one session.
	build    sync.Mutex
	cat      *catalog.Catalogue
	lastSeen time.Time
}

// NewSessions creates a session store. maxIdle <= 0 uses DefaultSessionIdle.
func NewSessions(build BuildFunc, maxIdle time.Duration) *Sessions {
	if maxIdle <= 0 {
		maxIdle = DefaultSessionIdle
	}
	return &Sessions{
		build:    build,
		maxIdle:  maxIdle,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// get returns the session for id, creating it, and drops idle ones.
func (s *Sessions) get(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, sess := range s.sessions {
		if k != id && now.Sub(sess.lastSeen) > s.maxIdle {
			delete(s.sessions, k)
		}
	}
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{}
		s.sessions[id] = sess
	}
	sess.lastSeen = now
	return sess
}

// Catalogue returns the session catalogue, building it on first use.
func (s *Sessions) Catalogue(ctx context.Context, id string) (*catalog.Catalogue, error) {
	sess := s.get(id)
	sess.build.Lock()
	defer sess.build.Unlock()
	if sess.cat != nil {
		return sess.cat, nil
	}
	cat, err := s.build(ctx)
	if err != nil {
		return nil, err
	}
	sess.cat = cat
	return cat, nil
}

// Refresh rebuilds the session catalogue. On failure the previous catalogue
// is kept.
func (s *Sessions) Refresh(ctx context.Context, id string) (*catalog.Catalogue, error) {
	sess := s.get(id)
	sess.build.Lock()
	defer sess.build.Unlock()
	cat, err := s.build(ctx)
	if err != nil {
		return nil, err
	}
	sess.cat = cat
	return cat, nil
}
