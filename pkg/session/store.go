// Package session keeps wizard sessions in memory. Nothing survives a restart.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arnavshah/timetable-wizard-go/pkg/chat"
	"github.com/arnavshah/timetable-wizard-go/pkg/errs"
	"github.com/arnavshah/timetable-wizard-go/pkg/extraction"
	"github.com/arnavshah/timetable-wizard-go/pkg/scheduler"
	"github.com/arnavshah/timetable-wizard-go/pkg/wizard"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session bundles one wizard with its extraction conversation and solve guard.
type Session struct {
	ID        string
	Owner     string
	Wizard    *wizard.State
	Chat      *chat.Controller
	Solve     *scheduler.Orchestrator
	CreatedAt time.Time

	lastSeen atomic.Int64
}

// LastSeen is the time of the latest lookup.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Options configures a Store.
type Options struct {
	TTL       time.Duration
	Extractor extraction.Extractor
	Solver    scheduler.Solver
	Log       *zap.Logger
}

// Store maps session ids to sessions and evicts idle ones.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	opts Options
	now  func() time.Time
}

func NewStore(opts Options) *Store {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Store{
		sessions: make(map[string]*Session),
		opts:     opts,
		now:      time.Now,
	}
}

// Create starts a fresh session owned by owner. Expired sessions are evicted on
// the way, so stores without a Run loop stay bounded too.
func (s *Store) Create(owner string) *Session {
	w := wizard.New()
	sess := &Session{
		ID:        uuid.NewString(),
		Owner:     owner,
		Wizard:    w,
		Chat:      chat.New(s.opts.Extractor, w, s.opts.Log),
		Solve:     scheduler.NewOrchestrator(s.opts.Solver),
		CreatedAt: s.now(),
	}
	sess.lastSeen.Store(sess.CreatedAt.UnixNano())

	s.mu.Lock()
	evicted := s.sweepLocked()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	if evicted > 0 {
		s.opts.Log.Info("evicted idle sessions", zap.Int("count", evicted))
	}
	s.opts.Log.Debug("session created", zap.String("session_id", sess.ID), zap.String("owner", owner))
	return sess
}

// Get returns the session and marks it as used. Sessions of other owners are
// reported as missing.
func (s *Store) Get(id, owner string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || sess.Owner != owner {
		return nil, errs.NotFound("session.Get", "session %s not found", id)
	}
	sess.lastSeen.Store(s.now().UnixNano())
	return sess, nil
}

func (s *Store) Delete(id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; !ok || sess.Owner != owner {
		return errs.NotFound("session.Delete", "session %s not found", id)
	}
	delete(s.sessions, id)
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions idle for longer than the TTL and returns how many went.
// A zero TTL keeps everything.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

func (s *Store) sweepLocked() int {
	if s.opts.TTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.opts.TTL).UnixNano()
	n := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Load() < cutoff {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done. A non-positive interval disables
// the loop.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.opts.Log.Warn("session sweep loop disabled", zap.Duration("interval", interval))
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				s.opts.Log.Info("evicted idle sessions", zap.Int("count", n), zap.Int("remaining", s.Len()))
			}
		}
	}
}
