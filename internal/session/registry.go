package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// Registry keeps live sessions by ID for the HTTP layer. A learner has at
// most one live session per lesson.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	byOwner  map[ownerKey]string
	now      func() time.Time
	logger   *log.Logger
}

type ownerKey struct{ learner, lesson string }

func keyOf(s *Session) ownerKey { return ownerKey{learner: s.LearnerID(), lesson: s.LessonID()} }

func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{sessions: map[string]*Session{}, byOwner: map[ownerKey]string{}, now: time.Now, logger: logger}
}

// Add stores s and returns its ID. If the learner already has a live
// session for the same lesson, that session's ID is returned instead and
// s is left unregistered.
func (r *Registry) Add(s *Session) string {
	id, _, _ := r.Attach(s)
	return id
}

// Attach registers s unless its learner already has a live session for
// the same lesson. In that case the existing session is returned with
// created=false and the caller should close s.
func (r *Registry) Attach(s *Session) (id string, live *Session, created bool) {
	k := keyOf(s)
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byOwner[k]; ok {
		return id, r.sessions[id], false
	}
	id = uuid.NewString()
	r.sessions[id] = s
	r.byOwner[k] = id
	return id, s, true
}

// Find returns the learner's live session for lessonID.
func (r *Registry) Find(learnerID, lessonID string) (string, *Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byOwner[ownerKey{learner: learnerID, lesson: lessonID}]
	if !ok {
		return "", nil, false
	}
	return id, r.sessions[id], true
}

// forget drops id from both indexes. Must hold r.mu.
func (r *Registry) forget(id string, s *Session) {
	delete(r.sessions, id)
	if k := keyOf(s); r.byOwner[k] == id {
		delete(r.byOwner, k)
	}
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove closes and forgets the session.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		r.forget(id, s)
	}
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than ttl. A session still
// presenting a timed attempt is kept; its timer will submit it.
func (r *Registry) Sweep(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)
	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if s.IdleSince().After(cutoff) {
			continue
		}
		if s.timedAndPresenting() {
			continue
		}
		stale = append(stale, s)
		r.forget(id, s)
	}
	r.mu.Unlock()
	for _, s := range stale {
		s.Close()
	}
	if len(stale) > 0 {
		r.logger.Printf("[SESSION] swept %d idle sessions", len(stale))
	}
	return len(stale)
}

// RunSweeper sweeps every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep(ttl)
		}
	}
}

// CloseAll stops every session; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = map[string]*Session{}
	r.byOwner = map[ownerKey]string{}
	r.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
