// Package memory provides volatile in-process stores for development and
// tests. Conditional updates are atomic under a mutex, matching the
// contract the durable backends provide.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quizroom/quizroom/internal/session"
)

// SessionStore keeps session records in process memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

var _ session.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*session.Session)}
}

// Get returns a copy of the session, so callers can never mutate stored
// state behind the store's back.
func (s *SessionStore) Get(ctx context.Context, code string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[code]
	if !ok {
		return nil, session.ErrNotFound
	}
	return cloneSession(sess), nil
}

func (s *SessionStore) Insert(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.Code]; ok {
		return session.ErrAlreadyExists
	}
	s.sessions[sess.Code] = cloneSession(sess)
	return nil
}

func (s *SessionStore) UpdateWhere(ctx context.Context, code string, pred session.Predicate, patch session.Patch) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[code]
	if !ok || !matches(sess, pred) {
		return nil, session.ErrNoMatch
	}

	if patch.Joined != nil {
		sess.Joined = append([]uuid.UUID(nil), (*patch.Joined)...)
	}
	if patch.Completed != nil {
		sess.Completed = append([]session.CompletionRecord(nil), (*patch.Completed)...)
	}
	if patch.Closed != nil {
		sess.Closed = *patch.Closed
	}
	sess.Version++

	return cloneSession(sess), nil
}

func (s *SessionStore) ExpiredOpen(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var codes []string
	for code, sess := range s.sessions {
		if !sess.Closed && sess.CreatedAt.Before(cutoff) {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

func matches(sess *session.Session, pred session.Predicate) bool {
	if pred.Version != nil && sess.Version != *pred.Version {
		return false
	}
	if pred.Open != nil && sess.Closed == *pred.Open {
		return false
	}
	if pred.OwnerID != nil && sess.OwnerID != *pred.OwnerID {
		return false
	}
	return true
}

func cloneSession(src *session.Session) *session.Session {
	dst := *src

	dst.Questions = make([]session.Question, len(src.Questions))
	for i, q := range src.Questions {
		opts := make(map[string]string, len(q.Options))
		for k, v := range q.Options {
			opts[k] = v
		}
		q.Options = opts
		dst.Questions[i] = q
	}

	dst.AnswerKey = make(map[int]string, len(src.AnswerKey))
	for k, v := range src.AnswerKey {
		dst.AnswerKey[k] = v
	}

	dst.Joined = append([]uuid.UUID(nil), src.Joined...)
	dst.Completed = append([]session.CompletionRecord(nil), src.Completed...)
	return &dst
}

// ResultStore keeps graded submissions in process memory.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string][]session.Result
}

var _ session.ResultStore = (*ResultStore)(nil)

// NewResultStore creates an empty in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string][]session.Result)}
}

func (s *ResultStore) Insert(ctx context.Context, res *session.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *res
	stored.Answers = append([]session.AnswerInput(nil), res.Answers...)
	s.results[res.SessionCode] = append(s.results[res.SessionCode], stored)
	return nil
}

func (s *ResultStore) BySession(ctx context.Context, code string) ([]session.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.results[code]
	out := make([]session.Result, len(stored))
	copy(out, stored)
	return out, nil
}
