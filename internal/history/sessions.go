package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownSession is returned when a session has no exchanges to refer to.
var ErrUnknownSession = errors.New("history: unknown session")

// ErrIndexOutOfRange is returned when feedback names an exchange that does
// not exist.
var ErrIndexOutOfRange = errors.New("history: exchange index out of range")

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// session is one registry entry. mu serialises requests of the session;
// refs counts the requests holding the entry and is guarded by Sessions.mu.
type session struct {
	mu     sync.Mutex
	log    *Log
	loaded bool
	refs   int
}

// Sessions owns one Log per session id. Logs are hydrated from the store on
// first use and new exchanges are persisted after each update. A nil store
// keeps everything in memory. Entries whose log is empty are dropped once no
// request holds them.
type Sessions struct {
	store Store
	log   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewSessions returns an empty registry backed by store (which may be nil).
func NewSessions(store Store, log *slog.Logger) *Sessions {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Sessions{store: store, log: log, sessions: make(map[string]*session)}
}

// acquire returns the entry for id, creating it if needed, and locks it.
func (r *Sessions) acquire(id string) *session {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		s = &session{log: NewLog()}
		r.sessions[id] = s
	}
	s.refs++
	r.mu.Unlock()

	s.mu.Lock()
	return s
}

// release unlocks s and evicts it when it is empty and unused.
func (r *Sessions) release(id string, s *session) {
	r.mu.Lock()
	s.refs--
	if s.refs == 0 && s.log.Len() == 0 {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	s.mu.Unlock()
}

// size reports the number of sessions held in memory.
func (r *Sessions) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// hydrate loads the persisted exchanges once. Caller holds s.mu.
func (r *Sessions) hydrate(ctx context.Context, id string, s *session) error {
	if s.loaded {
		return nil
	}
	if r.store != nil {
		exchanges, err := r.store.Load(ctx, id)
		if err != nil {
			return err
		}
		s.log = NewLog(exchanges...)
	}
	s.loaded = true
	return nil
}

// Update runs fn with exclusive access to the session's log. Exchanges that
// fn appended are persisted afterwards, even when fn returns an error, so
// the store never lags the in-memory log.
func (r *Sessions) Update(ctx context.Context, id string, fn func(*Log) error) error {
	s := r.acquire(id)
	defer r.release(id, s)

	if err := r.hydrate(ctx, id, s); err != nil {
		return err
	}

	before := s.log.Len()
	fnErr := fn(s.log)

	if added := s.log.Since(before); len(added) > 0 && r.store != nil {
		if err := r.store.Append(ctx, id, added...); err != nil {
			return errors.Join(fnErr, err)
		}
	}
	return fnErr
}

// Snapshot returns a copy of the session's exchanges.
func (r *Sessions) Snapshot(ctx context.Context, id string) ([]Exchange, error) {
	var out []Exchange
	err := r.Update(ctx, id, func(l *Log) error {
		out = l.Exchanges()
		return nil
	})
	return out, err
}

// Reset drops the session from memory and from the store.
func (r *Sessions) Reset(ctx context.Context, id string) error {
	s := r.acquire(id)
	defer r.release(id, s)

	if r.store != nil {
		if err := r.store.Delete(ctx, id); err != nil {
			return err
		}
	}
	s.log = NewLog()
	s.loaded = true
	r.log.Info("history: session reset", slog.String("session", id))
	return nil
}

// Feedback records a vote on exchange index of session. The vote is logged
// as upvoted or downvoted and persisted when a store is configured.
func (r *Sessions) Feedback(ctx context.Context, id string, index int, liked bool) (Feedback, error) {
	var fb Feedback
	err := r.Update(ctx, id, func(l *Log) error {
		if l.Len() == 0 {
			return fmt.Errorf("%w: %s", ErrUnknownSession, id)
		}
		ex, ok := l.At(index)
		if !ok {
			return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, l.Len())
		}
		fb = Feedback{Session: id, Index: index, Liked: liked, Value: ex.Bot}
		return nil
	})
	if err != nil {
		return Feedback{}, err
	}

	verb := "downvoted"
	if liked {
		verb = "upvoted"
	}
	r.log.Info("history: you "+verb+" this response",
		slog.String("session", id),
		slog.Int("index", index),
		slog.String("value", fb.Value),
	)

	if r.store != nil {
		if err := r.store.RecordFeedback(ctx, fb); err != nil {
			return Feedback{}, err
		}
	}
	return fb, nil
}
