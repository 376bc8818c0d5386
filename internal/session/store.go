package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/parcom/reviewd/internal/storage"
)

func historyKey(name string) string { return "session:" + name + ":history" }
func reviewsKey(name string) string { return "session:" + name + ":reviews" }

// Store hands out the singleton Session for each name, hydrating it from
// the KV store on first access.
type Store struct {
	mu       sync.Mutex
	kv       storage.KV
	sessions map[string]*Session
}

// NewStore creates a session store over the given KV backend.
func NewStore(kv storage.KV) *Store {
	return &Store{
		kv:       kv,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for name, creating and hydrating it if needed.
// Two callers asking for the same name always get the same *Session.
func (st *Store) Get(ctx context.Context, name string) (*Session, error) {
	st.mu.Lock()
	s, ok := st.sessions[name]
	if !ok {
		s = &Session{name: name}
		st.sessions[name] = s
	}
	st.mu.Unlock()

	s.Lock()
	defer s.Unlock()
	if !s.hydrated {
		st.hydrate(ctx, s)
		s.hydrated = true
	}
	return s, nil
}

// hydrate loads persisted state. A missing or unreadable record leaves the
// corresponding list empty; the session stays usable either way.
func (st *Store) hydrate(ctx context.Context, s *Session) {
	if data, found, err := st.kv.Get(ctx, historyKey(s.name)); err != nil {
		log.Printf("failed to load history for session %s: %v", s.name, err)
	} else if found {
		if err := json.Unmarshal(data, &s.history); err != nil {
			log.Printf("discarding malformed history for session %s: %v", s.name, err)
			s.history = nil
		}
	}

	if data, found, err := st.kv.Get(ctx, reviewsKey(s.name)); err != nil {
		log.Printf("failed to load reviews for session %s: %v", s.name, err)
	} else if found {
		if err := json.Unmarshal(data, &s.reviews); err != nil {
			log.Printf("discarding malformed reviews for session %s: %v", s.name, err)
			s.reviews = nil
		}
	}
}

// Persist writes the session's history and reviews back to the KV store.
// Caller must hold the session lock.
func (st *Store) Persist(ctx context.Context, s *Session) error {
	history, err := json.Marshal(s.history)
	if err != nil {
		return fmt.Errorf("failed to marshal history for session %s: %w", s.name, err)
	}
	if err := st.kv.Put(ctx, historyKey(s.name), history, 0); err != nil {
		return fmt.Errorf("failed to persist history for session %s: %w", s.name, err)
	}

	reviews, err := json.Marshal(s.reviews)
	if err != nil {
		return fmt.Errorf("failed to marshal reviews for session %s: %w", s.name, err)
	}
	if err := st.kv.Put(ctx, reviewsKey(s.name), reviews, 0); err != nil {
		return fmt.Errorf("failed to persist reviews for session %s: %w", s.name, err)
	}
	return nil
}
