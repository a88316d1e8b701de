package history

import (
	"sync"
	"time"
)

// UnknownAuthor is stored when the platform profile lookup fails.
const UnknownAuthor = "unknown"

// MessageRecord is one logged utterance. Immutable once created.
// A zero Timestamp means the persisted timestamp was missing or unparsable;
// such records are never age-evicted.
type MessageRecord struct {
	Timestamp time.Time
	Author    string
	Text      string
}

// Store owns every per-conversation message log. All access goes through one
// mutex, so concurrent webhook handlers see a single logical writer and no
// torn intermediate state.
type Store struct {
	mu   sync.Mutex
	logs map[string][]MessageRecord
}

func NewStore() *Store {
	return &Store{logs: make(map[string][]MessageRecord)}
}

// Append creates a record stamped with now and appends it to the
// conversation's log, creating the log on first use. Empty text is legal.
func (s *Store) Append(conversationID, author, text string, now time.Time) MessageRecord {
	rec := MessageRecord{Timestamp: now, Author: author, Text: text}
	s.mu.Lock()
	s.logs[conversationID] = append(s.logs[conversationID], rec)
	s.mu.Unlock()
	return rec
}

// Evict trims one conversation's log: first the age pass drops records older
// than retention (records with a zero Timestamp are kept), then the size pass
// keeps only the newest maxRecords. The passes run in that order so an
// oversized but entirely-recent log truncates instead of aging out.
// Running Evict twice with the same now yields the same state as once.
func (s *Store) Evict(conversationID string, now time.Time, retention time.Duration, maxRecords int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.logs[conversationID]
	if !ok {
		return
	}

	if retention > 0 {
		kept := log[:0:0]
		for _, rec := range log {
			if rec.Timestamp.IsZero() || now.Sub(rec.Timestamp) <= retention {
				kept = append(kept, rec)
			}
		}
		log = kept
	}

	if maxRecords > 0 && len(log) > maxRecords {
		log = log[len(log)-maxRecords:]
	}

	s.logs[conversationID] = log
}

// Window returns the most recent limit records of a conversation in
// chronological order, fewer if the log is shorter. limit <= 0 returns nil.
func (s *Store) Window(conversationID string, limit int) []MessageRecord {
	if limit <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[conversationID]
	if len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([]MessageRecord, len(log))
	copy(out, log)
	return out
}

// Conversations returns every known conversation id in no particular order.
func (s *Store) Conversations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.logs))
	for id := range s.logs {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot deep-copies the full state for persistence.
func (s *Store) Snapshot() map[string][]MessageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]MessageRecord, len(s.logs))
	for id, log := range s.logs {
		cp := make([]MessageRecord, len(log))
		copy(cp, log)
		out[id] = cp
	}
	return out
}

// Restore replaces the full state, typically with the result of a backend
// Load at startup. A nil state resets the store to empty.
func (s *Store) Restore(state map[string][]MessageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = make(map[string][]MessageRecord, len(state))
	for id, log := range state {
		cp := make([]MessageRecord, len(log))
		copy(cp, log)
		s.logs[id] = cp
	}
}
