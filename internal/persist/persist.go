// Package persist stores the full conversation state durably. Two backends
// exist behind one interface: a single JSON file for the default deployment
// and SQLite for installs that already run one.
package persist

import (
	"time"

	"github.com/stupiduntilnot/chousei/internal/history"
)

// Backend persists the whole store state.
//
// Load must never fail the process: on a missing, unreadable or undecodable
// source it returns a usable empty state together with an error describing
// what was recovered from, so the call site can log the recovery instead of
// hiding it. Save must be crash-safe: the durable state is never observable
// half-written.
type Backend interface {
	Load() (map[string][]history.MessageRecord, error)
	Save(state map[string][]history.MessageRecord) error
}

// Timestamps are persisted as RFC3339Nano text. An empty or unparsable value
// loads as the zero time, which eviction treats as "unknown age: keep".
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
