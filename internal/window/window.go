// Package window renders the bounded slice of conversation history that is
// handed to the generation step.
package window

import (
	"strings"
	"time"

	"github.com/stupiduntilnot/chousei/internal/history"
)

// TodayEmptyMarker is produced instead of an empty today view, so the prompt
// template never receives a blank section.
const TodayEmptyMarker = "今日のメッセージはまだありません"

const lineLayout = "2006-01-02 15:04"

// Windower is the slice of the store the builder needs.
type Windower interface {
	Window(conversationID string, limit int) []history.MessageRecord
}

// ContextWindow is the bounded, formatted history for one conversation:
// the full selected window, and the subset from now's calendar date.
type ContextWindow struct {
	Full  string
	Today string
}

// Builder derives context windows from a store query. Stateless; the same
// store state and clock reading always produce the same output.
type Builder struct {
	loc *time.Location
}

// NewBuilder creates a builder that evaluates "today" in the given location.
// A nil location falls back to server-local time.
func NewBuilder(loc *time.Location) *Builder {
	if loc == nil {
		loc = time.Local
	}
	return &Builder{loc: loc}
}

// Build selects the most recent limit records and renders both views.
// Rendering never truncates or reorders; any length ceiling applies to the
// generated reply downstream, not to the history fed in.
func (b *Builder) Build(store Windower, conversationID string, limit int, now time.Time) ContextWindow {
	records := store.Window(conversationID, limit)

	var full, today []string
	y, m, d := now.In(b.loc).Date()
	for _, rec := range records {
		line := renderLine(rec, b.loc)
		full = append(full, line)
		if rec.Timestamp.IsZero() {
			continue
		}
		ry, rm, rd := rec.Timestamp.In(b.loc).Date()
		if ry == y && rm == m && rd == d {
			today = append(today, line)
		}
	}

	win := ContextWindow{
		Full:  strings.Join(full, "\n"),
		Today: strings.Join(today, "\n"),
	}
	if win.Today == "" {
		win.Today = TodayEmptyMarker
	}
	return win
}

func renderLine(rec history.MessageRecord, loc *time.Location) string {
	ts := "時刻不明"
	if !rec.Timestamp.IsZero() {
		ts = rec.Timestamp.In(loc).Format(lineLayout)
	}
	return "[" + ts + "] " + rec.Author + ": " + rec.Text
}
