package persist

import (
	"path/filepath"
	"testing"

	"github.com/stupiduntilnot/chousei/internal/history"
)

func openTestSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSQLiteBackend_RoundTrip(t *testing.T) {
	b := openTestSQLite(t)

	want := testState()
	if err := b.Save(want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := b.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	assertStateEqual(t, want, got)
}

func TestSQLiteBackend_LoadEmptyDatabase(t *testing.T) {
	b := openTestSQLite(t)

	got, err := b.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty state, got %+v", got)
	}
}

func TestSQLiteBackend_SaveReplacesSnapshot(t *testing.T) {
	b := openTestSQLite(t)

	if err := b.Save(testState()); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	second := map[string][]history.MessageRecord{
		"g2": {{Author: "bob", Text: "only me"}},
	}
	if err := b.Save(second); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	got, err := b.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	assertStateEqual(t, second, got)
}

func TestSQLiteBackend_BadTimestampTextLoadsAsZero(t *testing.T) {
	b := openTestSQLite(t)

	if _, err := b.db.Exec(
		`INSERT INTO history (conversation_id, ts, author, text) VALUES (?, ?, ?, ?)`,
		"g1", "garbage", "alice", "hi",
	); err != nil {
		t.Fatal(err)
	}

	got, err := b.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	log := got["g1"]
	if len(log) != 1 || !log[0].Timestamp.IsZero() {
		t.Fatalf("expected one record with zero timestamp, got %+v", log)
	}
}

func TestSQLiteBackend_PreservesAppendOrder(t *testing.T) {
	b := openTestSQLite(t)

	want := map[string][]history.MessageRecord{
		"g1": {
			{Author: "a", Text: "first"},
			{Author: "b", Text: "second"},
			{Author: "c", Text: "third"},
		},
	}
	if err := b.Save(want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := b.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	log := got["g1"]
	if len(log) != 3 || log[0].Text != "first" || log[1].Text != "second" || log[2].Text != "third" {
		t.Fatalf("order not preserved: %+v", log)
	}
}
