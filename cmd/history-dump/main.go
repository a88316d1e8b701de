// history-dump prints the persisted conversation history, for poking at a
// live deployment's state file or database from the shell.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/stupiduntilnot/chousei/internal/history"
	"github.com/stupiduntilnot/chousei/internal/persist"
)

func main() {
	var (
		storePath    string
		storeBackend string
		conversation string
		limit        int
		jsonOut      bool
		tzName       string
	)

	flag.StringVar(&storePath, "store", envOrDefault("CHOUSEI_STORE_PATH", "data/history.json"), "state file or database path")
	flag.StringVar(&storeBackend, "backend", envOrDefault("CHOUSEI_STORE_BACKEND", "file"), "store backend: file or sqlite")
	flag.StringVar(&conversation, "id", "", "show a single conversation id")
	flag.IntVar(&limit, "n", 0, "show only the newest N records per conversation (0 = all)")
	flag.BoolVar(&jsonOut, "json", false, "output JSON format")
	flag.StringVar(&tzName, "tz", "", "render timestamps in this IANA zone (default local)")
	flag.Parse()

	loc := time.Local
	if tzName != "" {
		parsed, err := time.LoadLocation(tzName)
		if err != nil {
			log.Fatalf("invalid -tz %q: %v", tzName, err)
		}
		loc = parsed
	}

	state, err := loadState(storeBackend, storePath)
	if err != nil {
		log.Fatalf("load state: %v", err)
	}

	if conversation != "" {
		records, ok := state[conversation]
		if !ok {
			log.Fatalf("conversation %q not found", conversation)
		}
		state = map[string][]history.MessageRecord{conversation: records}
	}

	if limit > 0 {
		for id, records := range state {
			if len(records) > limit {
				state[id] = records[len(records)-limit:]
			}
		}
	}

	if jsonOut {
		printJSON(state)
		return
	}
	printText(state, loc)
}

func loadState(backend, path string) (map[string][]history.MessageRecord, error) {
	if backend == "sqlite" {
		sb, err := persist.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		defer sb.Close()
		return sb.Load()
	}
	return persist.NewFileBackend(path).Load()
}

func printText(state map[string][]history.MessageRecord, loc *time.Location) {
	ids := make([]string, 0, len(state))
	for id := range state {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		fmt.Printf("== %s (%d records)\n", id, len(state[id]))
		for _, rec := range state[id] {
			ts := "時刻不明"
			if !rec.Timestamp.IsZero() {
				ts = rec.Timestamp.In(loc).Format("2006-01-02 15:04")
			}
			fmt.Printf("  [%s] %s: %s\n", ts, rec.Author, rec.Text)
		}
	}
}

func printJSON(state map[string][]history.MessageRecord) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state); err != nil {
		log.Fatalf("encode: %v", err)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
