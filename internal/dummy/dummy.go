// Package dummy is a scriptable Generator for tests and local runs without
// API credentials.
package dummy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

type action struct {
	kind string
	arg  string
}

// Generator replays a comma-separated action script, one action per call.
// Actions: "ok", "msg:<text>", "err:<reason>", "sleep:<ms>". The last action
// repeats once the script is exhausted; an empty script means "ok" forever.
type Generator struct {
	mu      sync.Mutex
	actions []action
	index   int
}

func NewGenerator(script string) (*Generator, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &Generator{actions: actions}, nil
}

func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		switch {
		case token == "":
			continue
		case token == "ok":
			actions = append(actions, action{kind: "ok"})
		case strings.HasPrefix(token, "msg:"):
			actions = append(actions, action{kind: "msg", arg: strings.TrimPrefix(token, "msg:")})
		case strings.HasPrefix(token, "err:"):
			actions = append(actions, action{kind: "err", arg: strings.TrimPrefix(token, "err:")})
		case strings.HasPrefix(token, "sleep:"):
			actions = append(actions, action{kind: "sleep", arg: strings.TrimPrefix(token, "sleep:")})
		default:
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

func (g *Generator) next() action {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.index >= len(g.actions) {
		return g.actions[len(g.actions)-1]
	}
	a := g.actions[g.index]
	g.index++
	return a
}

// Generate executes the next scripted action.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	a := g.next()
	switch a.kind {
	case "msg":
		return a.arg, nil
	case "err":
		reason := a.arg
		if reason == "" {
			reason = "generation_api"
		}
		return "", fmt.Errorf("dummy generator error class=%s", reason)
	case "sleep":
		ms, _ := strconv.Atoi(a.arg)
		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return "dummy-after-sleep", nil
	default:
		return "了解です！", nil
	}
}
