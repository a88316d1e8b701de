package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stupiduntilnot/chousei/internal/clock"
	"github.com/stupiduntilnot/chousei/internal/control"
	"github.com/stupiduntilnot/chousei/internal/history"
	"github.com/stupiduntilnot/chousei/internal/line"
	"github.com/stupiduntilnot/chousei/internal/persist"
	"github.com/stupiduntilnot/chousei/internal/window"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeGateway struct {
	name     string
	nameErr  error
	replyErr error

	gotTokens []string
	gotTexts  []string
}

func (g *fakeGateway) Reply(replyToken, text string) error {
	g.gotTokens = append(g.gotTokens, replyToken)
	g.gotTexts = append(g.gotTexts, text)
	return g.replyErr
}

func (g *fakeGateway) DisplayName(src line.Source) (string, error) {
	if g.nameErr != nil {
		return "", g.nameErr
	}
	return g.name, nil
}

type captureGenerator struct {
	calls  int
	prompt string
	reply  string
	err    error
}

func (c *captureGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	c.calls++
	c.prompt = prompt
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

type testEnv struct {
	handler *Handler
	store   *history.Store
	backend *persist.FileBackend
	gateway *fakeGateway
	gen     *captureGenerator
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	if opts.MentionToken == "" {
		opts.MentionToken = "@調整マン"
	}
	if opts.BotName == "" {
		opts.BotName = "調整マン"
	}
	if opts.Retention == 0 {
		opts.Retention = 180 * 24 * time.Hour
	}
	if opts.MaxRecords == 0 {
		opts.MaxRecords = 100
	}
	if opts.PromptWindow == 0 {
		opts.PromptWindow = 10
	}
	if opts.MaxReplyChars == 0 {
		opts.MaxReplyChars = 1000
	}
	if opts.Policy.GenerateTimeout == 0 {
		opts.Policy = control.Policy{GenerateTimeout: time.Second, MaxRetries: 0}
	}

	env := &testEnv{
		store:   history.NewStore(),
		backend: persist.NewFileBackend(filepath.Join(t.TempDir(), "history.json")),
		gateway: &fakeGateway{name: "アリス"},
		gen:     &captureGenerator{reply: "10時集合です⏰"},
	}
	env.handler = NewHandler(
		env.store,
		env.backend,
		window.NewBuilder(time.UTC),
		env.gateway,
		env.gen,
		clock.Func(func() time.Time { return testNow }),
		nil,
		opts,
	)
	return env
}

func groupEvent(text string) line.Event {
	return line.Event{
		ReplyToken: "rt-1",
		Source:     line.GroupSource{GroupID: "g1", UserID: "u1"},
		Text:       text,
	}
}

func TestHandleEvent_NonMentionOnlyAppends(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.handler.HandleEvent(context.Background(), groupEvent("明日ひま？"))

	if env.gen.calls != 0 {
		t.Fatal("generator must not run without a mention")
	}
	if len(env.gateway.gotTexts) != 0 {
		t.Fatalf("unexpected reply: %v", env.gateway.gotTexts)
	}

	log := env.store.Window("g1", 10)
	if len(log) != 1 || log[0].Author != "アリス" || log[0].Text != "明日ひま？" {
		t.Fatalf("unexpected log: %+v", log)
	}

	// Write-through persistence: the message is already on disk.
	state, err := env.backend.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(state["g1"]) != 1 || state["g1"][0].Text != "明日ひま？" {
		t.Fatalf("state not persisted: %+v", state)
	}
}

func TestHandleEvent_MentionGeneratesAndReplies(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.handler.HandleEvent(context.Background(), groupEvent("今日は暑いね"))
	env.handler.HandleEvent(context.Background(), groupEvent("@調整マン 今日の予定は？"))

	if env.gen.calls != 1 {
		t.Fatalf("expected 1 generation call, got %d", env.gen.calls)
	}
	// The question section carries the stripped query; the raw mention text
	// only appears inside the history section.
	if !strings.Contains(env.gen.prompt, "【ユーザーの質問】\n今日の予定は？") {
		t.Fatalf("stripped query missing from prompt:\n%s", env.gen.prompt)
	}
	if !strings.Contains(env.gen.prompt, "今日は暑いね") {
		t.Fatalf("history missing from prompt:\n%s", env.gen.prompt)
	}

	if len(env.gateway.gotTexts) != 1 || env.gateway.gotTexts[0] != "10時集合です⏰" {
		t.Fatalf("unexpected delivery: %v", env.gateway.gotTexts)
	}
	if env.gateway.gotTokens[0] != "rt-1" {
		t.Fatalf("unexpected reply token: %v", env.gateway.gotTokens)
	}

	log := env.store.Window("g1", 10)
	if len(log) != 3 {
		t.Fatalf("expected 3 records, got %+v", log)
	}
	last := log[2]
	if last.Author != "調整マン" || last.Text != "10時集合です⏰" {
		t.Fatalf("reply not appended: %+v", last)
	}
}

func TestHandleEvent_ProfileLookupFailureUsesUnknown(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.gateway.nameErr = errors.New("profile api down")

	env.handler.HandleEvent(context.Background(), groupEvent("こんにちは"))

	log := env.store.Window("g1", 1)
	if len(log) != 1 || log[0].Author != history.UnknownAuthor {
		t.Fatalf("expected unknown author, got %+v", log)
	}
}

func TestHandleEvent_GenerationFailureFallsBack(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.gen.err = errors.New("api quota exceeded")

	env.handler.HandleEvent(context.Background(), groupEvent("@調整マン 予定教えて"))

	if len(env.gateway.gotTexts) != 1 || env.gateway.gotTexts[0] != FallbackReply {
		t.Fatalf("expected fallback delivery, got %v", env.gateway.gotTexts)
	}
	log := env.store.Window("g1", 10)
	if len(log) != 2 || log[1].Text != FallbackReply {
		t.Fatalf("fallback not appended to history: %+v", log)
	}
}

func TestHandleEvent_EmptyGenerationReplyFallsBack(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.gen.reply = "   "

	env.handler.HandleEvent(context.Background(), groupEvent("@調整マン いる？"))

	if len(env.gateway.gotTexts) != 1 || env.gateway.gotTexts[0] != FallbackReply {
		t.Fatalf("expected fallback for empty reply, got %v", env.gateway.gotTexts)
	}
}

func TestHandleEvent_ReplyTruncatedDeliveredFullStored(t *testing.T) {
	env := newTestEnv(t, Options{MaxReplyChars: 5})
	env.gen.reply = "あいうえおかきくけこ"

	env.handler.HandleEvent(context.Background(), groupEvent("@調整マン 長文で"))

	if env.gateway.gotTexts[0] != "あいうえお" {
		t.Fatalf("delivery not truncated: %q", env.gateway.gotTexts[0])
	}
	log := env.store.Window("g1", 10)
	if log[len(log)-1].Text != "あいうえおかきくけこ" {
		t.Fatalf("history must keep the full reply: %+v", log)
	}
}

func TestHandleEvent_ReplyDeliveryFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.gateway.replyErr = errors.New("invalid reply token")

	env.handler.HandleEvent(context.Background(), groupEvent("@調整マン やあ"))

	// The reply is still part of history even though delivery failed.
	log := env.store.Window("g1", 10)
	if len(log) != 2 || log[1].Text != "10時集合です⏰" {
		t.Fatalf("unexpected log: %+v", log)
	}
}

func TestHandleEvent_EvictionBoundsTheLog(t *testing.T) {
	env := newTestEnv(t, Options{MaxRecords: 2})

	env.handler.HandleEvent(context.Background(), groupEvent("一"))
	env.handler.HandleEvent(context.Background(), groupEvent("二"))
	env.handler.HandleEvent(context.Background(), groupEvent("三"))

	log := env.store.Window("g1", 10)
	if len(log) != 2 || log[0].Text != "二" || log[1].Text != "三" {
		t.Fatalf("log not bounded to newest 2: %+v", log)
	}

	state, err := env.backend.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(state["g1"]) != 2 {
		t.Fatalf("persisted state not bounded: %+v", state["g1"])
	}
}

func TestHandleEvent_OpenCircuitSkipsGeneration(t *testing.T) {
	env := newTestEnv(t, Options{})
	breaker := control.NewCircuitBreaker(1, time.Hour)
	breaker.RecordFailure(testNow)
	env.handler.breaker = breaker

	env.handler.HandleEvent(context.Background(), groupEvent("@調整マン いる？"))

	if env.gen.calls != 0 {
		t.Fatal("open circuit must skip the generator")
	}
	if len(env.gateway.gotTexts) != 1 || env.gateway.gotTexts[0] != FallbackReply {
		t.Fatalf("expected fallback delivery, got %v", env.gateway.gotTexts)
	}
}

func TestHandleEvent_GenerationRetriesThenSucceeds(t *testing.T) {
	env := newTestEnv(t, Options{Policy: control.Policy{GenerateTimeout: time.Second, MaxRetries: 1}})
	gen := &flakyGenerator{failures: 1, reply: "復活しました"}
	env.handler.gen = gen

	env.handler.HandleEvent(context.Background(), groupEvent("@調整マン どう？"))

	if gen.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", gen.calls)
	}
	if env.gateway.gotTexts[0] != "復活しました" {
		t.Fatalf("unexpected delivery: %v", env.gateway.gotTexts)
	}
}

type flakyGenerator struct {
	calls    int
	failures int
	reply    string
}

func (f *flakyGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("transient error")
	}
	return f.reply, nil
}
