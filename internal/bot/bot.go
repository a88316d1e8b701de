// Package bot wires the conversation store, the context window builder, the
// LINE gateway and the generator into the webhook pipeline.
package bot

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/stupiduntilnot/chousei/internal/clock"
	"github.com/stupiduntilnot/chousei/internal/control"
	"github.com/stupiduntilnot/chousei/internal/history"
	"github.com/stupiduntilnot/chousei/internal/line"
	"github.com/stupiduntilnot/chousei/internal/model"
	"github.com/stupiduntilnot/chousei/internal/persist"
	"github.com/stupiduntilnot/chousei/internal/window"
)

// FallbackReply is delivered when generation fails. It is appended to
// history like any other reply: the log records what the bot actually said,
// apologies included.
const FallbackReply = "ごめん、いまうまく返事を作れなかった...😅 少し時間をおいてもう一度試してみてね。"

// Gateway is the slice of the LINE client the handler needs.
type Gateway interface {
	Reply(replyToken, text string) error
	DisplayName(src line.Source) (string, error)
}

// Options holds the tuning knobs of the pipeline.
type Options struct {
	MentionToken  string
	BotName       string
	SystemPrompt  string
	Retention     time.Duration
	MaxRecords    int
	PromptWindow  int
	MaxReplyChars int
	Policy        control.Policy
}

// Handler processes decoded webhook events to completion.
type Handler struct {
	store   *history.Store
	backend persist.Backend
	builder *window.Builder
	gateway Gateway
	gen     model.Generator
	clk     clock.Clock
	breaker *control.CircuitBreaker
	opts    Options
}

func NewHandler(
	store *history.Store,
	backend persist.Backend,
	builder *window.Builder,
	gateway Gateway,
	gen model.Generator,
	clk clock.Clock,
	breaker *control.CircuitBreaker,
	opts Options,
) *Handler {
	return &Handler{
		store:   store,
		backend: backend,
		builder: builder,
		gateway: gateway,
		gen:     gen,
		clk:     clk,
		breaker: breaker,
		opts:    opts,
	}
}

// HandleEvent runs one event through the pipeline:
// append → evict → persist, then on mention
// build window → generate → append reply → evict → persist → deliver.
// Every failure past configuration is recovered locally; the webhook
// acknowledgment never depends on generation or delivery.
func (h *Handler) HandleEvent(ctx context.Context, ev line.Event) {
	conversationID := ev.Source.ConversationID()

	author, err := h.gateway.DisplayName(ev.Source)
	if err != nil {
		log.Printf("[bot] profile lookup failed, recording author as %q: %v", history.UnknownAuthor, err)
		author = history.UnknownAuthor
	}

	now := h.clk.Now()
	h.store.Append(conversationID, author, ev.Text, now)
	h.store.Evict(conversationID, now, h.opts.Retention, h.opts.MaxRecords)
	h.persistState()

	if !IsMention(ev.Text, h.opts.MentionToken) {
		return
	}
	query := StripMention(ev.Text, h.opts.MentionToken)

	// The window is a copy; the store lock is not held during generation.
	win := h.builder.Build(h.store, conversationID, h.opts.PromptWindow, now)
	prompt := BuildPrompt(h.opts.BotName, h.opts.SystemPrompt, win, query)

	reply := h.generate(ctx, prompt)

	replyAt := h.clk.Now()
	h.store.Append(conversationID, h.opts.BotName, reply, replyAt)
	h.store.Evict(conversationID, replyAt, h.opts.Retention, h.opts.MaxRecords)
	h.persistState()

	if err := h.gateway.Reply(ev.ReplyToken, line.Truncate(reply, h.opts.MaxReplyChars)); err != nil {
		// The platform already got its acknowledgment; delivery failures
		// stop here.
		log.Printf("[bot] reply delivery failed conversation=%s: %v", conversationID, err)
	}
}

// generate runs the generator under the control policy and always returns
// usable reply text; on any failure the fallback is the reply.
func (h *Handler) generate(ctx context.Context, prompt string) string {
	if h.breaker != nil && !h.breaker.Allow(h.clk.Now()) {
		log.Printf("[bot] generation circuit open, using fallback")
		return FallbackReply
	}

	attempts := 0
	for {
		attempts++
		gctx, cancel := context.WithTimeout(ctx, h.opts.Policy.GenerateTimeout)
		reply, err := h.gen.Generate(gctx, prompt)
		cancel()
		if err == nil {
			reply = strings.TrimSpace(reply)
			if reply != "" {
				if h.breaker != nil {
					h.breaker.RecordSuccess()
				}
				return reply
			}
			err = errEmptyReply
		}

		log.Printf("[bot] generation attempt %d failed: %v", attempts, err)
		if h.breaker != nil {
			h.breaker.RecordFailure(h.clk.Now())
		}
		if !control.ShouldRetry(h.opts.Policy, attempts) {
			return FallbackReply
		}
		select {
		case <-time.After(control.RetryBackoff(attempts)):
		case <-ctx.Done():
			return FallbackReply
		}
	}
}

func (h *Handler) persistState() {
	if err := h.backend.Save(h.store.Snapshot()); err != nil {
		// History stays intact in memory; the next successful save catches up.
		log.Printf("[bot] persist state failed: %v", err)
	}
}
