// Package assistant is the coordinator: it drains the utterance queue,
// routes confirmations to the gate, plans everything else through the
// model, and speaks the outcome.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lobo/internal/gate"
	"lobo/internal/memory"
	"lobo/internal/nlu"
)

const (
	historyMax  = 20 // turns kept
	historySend = 10 // turns sent to the model

	errorPhrase = "I'm sorry, I encountered an error processing that command."
)

// Utterance is one piece of recognized speech (or injected text) waiting to
// be handled. ReplyCh, when set, must be buffered; the assistant sends at
// most one reply and then closes it.
type Utterance struct {
	Text    string
	Source  string // "voice", "trigger", "ctl", "hub"
	At      time.Time
	ReplyCh chan<- string
}

type Planner interface {
	Plan(ctx context.Context, history []nlu.Turn, memoryContext, utterance string) (nlu.Plan, error)
}

type MemoryStore interface {
	Search(ctx context.Context, query string, limit int) []memory.Memory
	Store(ctx context.Context, in memory.Interaction) error
}

type Speaker interface {
	Speak(text string) error
}

// Status is a point-in-time snapshot for the control socket.
type Status struct {
	Running         bool               `json:"running"`
	QueueDepth      int                `json:"queue_depth"`
	Pending         []gate.PendingView `json:"pending_confirmations"`
	HistoryLength   int                `json:"history_length"`
	LastInteraction string             `json:"last_interaction,omitempty"`
}

type Assistant struct {
	planner  Planner
	gate     *gate.Gate
	mem      MemoryStore // nil: memory disabled
	speaker  Speaker     // nil: text-only
	log      *slog.Logger
	model    string
	memLimit int
	queue    chan Utterance

	mu      sync.Mutex
	history []nlu.Turn
	lastAt  time.Time
	running bool
}

func New(planner Planner, g *gate.Gate, opts ...Option) *Assistant {
	a := &Assistant{
		planner:  planner,
		gate:     g,
		log:      slog.Default(),
		memLimit: 5,
		queue:    make(chan Utterance, 16),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Enqueue hands an utterance to the worker without blocking. When the queue
// is full the utterance is dropped and its reply channel closed, so a slow
// model never backs up into the audio path.
func (a *Assistant) Enqueue(utt Utterance) bool {
	if utt.At.IsZero() {
		utt.At = time.Now()
	}
	select {
	case a.queue <- utt:
		return true
	default:
		a.log.Warn("utterance dropped, queue full", "source", utt.Source, "text", utt.Text)
		if utt.ReplyCh != nil {
			close(utt.ReplyCh)
		}
		return false
	}
}

// Run drains the queue until ctx is cancelled. One utterance at a time:
// command ordering matters when a confirmation follows a risky request.
func (a *Assistant) Run(ctx context.Context) {
	a.setRunning(true)
	defer a.setRunning(false)

	for {
		select {
		case <-ctx.Done():
			return
		case utt := <-a.queue:
			a.safeHandle(ctx, utt)
		}
	}
}

func (a *Assistant) Status() Status {
	pending := a.gate.Pending()

	a.mu.Lock()
	defer a.mu.Unlock()

	st := Status{
		Running:       a.running,
		QueueDepth:    len(a.queue),
		Pending:       pending,
		HistoryLength: len(a.history),
	}
	if !a.lastAt.IsZero() {
		st.LastInteraction = a.lastAt.Format(time.RFC3339)
	}
	return st
}

func (a *Assistant) safeHandle(ctx context.Context, utt Utterance) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("panic handling utterance", "panic", r, "text", utt.Text)
			a.deliver(utt, errorPhrase)
		}
	}()
	a.handle(ctx, utt)
}

func (a *Assistant) handle(ctx context.Context, utt Utterance) {
	text := strings.TrimSpace(utt.Text)
	if text == "" {
		a.deliver(utt, "")
		return
	}

	a.log.Info("handling utterance", "source", utt.Source, "text", text)
	a.touch(utt.At)

	// The keyword routes straight to the gate; confirmations never go
	// through the model, so a mumbled follow-up cannot replan them.
	if strings.Contains(strings.ToLower(text), strings.ToLower(a.gate.Keyword())) {
		res := a.gate.Confirm(ctx, text)
		a.deliver(utt, res.Message)
		return
	}

	var memCtx string
	if a.mem != nil {
		memCtx = memory.FormatContext(a.mem.Search(ctx, text, a.memLimit))
	}

	plan, err := a.planner.Plan(ctx, a.recentHistory(), memCtx, text)
	if err != nil {
		a.log.Error("planning failed", "err", err)
		a.deliver(utt, errorPhrase)
		return
	}

	parts := make([]string, 0, 1+len(plan.Commands))
	if plan.Reply != "" {
		parts = append(parts, plan.Reply)
	}
	for _, cmd := range plan.Commands {
		sub := a.gate.Submit(ctx, cmd)
		parts = append(parts, sub.Message)
	}
	reply := strings.Join(parts, "\n")

	a.remember(text, reply)
	if a.mem != nil {
		in := memory.Interaction{
			UserInput:         text,
			AssistantResponse: reply,
			Topic:             "voice_command",
			Metadata: map[string]any{
				"model":          a.model,
				"interaction_id": uuid.NewString(),
				"source":         utt.Source,
			},
		}
		if err := a.mem.Store(ctx, in); err != nil {
			a.log.Warn("memory store failed", "err", err)
		}
	}

	a.deliver(utt, reply)
}

// deliver sends the reply to the waiting channel (if any) and speaks it.
func (a *Assistant) deliver(utt Utterance, reply string) {
	if utt.ReplyCh != nil {
		select {
		case utt.ReplyCh <- reply:
		default:
		}
		close(utt.ReplyCh)
	}
	if reply == "" || a.speaker == nil {
		return
	}
	if err := a.speaker.Speak(reply); err != nil {
		a.log.Error("speech failed", "err", err)
	}
}

func (a *Assistant) recentHistory() []nlu.Turn {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.history)
	if n > historySend {
		n = historySend
	}
	out := make([]nlu.Turn, n)
	copy(out, a.history[len(a.history)-n:])
	return out
}

func (a *Assistant) remember(user, reply string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history = append(a.history,
		nlu.Turn{Role: nlu.RoleUser, Content: user},
		nlu.Turn{Role: nlu.RoleAssistant, Content: reply},
	)
	if len(a.history) > historyMax {
		a.history = a.history[len(a.history)-historyMax:]
	}
}

func (a *Assistant) touch(at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if at.IsZero() {
		at = time.Now()
	}
	a.lastAt = at
}

func (a *Assistant) setRunning(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = v
}

// Say speaks arbitrary text outside the planning flow, for greetings and
// control-socket announcements.
func (a *Assistant) Say(text string) error {
	if a.speaker == nil {
		return fmt.Errorf("no speech output configured")
	}
	return a.speaker.Speak(text)
}
