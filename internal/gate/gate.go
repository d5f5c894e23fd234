// Package gate holds requested actions behind a spoken confirmation keyword.
// Safe actions run immediately; everything else is parked as a pending
// command and runs only if the keyword is heard within the timeout.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"lobo/internal/device"
	"lobo/internal/risk"
)

// Executor runs an approved action. Expected domain failures come back as
// a Result with Success=false; an error means the call itself faulted.
type Executor interface {
	Execute(ctx context.Context, action string, params map[string]any) (device.Result, error)
}

// Notifier delivers confirmation prompts to the user-facing channel.
type Notifier interface {
	Notify(message string) error
}

// ActionRequest is one operation asked of the assistant.
type ActionRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"parameters"`
}

// PendingCommand is a stored request awaiting confirmation.
type PendingCommand struct {
	ID          string
	Action      string
	Description string
	Tier        risk.Tier
	CreatedAt   time.Time
	Params      map[string]any
}

// PendingView is the externally visible snapshot of a pending command.
type PendingView struct {
	ID            string  `json:"id"`
	Action        string  `json:"action"`
	Description   string  `json:"description"`
	RiskLevel     string  `json:"risk_level"`
	TimeRemaining float64 `json:"time_remaining"`
}

// SubmitResult reports what happened to a submitted request: executed on
// the spot, or parked pending confirmation.
type SubmitResult struct {
	Executed bool          `json:"executed"`
	Pending  bool          `json:"pending"`
	ID       string        `json:"id,omitempty"`
	Message  string        `json:"message"`
	Result   device.Result `json:"result,omitzero"`
}

// ExecutedCommand pairs an action with its execution outcome.
type ExecutedCommand struct {
	Action string        `json:"action"`
	Result device.Result `json:"result"`
}

// ConfirmResult summarizes one confirmation attempt. Confirmed is true when
// at least one pending command was attempted, regardless of whether the
// individual executions succeeded.
type ConfirmResult struct {
	Confirmed bool              `json:"confirmed"`
	Message   string            `json:"message"`
	Executed  []ExecutedCommand `json:"executed,omitempty"`
}

// Gate owns the pending table. All operations serialize on one mutex and
// evaluate expiry against a single clock reading taken at entry.
type Gate struct {
	mu       sync.Mutex
	keyword  string
	timeout  time.Duration
	exec     Executor
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
	seq      uint64
	pending  map[string]*PendingCommand
	order    []string
}

func New(exec Executor, opts ...Option) *Gate {
	g := &Gate{
		keyword: "wolf-logic",
		timeout: 30 * time.Second,
		exec:    exec,
		log:     slog.Default(),
		now:     time.Now,
		pending: make(map[string]*PendingCommand),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Keyword returns the configured confirmation keyword.
func (g *Gate) Keyword() string { return g.keyword }

// Submit classifies the request and either executes it immediately (safe
// tier) or parks it pending confirmation and prompts the user once.
func (g *Gate) Submit(ctx context.Context, req ActionRequest) SubmitResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	tier := risk.Classify(req.Action)
	desc := risk.Describe(req.Action, req.Params)

	if !tier.NeedsConfirmation() {
		res := g.execute(ctx, req.Action, req.Params)
		return SubmitResult{Executed: true, Message: res.Message, Result: res}
	}

	now := g.now()
	g.seq++
	cmd := &PendingCommand{
		// Sequence keeps IDs unique when the same action arrives twice
		// within one second.
		ID:          fmt.Sprintf("%s_%d_%d", req.Action, now.Unix(), g.seq),
		Action:      req.Action,
		Description: desc,
		Tier:        tier,
		CreatedAt:   now,
		Params:      req.Params,
	}
	g.pending[cmd.ID] = cmd
	g.order = append(g.order, cmd.ID)

	g.log.Info("command pending confirmation",
		"id", cmd.ID, "risk", tier.String(), "description", desc)
	g.prompt(cmd)

	return SubmitResult{
		Pending: true,
		ID:      cmd.ID,
		Message: fmt.Sprintf("Command '%s' requires confirmation. Say '%s' to proceed.", req.Action, g.keyword),
	}
}

// Confirm checks the utterance for the keyword and, when present, runs
// every non-expired pending command in insertion order. Expired entries are
// dropped on both branches.
func (g *Gate) Confirm(ctx context.Context, utterance string) ConfirmResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if !strings.Contains(strings.ToLower(utterance), strings.ToLower(g.keyword)) {
		g.sweep(now)
		return ConfirmResult{
			Message: fmt.Sprintf("Invalid confirmation. Please say '%s' to confirm pending commands.", g.keyword),
		}
	}

	var executed []ExecutedCommand
	for _, id := range g.order {
		cmd := g.pending[id]
		if now.Sub(cmd.CreatedAt) <= g.timeout {
			res := g.execute(ctx, cmd.Action, cmd.Params)
			executed = append(executed, ExecutedCommand{Action: cmd.Action, Result: res})
		} else {
			g.log.Info("pending command expired", "id", id)
		}
		delete(g.pending, id)
	}
	g.order = g.order[:0]

	if len(executed) == 0 {
		return ConfirmResult{
			Message: "No pending commands to execute or all commands have timed out",
		}
	}

	g.log.Info("confirmed commands executed", "count", len(executed))
	return ConfirmResult{
		Confirmed: true,
		Message:   fmt.Sprintf("Executed %d confirmed commands", len(executed)),
		Executed:  executed,
	}
}

// Pending drops expired entries and returns the remainder in insertion
// order, each annotated with the time left to confirm it.
func (g *Gate) Pending() []PendingView {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweep(now)

	views := make([]PendingView, 0, len(g.order))
	for _, id := range g.order {
		cmd := g.pending[id]
		views = append(views, PendingView{
			ID:            cmd.ID,
			Action:        cmd.Action,
			Description:   cmd.Description,
			RiskLevel:     cmd.Tier.String(),
			TimeRemaining: (g.timeout - now.Sub(cmd.CreatedAt)).Seconds(),
		})
	}
	return views
}

// sweep removes expired entries. Callers hold g.mu.
func (g *Gate) sweep(now time.Time) {
	keep := g.order[:0]
	for _, id := range g.order {
		cmd := g.pending[id]
		if now.Sub(cmd.CreatedAt) <= g.timeout {
			keep = append(keep, id)
			continue
		}
		delete(g.pending, id)
		g.log.Info("pending command expired", "id", id)
	}
	g.order = keep
}

// execute calls the executor and folds a fault into a failed result so one
// bad collaborator call never corrupts gate state or aborts a batch.
func (g *Gate) execute(ctx context.Context, action string, params map[string]any) device.Result {
	res, err := g.exec.Execute(ctx, action, params)
	if err != nil {
		g.log.Error("executor fault", "action", action, "err", err)
		return device.Result{Message: fmt.Sprintf("Execution error: %v", err)}
	}
	return res
}

// prompt notifies the user that a command awaits confirmation. Delivery
// failure is logged; the pending entry stands either way since the user can
// still speak the keyword.
func (g *Gate) prompt(cmd *PendingCommand) {
	if g.notifier == nil {
		return
	}
	msg := fmt.Sprintf("%s\nAction: %s\nSay '%s' to confirm.",
		cmd.Tier.Warning(), cmd.Description, g.keyword)
	if err := g.notifier.Notify(msg); err != nil {
		g.log.Error("confirmation prompt not delivered", "id", cmd.ID, "err", err)
	}
}
