package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobo/internal/device"
)

type execCall struct {
	action string
	params map[string]any
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []execCall
	errOn map[string]error
}

func (f *fakeExecutor) Execute(_ context.Context, action string, params map[string]any) (device.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{action: action, params: params})
	if err := f.errOn[action]; err != nil {
		return device.Result{}, err
	}
	return device.Result{Success: true, Message: "done: " + action}, nil
}

func (f *fakeExecutor) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.action
	}
	return out
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeNotifier) Notify(message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return f.err
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestGate(t *testing.T) (*Gate, *fakeExecutor, *fakeNotifier, *fakeClock) {
	t.Helper()
	exec := &fakeExecutor{}
	notifier := &fakeNotifier{}
	clock := newFakeClock()
	g := New(exec,
		WithNotifier(notifier),
		WithClock(clock.Now),
	)
	return g, exec, notifier, clock
}

func TestSubmitSafeExecutesImmediately(t *testing.T) {
	g, exec, notifier, _ := newTestGate(t)

	res := g.Submit(context.Background(), ActionRequest{
		Action: "open_file",
		Params: map[string]any{"path": "a.txt"},
	})

	assert.True(t, res.Executed)
	assert.False(t, res.Pending)
	assert.True(t, res.Result.Success)
	assert.Equal(t, "done: open_file", res.Message)
	assert.Equal(t, []string{"open_file"}, exec.actions())
	assert.Empty(t, notifier.messages)
	assert.Empty(t, g.Pending())
}

func TestSubmitRiskyParksPending(t *testing.T) {
	g, exec, notifier, _ := newTestGate(t)

	res := g.Submit(context.Background(), ActionRequest{
		Action: "delete_file",
		Params: map[string]any{"path": "x"},
	})

	assert.False(t, res.Executed)
	assert.True(t, res.Pending)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "Command 'delete_file' requires confirmation. Say 'wolf-logic' to proceed.", res.Message)
	assert.Empty(t, exec.actions())

	require.Len(t, notifier.messages, 1)
	prompt := notifier.messages[0]
	assert.Contains(t, prompt, "WARNING")
	assert.Contains(t, prompt, "Action: DELETE file: x")
	assert.Contains(t, prompt, "Say 'wolf-logic' to confirm.")

	views := g.Pending()
	require.Len(t, views, 1)
	assert.Equal(t, "delete_file", views[0].Action)
	assert.Equal(t, "high", views[0].RiskLevel)
	assert.InDelta(t, 30.0, views[0].TimeRemaining, 0.01)
}

func TestSubmitUnknownActionRequiresConfirmation(t *testing.T) {
	g, exec, _, _ := newTestGate(t)

	res := g.Submit(context.Background(), ActionRequest{Action: "defrag_the_moon"})

	assert.True(t, res.Pending)
	assert.Empty(t, exec.actions())

	views := g.Pending()
	require.Len(t, views, 1)
	assert.Equal(t, "high", views[0].RiskLevel)
}

func TestConfirmExecutesAllPendingInOrder(t *testing.T) {
	g, exec, _, _ := newTestGate(t)
	ctx := context.Background()

	g.Submit(ctx, ActionRequest{Action: "delete_file", Params: map[string]any{"path": "1"}})
	g.Submit(ctx, ActionRequest{Action: "type_text", Params: map[string]any{"text": "hi"}})
	g.Submit(ctx, ActionRequest{Action: "shutdown"})

	res := g.Confirm(ctx, "ok wolf-logic go ahead")

	assert.True(t, res.Confirmed)
	assert.Equal(t, "Executed 3 confirmed commands", res.Message)
	require.Len(t, res.Executed, 3)
	assert.Equal(t, "delete_file", res.Executed[0].Action)
	assert.Equal(t, "type_text", res.Executed[1].Action)
	assert.Equal(t, "shutdown", res.Executed[2].Action)
	assert.Equal(t, []string{"delete_file", "type_text", "shutdown"}, exec.actions())
	assert.Empty(t, g.Pending())
}

func TestConfirmKeywordCaseInsensitive(t *testing.T) {
	g, exec, _, _ := newTestGate(t)
	ctx := context.Background()

	g.Submit(ctx, ActionRequest{Action: "kill_process", Params: map[string]any{"process_name": "x"}})
	res := g.Confirm(ctx, "WOLF-LOGIC")

	assert.True(t, res.Confirmed)
	assert.Equal(t, []string{"kill_process"}, exec.actions())
}

func TestConfirmWrongKeywordKeepsPending(t *testing.T) {
	g, exec, _, _ := newTestGate(t)
	ctx := context.Background()

	g.Submit(ctx, ActionRequest{Action: "delete_file", Params: map[string]any{"path": "x"}})
	res := g.Confirm(ctx, "yes please do it")

	assert.False(t, res.Confirmed)
	assert.Equal(t, "Invalid confirmation. Please say 'wolf-logic' to confirm pending commands.", res.Message)
	assert.Empty(t, exec.actions())
	assert.Len(t, g.Pending(), 1)
}

func TestConfirmAfterTimeoutExecutesNothing(t *testing.T) {
	g, exec, _, clock := newTestGate(t)
	ctx := context.Background()

	sub := g.Submit(ctx, ActionRequest{Action: "delete_file", Params: map[string]any{"path": "x"}})
	require.True(t, sub.Pending)

	clock.Advance(31 * time.Second)
	res := g.Confirm(ctx, "wolf-logic")

	assert.False(t, res.Confirmed)
	assert.Equal(t, "No pending commands to execute or all commands have timed out", res.Message)
	assert.Empty(t, exec.actions())
	assert.Empty(t, g.Pending())
}

func TestConfirmAtExactTimeoutStillExecutes(t *testing.T) {
	g, exec, _, clock := newTestGate(t)
	ctx := context.Background()

	g.Submit(ctx, ActionRequest{Action: "delete_file", Params: map[string]any{"path": "x"}})
	clock.Advance(30 * time.Second)

	res := g.Confirm(ctx, "wolf-logic")

	assert.True(t, res.Confirmed)
	assert.Equal(t, []string{"delete_file"}, exec.actions())
}

func TestConfirmMixedExpiry(t *testing.T) {
	g, exec, _, clock := newTestGate(t)
	ctx := context.Background()

	g.Submit(ctx, ActionRequest{Action: "delete_file", Params: map[string]any{"path": "old"}})
	clock.Advance(25 * time.Second)
	g.Submit(ctx, ActionRequest{Action: "kill_process", Params: map[string]any{"process_name": "p"}})
	clock.Advance(10 * time.Second)

	// first entry is now 35s old, second 10s old
	res := g.Confirm(ctx, "wolf-logic")

	assert.True(t, res.Confirmed)
	assert.Equal(t, "Executed 1 confirmed commands", res.Message)
	assert.Equal(t, []string{"kill_process"}, exec.actions())
	assert.Empty(t, g.Pending())
}

func TestWrongKeywordStillSweepsExpired(t *testing.T) {
	g, _, _, clock := newTestGate(t)
	ctx := context.Background()

	g.Submit(ctx, ActionRequest{Action: "delete_file", Params: map[string]any{"path": "old"}})
	clock.Advance(31 * time.Second)
	g.Submit(ctx, ActionRequest{Action: "kill_process", Params: map[string]any{"process_name": "p"}})

	res := g.Confirm(ctx, "nope")
	assert.False(t, res.Confirmed)

	views := g.Pending()
	require.Len(t, views, 1)
	assert.Equal(t, "kill_process", views[0].Action)
}

func TestPendingSweepsExpiredRepeatedly(t *testing.T) {
	g, exec, _, clock := newTestGate(t)
	ctx := context.Background()

	g.Submit(ctx, ActionRequest{Action: "delete_file", Params: map[string]any{"path": "x"}})
	clock.Advance(20 * time.Second)

	views := g.Pending()
	require.Len(t, views, 1)
	assert.InDelta(t, 10.0, views[0].TimeRemaining, 0.01)

	clock.Advance(11 * time.Second)
	assert.Empty(t, g.Pending())

	// a later confirm sees a clean table
	res := g.Confirm(ctx, "wolf-logic")
	assert.False(t, res.Confirmed)
	assert.Empty(t, exec.actions())
}

func TestConfirmEmptyTableIdempotent(t *testing.T) {
	g, exec, _, _ := newTestGate(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res := g.Confirm(ctx, "wolf-logic")
		assert.False(t, res.Confirmed)
		assert.Equal(t, "No pending commands to execute or all commands have timed out", res.Message)
	}
	assert.Empty(t, exec.actions())
}

func TestExecutorFaultFoldedIntoResult(t *testing.T) {
	g, exec, _, _ := newTestGate(t)
	exec.errOn = map[string]error{"kill_process": errors.New("boom")}
	ctx := context.Background()

	g.Submit(ctx, ActionRequest{Action: "kill_process", Params: map[string]any{"process_name": "p"}})
	g.Submit(ctx, ActionRequest{Action: "delete_file", Params: map[string]any{"path": "x"}})

	res := g.Confirm(ctx, "wolf-logic")

	require.True(t, res.Confirmed)
	require.Len(t, res.Executed, 2)
	assert.False(t, res.Executed[0].Result.Success)
	assert.Contains(t, res.Executed[0].Result.Message, "Execution error")
	assert.True(t, res.Executed[1].Result.Success)
	assert.Empty(t, g.Pending())
}

func TestNotifierFailureKeepsEntryPending(t *testing.T) {
	g, exec, notifier, _ := newTestGate(t)
	notifier.err = errors.New("speaker offline")
	ctx := context.Background()

	res := g.Submit(ctx, ActionRequest{Action: "shutdown"})
	assert.True(t, res.Pending)
	assert.Len(t, g.Pending(), 1)

	confirm := g.Confirm(ctx, "wolf-logic")
	assert.True(t, confirm.Confirmed)
	assert.Equal(t, []string{"shutdown"}, exec.actions())
}

func TestBurstIDsUnique(t *testing.T) {
	g, _, _, _ := newTestGate(t)
	ctx := context.Background()

	a := g.Submit(ctx, ActionRequest{Action: "delete_file", Params: map[string]any{"path": "1"}})
	b := g.Submit(ctx, ActionRequest{Action: "delete_file", Params: map[string]any{"path": "2"}})

	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, g.Pending(), 2)
}

func TestCustomKeywordAndTimeout(t *testing.T) {
	exec := &fakeExecutor{}
	clock := newFakeClock()
	g := New(exec,
		WithKeyword("open-sesame"),
		WithTimeout(5*time.Second),
		WithClock(clock.Now),
	)
	ctx := context.Background()

	sub := g.Submit(ctx, ActionRequest{Action: "restart"})
	assert.Contains(t, sub.Message, "open-sesame")

	assert.False(t, g.Confirm(ctx, "wolf-logic").Confirmed)

	clock.Advance(6 * time.Second)
	assert.False(t, g.Confirm(ctx, "open-sesame").Confirmed)
	assert.Empty(t, exec.actions())
}

func TestShutdownScenario(t *testing.T) {
	g, exec, notifier, clock := newTestGate(t)
	ctx := context.Background()

	sub := g.Submit(ctx, ActionRequest{Action: "shutdown"})
	assert.True(t, sub.Pending)
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "CRITICAL")
	assert.Contains(t, notifier.messages[0], "wolf-logic")
	assert.Contains(t, notifier.messages[0], "Shutdown the computer")

	open := g.Submit(ctx, ActionRequest{Action: "open_file", Params: map[string]any{"path": "a.txt"}})
	assert.True(t, open.Executed)
	assert.Equal(t, []string{"open_file"}, exec.actions())
	assert.Len(t, g.Pending(), 1)

	clock.Advance(5 * time.Second)
	res := g.Confirm(ctx, "ok wolf-logic go")
	assert.True(t, res.Confirmed)
	assert.Equal(t, []string{"open_file", "shutdown"}, exec.actions())
	assert.Empty(t, g.Pending())

	again := g.Confirm(ctx, "wolf-logic")
	assert.False(t, again.Confirmed)
	assert.Contains(t, again.Message, "No pending commands")
}

func TestConcurrentSubmitAndConfirm(t *testing.T) {
	g, exec, _, _ := newTestGate(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Submit(ctx, ActionRequest{Action: "delete_file", Params: map[string]any{"path": "f"}})
		}()
	}
	wg.Wait()

	assert.Len(t, g.Pending(), 20)

	res := g.Confirm(ctx, "wolf-logic")
	assert.True(t, res.Confirmed)
	assert.Len(t, res.Executed, 20)
	assert.Len(t, exec.actions(), 20)
	assert.Empty(t, g.Pending())
}
