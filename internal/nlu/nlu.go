package nlu

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"

	"lobo/internal/gate"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one past exchange kept for conversational context.
type Turn struct {
	Role    string
	Content string
}

// Plan is what the model wants to happen: a spoken reply plus zero or more
// actions for the gate.
type Plan struct {
	Reply    string
	Commands []gate.ActionRequest
}

const promptTemplate = `You are Lobo, a voice-driven desktop assistant with full control over the user's workstation.

Your capabilities include:
- Launching applications and managing processes
- File operations (create, open, delete, move, copy)
- System control (shutdown, restart, lock, sleep)
- Keyboard and mouse automation
- Shell command execution
- System settings and network management

CRITICAL SECURITY PROTOCOL:
- Any operation that could modify the system is held until the user speaks the keyword '%s'
- Explain what you are about to do before an action that needs confirmation
- Never claim a risky command already ran; it executes only after the user confirms

OUTPUT FORMAT:
Output ONLY a JSON object. No markdown. No text around it.
{
  "reply": "<what you say to the user>",
  "commands": [
    {"action": "<snake_case action>", "parameters": { ... }}
  ]
}

RULES:
1. "reply" is spoken aloud. Keep it short and conversational.
2. "commands" lists the operations to perform. Leave it empty when the user is only chatting.
3. Canonical actions: launch_app, close_app, open_file, create_file, delete_file, move_file, copy_file, kill_process, run_terminal, run_powershell, type_text, press_key, click_mouse, shutdown, restart, sleep, lock_workstation, change_volume, change_brightness, change_wallpaper, network_connect, network_disconnect.
4. Canonical parameters: app_name, path, source, destination, process_name, script, command, text, key, x, y, button, level.
5. Never invent parameter values you were not given.
6. If the request is unclear, ask for clarification in "reply" and emit no commands.`

// Planner turns transcribed utterances into plans via an OpenAI-compatible
// chat endpoint (Ollama's /v1 in the default setup).
type Planner struct {
	client openai.Client
	model  string
	prompt string
	log    *slog.Logger
}

func NewPlanner(client openai.Client, model, keyword string, log *slog.Logger) *Planner {
	if log == nil {
		log = slog.Default()
	}
	return &Planner{
		client: client,
		model:  model,
		prompt: fmt.Sprintf(promptTemplate, keyword),
		log:    log,
	}
}

// NewClient builds an OpenAI-compatible client pointed at an Ollama host.
// Ollama ignores the API key but the SDK insists on one.
func NewClient(baseURL string, httpClient *http.Client) openai.Client {
	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/v1"),
		option.WithAPIKey("ollama"),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return openai.NewClient(opts...)
}

// Healthcheck verifies the model host answers at all.
func (p *Planner) Healthcheck(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Plan sends the system prompt, optional memory context, recent history and
// the new utterance, and parses the model's JSON answer. A model that
// answers in prose degrades to a plain reply with no commands.
func (p *Planner) Plan(ctx context.Context, history []Turn, memoryContext, utterance string) (Plan, error) {
	system := p.prompt
	if memoryContext != "" {
		system += "\n" + memoryContext
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	msgs = append(msgs, openai.SystemMessage(system))
	for _, t := range history {
		if t.Role == RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}
	msgs = append(msgs, openai.UserMessage(utterance))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openai.ChatModel(p.model),
	})
	if err != nil {
		return Plan{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Plan{}, fmt.Errorf("no choices in response")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return Plan{}, fmt.Errorf("empty message content")
	}

	p.log.Debug("model answered", "content", content)

	return parsePlan(content), nil
}

func parsePlan(content string) Plan {
	raw := extractJSON(content)
	if raw == "" || !gjson.Valid(raw) {
		return Plan{Reply: strings.TrimSpace(content)}
	}

	doc := gjson.Parse(raw)
	plan := Plan{Reply: strings.TrimSpace(doc.Get("reply").String())}

	doc.Get("commands").ForEach(func(_, c gjson.Result) bool {
		action := c.Get("action").String()
		if action == "" {
			return true
		}
		params := map[string]any{}
		for _, key := range []string{"parameters", "params"} {
			if m, ok := c.Get(key).Value().(map[string]any); ok {
				params = m
				break
			}
		}
		plan.Commands = append(plan.Commands, gate.ActionRequest{Action: action, Params: params})
		return true
	})

	if plan.Reply == "" && len(plan.Commands) == 0 {
		plan.Reply = strings.TrimSpace(content)
	}
	return plan
}

// extractJSON digs the JSON object out of a possibly fenced or
// prose-wrapped model answer.
func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start < 0 || end <= start {
			return ""
		}
		s = s[start : end+1]
	}
	return s
}
