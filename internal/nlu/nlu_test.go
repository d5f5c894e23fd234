package nlu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlanBareJSON(t *testing.T) {
	plan := parsePlan(`{"reply": "Opening firefox now", "commands": [{"action": "launch_app", "parameters": {"app_name": "firefox"}}]}`)

	assert.Equal(t, "Opening firefox now", plan.Reply)
	require.Len(t, plan.Commands, 1)
	assert.Equal(t, "launch_app", plan.Commands[0].Action)
	assert.Equal(t, "firefox", plan.Commands[0].Params["app_name"])
}

func TestParsePlanFenced(t *testing.T) {
	content := "```json\n{\"reply\": \"done\", \"commands\": []}\n```"
	plan := parsePlan(content)

	assert.Equal(t, "done", plan.Reply)
	assert.Empty(t, plan.Commands)
}

func TestParsePlanProseWrapped(t *testing.T) {
	content := `Sure! Here is the plan: {"reply": "ok", "commands": [{"action": "shutdown", "parameters": {}}]} Hope that helps.`
	plan := parsePlan(content)

	assert.Equal(t, "ok", plan.Reply)
	require.Len(t, plan.Commands, 1)
	assert.Equal(t, "shutdown", plan.Commands[0].Action)
}

func TestParsePlanPlainProseFallsBackToReply(t *testing.T) {
	content := "I'm just here to chat, nothing to run."
	plan := parsePlan(content)

	assert.Equal(t, content, plan.Reply)
	assert.Empty(t, plan.Commands)
}

func TestParsePlanMultipleCommands(t *testing.T) {
	plan := parsePlan(`{
		"reply": "Cleaning up",
		"commands": [
			{"action": "kill_process", "parameters": {"process_name": "chrome"}},
			{"action": "delete_file", "parameters": {"path": "/tmp/x"}}
		]
	}`)

	require.Len(t, plan.Commands, 2)
	assert.Equal(t, "kill_process", plan.Commands[0].Action)
	assert.Equal(t, "delete_file", plan.Commands[1].Action)
}

func TestParsePlanAcceptsParamsAlias(t *testing.T) {
	plan := parsePlan(`{"reply": "r", "commands": [{"action": "press_key", "params": {"key": "Return"}}]}`)

	require.Len(t, plan.Commands, 1)
	assert.Equal(t, "Return", plan.Commands[0].Params["key"])
}

func TestParsePlanSkipsNamelessCommands(t *testing.T) {
	plan := parsePlan(`{"reply": "r", "commands": [{"parameters": {"x": 1}}, {"action": "sleep"}]}`)

	require.Len(t, plan.Commands, 1)
	assert.Equal(t, "sleep", plan.Commands[0].Action)
	assert.Empty(t, plan.Commands[0].Params)
}

func TestParsePlanJSONWithoutKnownFields(t *testing.T) {
	content := `{"note": "weird"}`
	plan := parsePlan(content)

	assert.Equal(t, content, plan.Reply)
	assert.Empty(t, plan.Commands)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, extractJSON(`noise {"a":1} trailing`))
	assert.Equal(t, "", extractJSON("no braces here"))
}

func TestPromptNamesKeyword(t *testing.T) {
	p := NewPlanner(NewClient("http://127.0.0.1:11434", nil), "llama3.2:3b", "wolf-logic", nil)
	assert.Contains(t, p.prompt, "'wolf-logic'")
}
