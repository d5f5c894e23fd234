package risk

import (
	"fmt"
)

// Tier grades how much damage an action can do if it runs unattended.
type Tier int

const (
	Safe Tier = iota
	Moderate
	High
	Critical
)

func (t Tier) String() string {
	switch t {
	case Safe:
		return "safe"
	case Moderate:
		return "moderate"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// NeedsConfirmation reports whether the tier requires a spoken confirmation
// before the action may run.
func (t Tier) NeedsConfirmation() bool { return t != Safe }

// Warning returns the prompt prefix spoken before the action description.
func (t Tier) Warning() string {
	switch t {
	case High:
		return "⚠️ WARNING: This is a potentially risky operation!"
	case Critical:
		return "🚨 CRITICAL: This operation could significantly impact your system!"
	default:
		return "This action requires confirmation."
	}
}

var tiers = map[string]Tier{
	// file operations
	"open_file":   Safe,
	"create_file": Moderate,
	"delete_file": High,
	"move_file":   Moderate,
	"copy_file":   Safe,

	// application control
	"launch_app":   Safe,
	"close_app":    Safe,
	"kill_process": High,

	// system control
	"shutdown":         Critical,
	"restart":          Critical,
	"sleep":            Moderate,
	"lock_workstation": Safe,

	// window management
	"minimize_window": Safe,
	"maximize_window": Safe,
	"close_window":    Safe,
	"switch_window":   Safe,

	// input control
	"type_text":   Moderate,
	"press_key":   Moderate,
	"click_mouse": Moderate,

	// system settings
	"change_volume":     Safe,
	"change_brightness": Safe,
	"change_wallpaper":  Moderate,

	// network
	"network_disconnect": High,
	"network_connect":    Moderate,

	// registry / system files
	"registry_edit":    Critical,
	"system_file_edit": Critical,

	// shells
	"run_powershell": High,
	"run_cmd":        High,
	"run_terminal":   High,
}

// Classify maps an action name to its tier. Actions not in the table come
// back High so that nothing unknown runs without confirmation.
func Classify(action string) Tier {
	t, ok := tiers[action]
	if !ok {
		return High
	}
	return t
}

// maxFreeText bounds free-text parameter values (scripts, text to type) in
// descriptions so TTS does not read a whole script aloud. Paths and names
// are never cut.
const maxFreeText = 120

// Describe renders a human-readable sentence for the action, used verbatim
// in confirmation prompts.
func Describe(action string, params map[string]any) string {
	switch action {
	case "open_file":
		return "Open file: " + str(params, "path")
	case "delete_file":
		return "DELETE file: " + str(params, "path")
	case "launch_app":
		return "Launch application: " + str(params, "app_name")
	case "kill_process":
		return "Force close process: " + str(params, "process_name")
	case "shutdown":
		return "Shutdown the computer"
	case "restart":
		return "Restart the computer"
	case "run_powershell":
		return "Run PowerShell command: " + clip(script(params), maxFreeText)
	case "run_cmd", "run_terminal":
		return "Run shell command: " + clip(script(params), maxFreeText)
	case "type_text":
		return "Type text: '" + clip(strOr(params, "text", ""), maxFreeText) + "'"
	case "registry_edit":
		return "Edit registry: " + str(params, "key")
	default:
		return fmt.Sprintf("Execute %s with parameters: %v", action, params)
	}
}

func str(params map[string]any, key string) string {
	return strOr(params, key, "unknown")
}

func strOr(params map[string]any, key, def string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return s
}

// script pulls the command text of a shell action, accepting either
// parameter name models tend to emit.
func script(params map[string]any) string {
	if s := strOr(params, "script", ""); s != "" {
		return s
	}
	return str(params, "command")
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
