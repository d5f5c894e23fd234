package risk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		action string
		want   Tier
	}{
		{"open_file", Safe},
		{"copy_file", Safe},
		{"launch_app", Safe},
		{"lock_workstation", Safe},
		{"minimize_window", Safe},
		{"change_volume", Safe},
		{"create_file", Moderate},
		{"type_text", Moderate},
		{"click_mouse", Moderate},
		{"network_connect", Moderate},
		{"sleep", Moderate},
		{"delete_file", High},
		{"kill_process", High},
		{"run_powershell", High},
		{"run_terminal", High},
		{"network_disconnect", High},
		{"shutdown", Critical},
		{"restart", Critical},
		{"registry_edit", Critical},
		{"system_file_edit", Critical},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.action))
		})
	}
}

func TestClassifyUnknownIsHigh(t *testing.T) {
	assert.Equal(t, High, Classify("format_disk"))
	assert.Equal(t, High, Classify(""))
}

func TestNeedsConfirmation(t *testing.T) {
	assert.False(t, Safe.NeedsConfirmation())
	assert.True(t, Moderate.NeedsConfirmation())
	assert.True(t, High.NeedsConfirmation())
	assert.True(t, Critical.NeedsConfirmation())
}

func TestWarningPerTier(t *testing.T) {
	assert.Equal(t, "This action requires confirmation.", Moderate.Warning())
	assert.Contains(t, High.Warning(), "WARNING")
	assert.Contains(t, Critical.Warning(), "CRITICAL")
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "safe", Safe.String())
	assert.Equal(t, "critical", Critical.String())
	assert.Equal(t, "tier(9)", Tier(9).String())
}

func TestDescribeTemplates(t *testing.T) {
	tests := []struct {
		name   string
		action string
		params map[string]any
		want   string
	}{
		{"open file", "open_file", map[string]any{"path": "a.txt"}, "Open file: a.txt"},
		{"delete file", "delete_file", map[string]any{"path": "x"}, "DELETE file: x"},
		{"launch app", "launch_app", map[string]any{"app_name": "firefox"}, "Launch application: firefox"},
		{"kill process", "kill_process", map[string]any{"process_name": "chrome"}, "Force close process: chrome"},
		{"shutdown", "shutdown", nil, "Shutdown the computer"},
		{"restart", "restart", nil, "Restart the computer"},
		{"powershell", "run_powershell", map[string]any{"script": "Get-Date"}, "Run PowerShell command: Get-Date"},
		{"terminal via command param", "run_terminal", map[string]any{"command": "ls -la"}, "Run shell command: ls -la"},
		{"type text", "type_text", map[string]any{"text": "hello"}, "Type text: 'hello'"},
		{"registry", "registry_edit", map[string]any{"key": "HKLM\\Foo"}, "Edit registry: HKLM\\Foo"},
		{"missing param", "open_file", nil, "Open file: unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.action, tt.params))
		})
	}
}

func TestDescribeFallback(t *testing.T) {
	got := Describe("change_wallpaper", map[string]any{"path": "pic.png"})
	assert.Equal(t, "Execute change_wallpaper with parameters: map[path:pic.png]", got)
}

func TestDescribeClipsLongFreeText(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := Describe("type_text", map[string]any{"text": long})
	assert.Less(t, len(got), 200)
	assert.Contains(t, got, "...")

	// paths are never cut
	longPath := "/tmp/" + strings.Repeat("d/", 200) + "f.txt"
	assert.Contains(t, Describe("open_file", map[string]any{"path": longPath}), longPath)
}
