// Package device runs the OS-level actions the assistant is asked for.
// Every expected failure (missing file, tool exit code, unsupported action)
// comes back as a Result with Success=false; errors are reserved for
// infrastructure faults such as a cancelled context.
package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Result is the outcome of one executed action.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func failf(format string, args ...any) Result {
	return Result{Message: fmt.Sprintf(format, args...)}
}

// ShellExecutor dispatches action names to system tools and the filesystem.
type ShellExecutor struct {
	log     *slog.Logger
	timeout time.Duration
}

func NewShellExecutor(log *slog.Logger) *ShellExecutor {
	if log == nil {
		log = slog.Default()
	}
	return &ShellExecutor{log: log, timeout: 30 * time.Second}
}

// commonApps maps the names models tend to emit to local binaries.
var commonApps = map[string]string{
	"notepad":    "gedit",
	"editor":     "gedit",
	"calculator": "gnome-calculator",
	"chrome":     "google-chrome",
	"edge":       "microsoft-edge",
	"firefox":    "firefox",
	"browser":    "firefox",
	"explorer":   "nautilus",
	"files":      "nautilus",
	"terminal":   "foot",
}

func (e *ShellExecutor) Execute(ctx context.Context, action string, params map[string]any) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.log.Debug("executing action", "action", action)

	switch action {
	case "launch_app":
		return e.launchApp(str(params, "app_name"), str(params, "path")), nil
	case "close_app":
		return e.signalProcess(ctx, str(params, "app_name"), false), nil
	case "kill_process":
		return e.signalProcess(ctx, str(params, "process_name"), true), nil
	case "open_file":
		return e.openFile(ctx, str(params, "path")), nil
	case "create_file":
		return e.createFile(str(params, "path"), str(params, "content")), nil
	case "copy_file":
		return e.copyFile(str(params, "source"), str(params, "destination")), nil
	case "move_file":
		return e.moveFile(str(params, "source"), str(params, "destination")), nil
	case "delete_file":
		return e.deleteFile(str(params, "path")), nil
	case "run_powershell", "run_cmd", "run_terminal":
		return e.runShell(ctx, scriptParam(params)), nil
	case "type_text":
		return e.typeText(ctx, str(params, "text")), nil
	case "press_key":
		return e.pressKey(ctx, str(params, "key")), nil
	case "click_mouse":
		return e.clickMouse(ctx, params), nil
	case "shutdown":
		return e.systemctl(ctx, "poweroff", "Computer shutting down"), nil
	case "restart":
		return e.systemctl(ctx, "reboot", "Computer restarting"), nil
	case "sleep":
		return e.systemctl(ctx, "suspend", "Computer going to sleep"), nil
	case "lock_workstation":
		return e.lockWorkstation(ctx), nil
	case "change_volume":
		return e.changeVolume(ctx, params), nil
	case "change_brightness":
		return e.changeBrightness(ctx, params), nil
	case "network_connect":
		return e.networking(ctx, "on"), nil
	case "network_disconnect":
		return e.networking(ctx, "off"), nil
	default:
		return failf("Command '%s' not implemented yet", action), nil
	}
}

func (e *ShellExecutor) launchApp(appName, path string) Result {
	bin := path
	if bin == "" {
		if appName == "" {
			return failf("No application name provided")
		}
		if mapped, ok := commonApps[strings.ToLower(appName)]; ok {
			bin = mapped
		} else {
			bin = strings.ToLower(appName)
		}
	}

	// Detached on purpose: the app must outlive any request context.
	cmd := exec.Command(bin)
	if err := cmd.Start(); err != nil {
		return failf("Failed to launch %s: %v", appName, err)
	}
	go cmd.Wait()

	return Result{
		Success: true,
		Message: fmt.Sprintf("Launched %s", appName),
		Data:    map[string]any{"app": appName, "path": path, "pid": cmd.Process.Pid},
	}
}

func (e *ShellExecutor) signalProcess(ctx context.Context, name string, force bool) Result {
	if name == "" {
		return failf("No process name provided")
	}

	args := []string{name}
	verb := "Closed"
	if force {
		args = []string{"-9", name}
		verb = "Killed"
	}

	out, err := exec.CommandContext(ctx, "pkill", args...).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return failf("No process named '%s' found", name)
		}
		return failf("Failed to signal %s: %v: %s", name, err, strings.TrimSpace(string(out)))
	}

	return Result{
		Success: true,
		Message: fmt.Sprintf("%s process: %s", verb, name),
		Data:    map[string]any{"process": name},
	}
}

func (e *ShellExecutor) openFile(ctx context.Context, path string) Result {
	if path == "" {
		return failf("No file path provided")
	}
	if _, err := os.Stat(path); err != nil {
		return failf("Failed to open file: %v", err)
	}
	if err := exec.CommandContext(ctx, "xdg-open", path).Run(); err != nil {
		return failf("Failed to open file: %v", err)
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Opened file: %s", path),
		Data:    map[string]any{"path": path},
	}
}

func (e *ShellExecutor) createFile(path, content string) Result {
	if path == "" {
		return failf("No file path provided")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return failf("Failed to create file: %v", err)
	}
	defer f.Close()
	if content != "" {
		if _, err := f.WriteString(content); err != nil {
			return failf("Failed to write file: %v", err)
		}
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Created file: %s", path),
		Data:    map[string]any{"path": path},
	}
}

func (e *ShellExecutor) copyFile(src, dst string) Result {
	if src == "" || dst == "" {
		return failf("Copy needs source and destination paths")
	}
	in, err := os.Open(src)
	if err != nil {
		return failf("Failed to copy file: %v", err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return failf("Failed to copy file: %v", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return failf("Failed to copy file: %v", err)
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Copied %s to %s", src, dst),
		Data:    map[string]any{"source": src, "destination": dst},
	}
}

func (e *ShellExecutor) moveFile(src, dst string) Result {
	if src == "" || dst == "" {
		return failf("Move needs source and destination paths")
	}
	if err := os.Rename(src, dst); err != nil {
		return failf("Failed to move file: %v", err)
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Moved %s to %s", src, dst),
		Data:    map[string]any{"source": src, "destination": dst},
	}
}

func (e *ShellExecutor) deleteFile(path string) Result {
	if path == "" {
		return failf("No file path provided")
	}
	if err := os.Remove(path); err != nil {
		return failf("Failed to delete file: %v", err)
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Deleted file: %s", path),
		Data:    map[string]any{"path": path},
	}
}

// maxShellOutput bounds captured stdout/stderr in results so a chatty
// script cannot flood the reply path.
const maxShellOutput = 2000

func (e *ShellExecutor) runShell(ctx context.Context, script string) Result {
	if script == "" {
		return failf("No command provided")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return failf("Shell execution failed: %v", err)
		}
		code = exitErr.ExitCode()
	}

	return Result{
		Success: code == 0,
		Message: "Shell command executed",
		Data: map[string]any{
			"stdout":     clipOutput(stdout.String()),
			"stderr":     clipOutput(stderr.String()),
			"returncode": code,
		},
	}
}

func clipOutput(s string) string {
	if len(s) <= maxShellOutput {
		return s
	}
	return s[:maxShellOutput] + fmt.Sprintf("... (truncated, %d more chars)", len(s)-maxShellOutput)
}

func (e *ShellExecutor) typeText(ctx context.Context, text string) Result {
	if text == "" {
		return failf("No text provided")
	}
	if err := exec.CommandContext(ctx, "xdotool", "type", "--clearmodifiers", text).Run(); err != nil {
		return failf("Failed to type text: %v", err)
	}
	shown := text
	if len(shown) > 50 {
		shown = shown[:50] + "..."
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Typed text: %s", shown),
		Data:    map[string]any{"text": text},
	}
}

func (e *ShellExecutor) pressKey(ctx context.Context, key string) Result {
	if key == "" {
		return failf("No key provided")
	}
	if err := exec.CommandContext(ctx, "xdotool", "key", key).Run(); err != nil {
		return failf("Failed to press key: %v", err)
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Pressed key: %s", key),
		Data:    map[string]any{"key": key},
	}
}

var mouseButtons = map[string]string{"left": "1", "middle": "2", "right": "3"}

func (e *ShellExecutor) clickMouse(ctx context.Context, params map[string]any) Result {
	button, ok := mouseButtons[strings.ToLower(strOr(params, "button", "left"))]
	if !ok {
		return failf("Unknown mouse button '%s'", str(params, "button"))
	}

	if x, okX := num(params, "x"); okX {
		y, okY := num(params, "y")
		if !okY {
			return failf("Mouse click needs both x and y")
		}
		move := exec.CommandContext(ctx, "xdotool", "mousemove",
			strconv.Itoa(int(x)), strconv.Itoa(int(y)))
		if err := move.Run(); err != nil {
			return failf("Failed to move mouse: %v", err)
		}
	}

	if err := exec.CommandContext(ctx, "xdotool", "click", button).Run(); err != nil {
		return failf("Failed to click mouse: %v", err)
	}
	return Result{
		Success: true,
		Message: "Mouse clicked",
		Data:    map[string]any{"button": button},
	}
}

func (e *ShellExecutor) systemctl(ctx context.Context, verb, message string) Result {
	if err := exec.CommandContext(ctx, "systemctl", verb).Run(); err != nil {
		return failf("Failed to %s: %v", verb, err)
	}
	return Result{
		Success: true,
		Message: message,
		Data:    map[string]any{"action": verb},
	}
}

func (e *ShellExecutor) lockWorkstation(ctx context.Context) Result {
	if err := exec.CommandContext(ctx, "loginctl", "lock-session").Run(); err != nil {
		return failf("Failed to lock workstation: %v", err)
	}
	return Result{
		Success: true,
		Message: "Workstation locked",
		Data:    map[string]any{"action": "lock"},
	}
}

func (e *ShellExecutor) changeVolume(ctx context.Context, params map[string]any) Result {
	level, ok := num(params, "level")
	if !ok {
		return failf("No volume level provided")
	}
	if level < 0 {
		level = 0
	}
	if level > 150 {
		level = 150
	}
	arg := fmt.Sprintf("%d%%", int(level))
	if err := exec.CommandContext(ctx, "pactl", "set-sink-volume", "@DEFAULT_SINK@", arg).Run(); err != nil {
		return failf("Failed to change volume: %v", err)
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Volume set to %s", arg),
		Data:    map[string]any{"level": int(level)},
	}
}

func (e *ShellExecutor) changeBrightness(ctx context.Context, params map[string]any) Result {
	level, ok := num(params, "level")
	if !ok {
		return failf("No brightness level provided")
	}
	arg := fmt.Sprintf("%d%%", int(level))
	if err := exec.CommandContext(ctx, "brightnessctl", "set", arg).Run(); err != nil {
		return failf("Failed to change brightness: %v", err)
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Brightness set to %s", arg),
		Data:    map[string]any{"level": int(level)},
	}
}

func (e *ShellExecutor) networking(ctx context.Context, state string) Result {
	if err := exec.CommandContext(ctx, "nmcli", "networking", state).Run(); err != nil {
		return failf("Failed to turn networking %s: %v", state, err)
	}
	msg := "Network connected"
	if state == "off" {
		msg = "Network disconnected"
	}
	return Result{
		Success: true,
		Message: msg,
		Data:    map[string]any{"networking": state},
	}
}

// --- parameter helpers ---

func str(params map[string]any, key string) string {
	return strOr(params, key, "")
}

func strOr(params map[string]any, key, def string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func num(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func scriptParam(params map[string]any) string {
	if s := str(params, "script"); s != "" {
		return s
	}
	return str(params, "command")
}
