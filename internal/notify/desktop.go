package notify

import "os/exec"

const appName = "Lobo"

// Desktop raises a notification via notify-send. Callers usually ignore
// the error: a missing notification daemon must not break the voice flow.
func Desktop(summary, body string) error {
	return exec.Command("notify-send", "-a", appName, summary, body).Run()
}

// Urgent is Desktop with critical urgency, for confirmation prompts.
func Urgent(summary, body string) error {
	return exec.Command("notify-send", "-a", appName, "-u", "critical", summary, body).Run()
}
