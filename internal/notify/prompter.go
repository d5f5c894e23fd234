package notify

import (
	"log/slog"
	"strings"
)

type Speaker interface {
	Speak(text string) error
}

// Prompter delivers confirmation prompts: spoken aloud, mirrored as an
// urgent desktop notification, and logged. Speech is the channel that
// matters, so only a speech failure is reported to the caller.
type Prompter struct {
	speaker Speaker
	log     *slog.Logger
}

func NewPrompter(speaker Speaker, log *slog.Logger) *Prompter {
	if log == nil {
		log = slog.Default()
	}
	return &Prompter{speaker: speaker, log: log}
}

func (p *Prompter) Notify(message string) error {
	summary, _, _ := strings.Cut(message, "\n")
	if err := Urgent(summary, message); err != nil {
		p.log.Debug("desktop notification failed", "err", err)
	}

	p.log.Info("confirmation prompt", "message", message)

	if p.speaker == nil {
		return nil
	}
	return p.speaker.Speak(message)
}
