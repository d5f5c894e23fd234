package assistant

import "log/slog"

type Option func(*Assistant)

func WithSpeaker(s Speaker) Option {
	return func(a *Assistant) { a.speaker = s }
}

// WithMemory enables long-term memory lookups and writes. limit caps how
// many memories are folded into each prompt.
func WithMemory(m MemoryStore, limit int) Option {
	return func(a *Assistant) {
		a.mem = m
		if limit > 0 {
			a.memLimit = limit
		}
	}
}

func WithQueueSize(n int) Option {
	return func(a *Assistant) {
		if n > 0 {
			a.queue = make(chan Utterance, n)
		}
	}
}

// WithModelName records which model produced each stored interaction.
func WithModelName(name string) Option {
	return func(a *Assistant) { a.model = name }
}

func WithLogger(log *slog.Logger) Option {
	return func(a *Assistant) {
		if log != nil {
			a.log = log
		}
	}
}
