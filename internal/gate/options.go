package gate

import (
	"log/slog"
	"time"
)

// Option configures a Gate.
type Option func(*Gate)

// WithKeyword sets the confirmation keyword the user must speak.
func WithKeyword(keyword string) Option {
	return func(g *Gate) {
		if keyword != "" {
			g.keyword = keyword
		}
	}
}

// WithTimeout sets how long a pending command stays confirmable.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithNotifier sets the channel confirmation prompts are delivered on.
func WithNotifier(n Notifier) Option {
	return func(g *Gate) {
		g.notifier = n
	}
}

// WithLogger sets the logger for the gate.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.log = logger
		}
	}
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}
