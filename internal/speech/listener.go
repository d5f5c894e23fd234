// Package speech runs the always-on microphone loop: wait for the wake
// word, capture the command that follows, hand it to the assistant.
package speech

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"lobo/internal/assistant"
	"lobo/pkg/stt"
)

const (
	ackPhrase = "Yes? How can I help you?"

	duckFactor = 0.2
	duckFade   = 150 * time.Millisecond
)

type Recorder interface {
	RecordAuto(ctx context.Context) ([]float32, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, pcm16k []float32) (stt.Result, error)
}

type Sink interface {
	Enqueue(utt assistant.Utterance) bool
}

type Chimer interface {
	Play()
}

type Ducker interface {
	Duck(ctx context.Context, factor float64, duration time.Duration) error
	Restore(ctx context.Context, duration time.Duration) error
}

type Speaker interface {
	Speak(text string) error
}

type Listener struct {
	rec     Recorder
	stt     Transcriber
	sink    Sink
	chime   Chimer  // nil: no audio cue
	ducker  Ducker  // nil: no ducking
	speaker Speaker // nil: silent acknowledgement
	wake    string
	maxLen  int
	log     *slog.Logger
}

func NewListener(rec Recorder, tr Transcriber, sink Sink, wakeWord string, maxCommandLen int, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	if maxCommandLen <= 0 {
		maxCommandLen = 1000
	}
	return &Listener{
		rec:    rec,
		stt:    tr,
		sink:   sink,
		wake:   wakeWord,
		maxLen: maxCommandLen,
		log:    log,
	}
}

func (l *Listener) SetChime(c Chimer)    { l.chime = c }
func (l *Listener) SetDucker(d Ducker)   { l.ducker = d }
func (l *Listener) SetSpeaker(s Speaker) { l.speaker = s }

// Run listens until ctx is cancelled. Anything said together with the wake
// word is taken as the command; otherwise the listener acknowledges and
// captures the next utterance.
func (l *Listener) Run(ctx context.Context) {
	l.log.Info("listening for wake word", "wake_word", l.wake)

	for ctx.Err() == nil {
		text, err := l.capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Error("capture failed", "err", err)
			continue
		}
		if tooShort(text) {
			continue
		}

		if !strings.Contains(strings.ToLower(text), strings.ToLower(l.wake)) {
			l.log.Debug("no wake word", "heard", text)
			continue
		}

		cmd := stripWake(text, l.wake)
		if tooShort(cmd) {
			cmd = l.captureCommand(ctx)
			if ctx.Err() != nil {
				return
			}
		}
		if tooShort(cmd) {
			l.log.Info("wake word heard but no command followed")
			continue
		}

		l.submit(cmd)
	}
}

// captureCommand acknowledges the wake word, then records with other audio
// ducked so music does not bleed into the command.
func (l *Listener) captureCommand(ctx context.Context) string {
	if l.chime != nil {
		l.chime.Play()
	}
	if l.speaker != nil {
		if err := l.speaker.Speak(ackPhrase); err != nil {
			l.log.Error("acknowledgement failed", "err", err)
		}
	}

	if l.ducker != nil {
		if err := l.ducker.Duck(ctx, duckFactor, duckFade); err != nil {
			l.log.Debug("duck failed", "err", err)
		}
		defer func() {
			if err := l.ducker.Restore(ctx, duckFade); err != nil {
				l.log.Debug("restore failed", "err", err)
			}
		}()
	}

	text, err := l.capture(ctx)
	if err != nil {
		if ctx.Err() == nil {
			l.log.Error("command capture failed", "err", err)
		}
		return ""
	}
	return text
}

func (l *Listener) capture(ctx context.Context) (string, error) {
	pcm, err := l.rec.RecordAuto(ctx)
	if err != nil {
		return "", err
	}
	if len(pcm) == 0 {
		return "", nil
	}

	res, err := l.stt.Transcribe(ctx, pcm)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}

func (l *Listener) submit(cmd string) {
	if utf8.RuneCountInString(cmd) > l.maxLen {
		l.log.Warn("command truncated", "limit", l.maxLen)
		runes := []rune(cmd)
		cmd = string(runes[:l.maxLen])
	}

	l.log.Info("command recognized", "text", cmd)
	l.sink.Enqueue(assistant.Utterance{
		Text:   cmd,
		Source: "voice",
		At:     time.Now(),
	})
}

// stripWake drops the wake word and everything before it, so "please lobo
// open firefox" yields "open firefox".
func stripWake(text, wake string) string {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(wake))
	if idx < 0 {
		return ""
	}
	rest := text[idx+len(wake):]
	return strings.TrimLeft(rest, " \t,.!?")
}

// tooShort filters whisper artifacts like "uh" or punctuation-only output.
func tooShort(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) <= 2
}
