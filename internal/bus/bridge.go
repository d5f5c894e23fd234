package bus

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"lobo/internal/assistant"
	"lobo/pkg/audioconv"
	"lobo/pkg/stt"
)

const (
	selfName   = "lobo"
	redialWait = 5 * time.Second
	busyPhrase = "I'm handling something else right now. Try again in a moment."
)

var errWithoutSTT = errors.New("no transcriber attached")

type Sink interface {
	Enqueue(utt assistant.Utterance) bool
}

// Bridge feeds hub utterances into the assistant and routes replies back.
// It keeps redialing while the hub is down.
type Bridge struct {
	url  string
	sink Sink
	stt  stt.Transcriber // nil: audio frames are rejected
	log  *slog.Logger
}

func NewBridge(url string, sink Sink, transcriber stt.Transcriber, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{url: url, sink: sink, stt: transcriber, log: log}
}

func (b *Bridge) Run(ctx context.Context) {
	for ctx.Err() == nil {
		conn, err := Dial(b.url)
		if err != nil {
			b.log.Warn("hub dial failed", "url", b.url, "err", err)
			if !sleepCtx(ctx, redialWait) {
				return
			}
			continue
		}

		b.serve(ctx, conn)
		conn.Close()

		if !sleepCtx(ctx, redialWait) {
			return
		}
	}
}

func (b *Bridge) serve(ctx context.Context, conn *Conn) {
	// Unblock the read loop when ctx ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	b.log.Info("connected to hub", "url", b.url)

	for {
		msg, err := conn.Read()
		if err != nil {
			if ctx.Err() == nil {
				b.log.Warn("hub read failed", "err", err)
			}
			return
		}
		if msg.Kind != "utterance" {
			continue
		}
		b.handle(ctx, conn, msg)
	}
}

func (b *Bridge) handle(ctx context.Context, conn *Conn, msg Message) {
	text := strings.TrimSpace(msg.Content)

	if len(msg.Audio) > 0 {
		transcribed, err := b.transcribe(ctx, msg.Audio)
		if err != nil {
			b.log.Error("hub audio rejected", "from", msg.From, "err", err)
			b.reply(conn, msg, "I couldn't make out that audio.")
			return
		}
		text = transcribed
	}
	if text == "" {
		return
	}

	replyCh := make(chan string, 1)
	utt := assistant.Utterance{
		Text:    text,
		Source:  "hub",
		At:      time.Now(),
		ReplyCh: replyCh,
	}
	if !b.sink.Enqueue(utt) {
		b.reply(conn, msg, busyPhrase)
		return
	}

	// Wait for the reply off the read loop so one slow plan does not stall
	// the hub connection.
	go func() {
		select {
		case reply := <-replyCh:
			if reply != "" {
				b.reply(conn, msg, reply)
			}
		case <-ctx.Done():
		}
	}()
}

func (b *Bridge) transcribe(ctx context.Context, blob []byte) (string, error) {
	if b.stt == nil {
		return "", errWithoutSTT
	}

	pcm, err := audioconv.BytesToPCM16k(blob)
	if err != nil {
		return "", err
	}

	res, err := b.stt.Transcribe(ctx, pcm)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}

func (b *Bridge) reply(conn *Conn, in Message, text string) {
	out := Message{
		ReplyTo: in.ID,
		From:    selfName,
		To:      in.From,
		Kind:    "reply",
		Content: text,
	}
	if err := conn.Write(out); err != nil {
		b.log.Warn("hub reply not sent", "to", in.From, "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
