package bus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobo/internal/assistant"
	"lobo/pkg/audioconv"
	"lobo/pkg/stt"
)

func startHub(t *testing.T) (string, chan *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 4)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), conns
}

func runBridge(t *testing.T, b *Bridge) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("bridge did not stop")
		}
	})
}

func readMsg(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m Message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

type stubSink struct {
	mu    sync.Mutex
	full  bool
	reply string
	got   []assistant.Utterance
}

func (s *stubSink) Enqueue(utt assistant.Utterance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		if utt.ReplyCh != nil {
			close(utt.ReplyCh)
		}
		return false
	}
	s.got = append(s.got, utt)
	if utt.ReplyCh != nil {
		utt.ReplyCh <- s.reply
		close(utt.ReplyCh)
	}
	return true
}

func (s *stubSink) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.got))
	for i, u := range s.got {
		out[i] = u.Text
	}
	return out
}

type fakeSTT struct {
	text string
}

func (f *fakeSTT) Transcribe(_ context.Context, pcm []float32) (stt.Result, error) {
	return stt.Result{Text: f.text, Language: "en"}, nil
}

func (f *fakeSTT) Close() error { return nil }

func TestBridgeRoutesUtteranceAndReply(t *testing.T) {
	url, conns := startHub(t)
	sink := &stubSink{reply: "Opening firefox."}
	runBridge(t, NewBridge(url, sink, nil, nil))

	hub := <-conns
	require.NoError(t, hub.WriteJSON(Message{
		ID: "m1", From: "telegram", To: "lobo", Kind: "utterance", Content: "open firefox",
	}))

	reply := readMsg(t, hub)
	assert.Equal(t, "reply", reply.Kind)
	assert.Equal(t, "lobo", reply.From)
	assert.Equal(t, "telegram", reply.To)
	assert.Equal(t, "m1", reply.ReplyTo)
	assert.Equal(t, "Opening firefox.", reply.Content)
	assert.NotEmpty(t, reply.ID)

	assert.Equal(t, []string{"open firefox"}, sink.texts())

	sink.mu.Lock()
	require.Len(t, sink.got, 1)
	assert.Equal(t, "hub", sink.got[0].Source)
	sink.mu.Unlock()
}

func TestBridgeBusySink(t *testing.T) {
	url, conns := startHub(t)
	sink := &stubSink{full: true}
	runBridge(t, NewBridge(url, sink, nil, nil))

	hub := <-conns
	require.NoError(t, hub.WriteJSON(Message{ID: "m2", From: "cli", Kind: "utterance", Content: "hello"}))

	reply := readMsg(t, hub)
	assert.Equal(t, busyPhrase, reply.Content)
}

func TestBridgeIgnoresOtherKinds(t *testing.T) {
	url, conns := startHub(t)
	sink := &stubSink{reply: "ok"}
	runBridge(t, NewBridge(url, sink, nil, nil))

	hub := <-conns
	require.NoError(t, hub.WriteJSON(Message{Kind: "presence", From: "telegram", Content: "online"}))
	require.NoError(t, hub.WriteJSON(Message{Kind: "utterance", From: "telegram", Content: "real one"}))

	reply := readMsg(t, hub)
	assert.Equal(t, "ok", reply.Content)
	assert.Equal(t, []string{"real one"}, sink.texts())
}

func TestBridgeTranscribesAudio(t *testing.T) {
	blob, err := audioconv.EncodeWAV16k(make([]float32, 3200))
	require.NoError(t, err)

	url, conns := startHub(t)
	sink := &stubSink{reply: "done"}
	runBridge(t, NewBridge(url, sink, &fakeSTT{text: "turn on the lights"}, nil))

	hub := <-conns
	require.NoError(t, hub.WriteJSON(Message{ID: "a1", From: "intercom", Kind: "utterance", Audio: blob}))

	reply := readMsg(t, hub)
	assert.Equal(t, "done", reply.Content)
	assert.Equal(t, []string{"turn on the lights"}, sink.texts())
}

func TestBridgeRejectsAudioWithoutTranscriber(t *testing.T) {
	blob, err := audioconv.EncodeWAV16k(make([]float32, 1600))
	require.NoError(t, err)

	url, conns := startHub(t)
	sink := &stubSink{reply: "nope"}
	runBridge(t, NewBridge(url, sink, nil, nil))

	hub := <-conns
	require.NoError(t, hub.WriteJSON(Message{ID: "a2", From: "intercom", Kind: "utterance", Audio: blob}))

	reply := readMsg(t, hub)
	assert.Equal(t, "I couldn't make out that audio.", reply.Content)
	assert.Empty(t, sink.texts())
}

func TestWriteFillsMessageID(t *testing.T) {
	url, conns := startHub(t)

	conn, err := Dial(url)
	require.NoError(t, err)
	defer conn.Close()

	hub := <-conns
	require.NoError(t, conn.Write(Message{From: "lobo", Kind: "reply", Content: "x"}))

	got := readMsg(t, hub)
	assert.NotEmpty(t, got.ID)
}

func TestDialBadURL(t *testing.T) {
	_, err := Dial("://broken")
	assert.Error(t, err)
}

func TestSleepCtx(t *testing.T) {
	assert.True(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepCtx(ctx, time.Hour))
}
