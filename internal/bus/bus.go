// Package bus connects the assistant to the household message hub over a
// websocket, so other agents can talk to it without a microphone.
package bus

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Message is one hub frame. Audio, when set, carries an encoded clip
// (wav/mp3/ogg) to be transcribed instead of Content.
type Message struct {
	ID      string `json:"id,omitempty"`
	ReplyTo string `json:"reply_to,omitempty"`
	From    string `json:"from"`
	To      string `json:"to"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
	Audio   []byte `json:"audio,omitempty"`
}

// Conn wraps a websocket connection. Reads stay single-goroutine; writes
// are serialized here because replies come from worker goroutines.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func Dial(wsURL string) (*Conn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("hub url: %w", err)
	}

	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &Conn{ws: ws}, nil
}

func (c *Conn) Read() (Message, error) {
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return Message{}, err
	}

	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("bad hub frame: %w", err)
	}
	return m, nil
}

func (c *Conn) Write(m Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

func (c *Conn) Close() error {
	return c.ws.Close()
}
