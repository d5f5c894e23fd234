// Package memory talks to the persistent-memory service: semantic search
// and storage over REST, plus an SSE feed of freshly extracted memories.
// Every failure here degrades to "no memory"; the assistant keeps working
// without context.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Memory is one retrieved entry. Search results carry either content or
// text depending on which store answered.
type Memory struct {
	ID       string         `json:"id,omitempty"`
	Content  string         `json:"content,omitempty"`
	Text     string         `json:"text,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Body returns whichever text field the entry carries.
func (m Memory) Body() string {
	if m.Content != "" {
		return m.Content
	}
	return m.Text
}

// Interaction is one stored exchange.
type Interaction struct {
	UserInput         string         `json:"user_input"`
	AssistantResponse string         `json:"assistant_response"`
	Topic             string         `json:"topic"`
	Timestamp         string         `json:"timestamp"`
	Metadata          map[string]any `json:"metadata"`
}

type Client struct {
	base  string
	key   string
	http  *http.Client
	log   *slog.Logger
	cache *streamCache
}

func NewClient(baseURL, apiKey string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base:  baseURL,
		key:   apiKey,
		http:  &http.Client{Timeout: 10 * time.Second},
		log:   log,
		cache: newStreamCache(),
	}
}

// Health probes the service with a short deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("memory health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("memory health check: status %d", resp.StatusCode)
	}
	return nil
}

// Search retrieves memories semantically related to the query. A failing
// service yields an empty slice and a logged warning, never an error the
// caller has to route around.
func (c *Client) Search(ctx context.Context, query string, limit int) []Memory {
	payload, _ := json.Marshal(map[string]any{"query": query, "limit": limit})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/memories/search", bytes.NewReader(payload))
	if err != nil {
		c.log.Warn("memory search request", "err", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("memory search failed", "err", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("memory search failed", "status", resp.StatusCode)
		return nil
	}

	var out struct {
		Memories []Memory `json:"memories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.log.Warn("memory search decode", "err", err)
		return nil
	}
	c.log.Debug("memories retrieved", "count", len(out.Memories), "query", query)
	return out.Memories
}

// ByTopic retrieves memories filed under a topic.
func (c *Client) ByTopic(ctx context.Context, topic string, limit int) []Memory {
	q := url.Values{"topic": {topic}, "limit": {strconv.Itoa(limit)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.base+"/memories/by-topic?"+q.Encode(), nil)
	if err != nil {
		c.log.Warn("memory topic request", "err", err)
		return nil
	}
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("memory topic search failed", "err", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("memory topic search failed", "status", resp.StatusCode)
		return nil
	}

	var out struct {
		Memories []Memory `json:"memories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.log.Warn("memory topic decode", "err", err)
		return nil
	}
	return out.Memories
}

// Store files an interaction. Timestamp defaults to now in UTC.
func (c *Client) Store(ctx context.Context, in Interaction) error {
	if in.Topic == "" {
		in.Topic = "general"
	}
	if in.Timestamp == "" {
		in.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if in.Metadata == nil {
		in.Metadata = map[string]any{}
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/memories", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("store interaction: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("store interaction: status %d", resp.StatusCode)
	}
	c.log.Debug("interaction stored", "topic", in.Topic)
	return nil
}

// Cached returns memories collected from the SSE stream so far.
func (c *Client) Cached() []Memory {
	return c.cache.snapshot()
}

func (c *Client) auth(req *http.Request) {
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}
}

// FormatContext renders retrieved memories as the context block prepended
// to the model's system prompt.
func FormatContext(memories []Memory) string {
	if len(memories) == 0 {
		return ""
	}

	var b bytes.Buffer
	b.WriteString("\n### Relevant Memory Context ###\n")
	for i, m := range memories {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, m.Body())
		if topic, ok := m.Metadata["topic"].(string); ok && topic != "" {
			fmt.Fprintf(&b, "   [Topic: %s]\n", topic)
		}
	}
	b.WriteString("\n### End Memory Context ###\n")
	return b.String()
}
