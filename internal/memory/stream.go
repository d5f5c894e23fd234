package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

const reconnectDelay = 5 * time.Second

type streamCache struct {
	mu      sync.RWMutex
	entries map[string]Memory
}

func newStreamCache() *streamCache {
	return &streamCache{entries: make(map[string]Memory)}
}

func (s *streamCache) put(m Memory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[m.ID] = m
}

func (s *streamCache) snapshot() []Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Memory, 0, len(s.entries))
	for _, m := range s.entries {
		out = append(out, m)
	}
	return out
}

func (s *streamCache) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stream subscribes to the retrieval agent's SSE feed and caches incoming
// memory events until the context is cancelled. Connection loss backs off
// and redials.
func (c *Client) Stream(ctx context.Context, streamURL string) {
	for ctx.Err() == nil {
		if err := c.readStream(ctx, streamURL); err != nil && ctx.Err() == nil {
			c.log.Warn("memory stream dropped, reconnecting", "err", err, "delay", reconnectDelay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) readStream(ctx context.Context, streamURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return err
	}
	c.auth(req)

	// The shared client's 10s timeout would sever a long-lived stream.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream status %d", resp.StatusCode)
	}

	c.log.Info("memory stream connected", "url", streamURL)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var m Memory
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			c.log.Debug("memory stream parse", "err", err)
			continue
		}
		if m.ID == "" {
			continue
		}
		c.cache.put(m)
		c.log.Debug("memory cached from stream", "id", m.ID, "cached", c.cache.len())
	}
	return scanner.Err()
}
