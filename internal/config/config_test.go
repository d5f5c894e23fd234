package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"OLLAMA_HOST", "OLLAMA_MODEL", "CONFIRMATION_KEYWORD",
		"COMMAND_TIMEOUT_SECONDS", "WAKE_WORD", "WHISPER_ENGINE",
	} {
		t.Setenv(key, "")
	}

	s := Load()

	assert.Equal(t, "http://127.0.0.1:11434", s.OllamaHost)
	assert.Equal(t, "llama3.2:3b", s.OllamaModel)
	assert.Equal(t, "wolf-logic", s.ConfirmationKeyword)
	assert.Equal(t, "wolf-logic", s.WakeWord)
	assert.Equal(t, 30*time.Second, s.CommandTimeout)
	assert.Equal(t, 1000, s.MaxCommandLength)
	assert.Equal(t, "local", s.WhisperEngine)
	assert.Equal(t, 200, s.TTSRate)
	assert.Equal(t, 5, s.MemoryContextLimit)
	assert.Empty(t, s.MemoryURL)
	assert.Empty(t, s.HubURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CONFIRMATION_KEYWORD", "open-sesame")
	t.Setenv("COMMAND_TIMEOUT_SECONDS", "12.5")
	t.Setenv("MAX_COMMAND_LENGTH", "200")
	t.Setenv("WHISPER_ENGINE", "server")
	t.Setenv("MEMORY_API_URL", "http://mem.local:8080")

	s := Load()

	assert.Equal(t, "open-sesame", s.ConfirmationKeyword)
	assert.Equal(t, 12500*time.Millisecond, s.CommandTimeout)
	assert.Equal(t, 200, s.MaxCommandLength)
	assert.Equal(t, "server", s.WhisperEngine)
	assert.Equal(t, "http://mem.local:8080", s.MemoryURL)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("COMMAND_TIMEOUT_SECONDS", "soon")
	t.Setenv("MAX_COMMAND_LENGTH", "lots")

	s := Load()

	assert.Equal(t, 30*time.Second, s.CommandTimeout)
	assert.Equal(t, 1000, s.MaxCommandLength)
}
