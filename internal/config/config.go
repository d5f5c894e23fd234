// Package config reads assistant settings from the environment. Call
// godotenv.Load first if a .env file should be honored.
package config

import (
	"os"
	"strconv"
	"time"
)

type Settings struct {
	// language model
	OllamaHost  string
	OllamaModel string

	// confirmation gate
	ConfirmationKeyword string
	CommandTimeout      time.Duration

	// hearing
	WakeWord         string
	MaxCommandLength int
	QueueSize        int
	WhisperEngine    string // "local" or "server"
	WhisperModel     string
	WhisperServerURL string
	Language         string

	// speaking
	TTSRate   int
	TTSVoice  string
	ChimePath string

	// persistent memory, disabled when MemoryURL is empty
	MemoryURL          string
	MemoryKey          string
	MemoryStreamURL    string
	MemoryContextLimit int

	// optional outer connections
	HubURL     string
	SocksProxy string
}

func Load() Settings {
	return Settings{
		OllamaHost:  getenv("OLLAMA_HOST", "http://127.0.0.1:11434"),
		OllamaModel: getenv("OLLAMA_MODEL", "llama3.2:3b"),

		ConfirmationKeyword: getenv("CONFIRMATION_KEYWORD", "wolf-logic"),
		CommandTimeout:      getseconds("COMMAND_TIMEOUT_SECONDS", 30),

		WakeWord:         getenv("WAKE_WORD", "wolf-logic"),
		MaxCommandLength: getint("MAX_COMMAND_LENGTH", 1000),
		QueueSize:        getint("UTTERANCE_QUEUE_SIZE", 16),
		WhisperEngine:    getenv("WHISPER_ENGINE", "local"),
		WhisperModel:     getenv("WHISPER_MODEL", "third_party/whisper.cpp/models/ggml-base.en.bin"),
		WhisperServerURL: getenv("WHISPER_SERVER_URL", "http://localhost:8000"),
		Language:         getenv("STT_LANGUAGE", "auto"),

		TTSRate:   getint("TTS_RATE", 200),
		TTSVoice:  getenv("TTS_VOICE", "en"),
		ChimePath: getenv("CHIME_PATH", "beep.mp3"),

		MemoryURL:          getenv("MEMORY_API_URL", ""),
		MemoryKey:          getenv("MEMORY_API_KEY", ""),
		MemoryStreamURL:    getenv("MEMORY_STREAM_URL", ""),
		MemoryContextLimit: getint("MEMORY_CONTEXT_LIMIT", 5),

		HubURL:     getenv("HUB_URL", ""),
		SocksProxy: getenv("SOCKS_PROXY", ""),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getseconds(key string, def float64) time.Duration {
	v := os.Getenv(key)
	if v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			def = f
		}
	}
	return time.Duration(def * float64(time.Second))
}
