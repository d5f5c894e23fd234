// Package stt turns recorded speech into text. Two engines implement the
// same interface: Local runs whisper.cpp in-process, Server posts audio to
// a remote whisper HTTP endpoint.
package stt

import (
	"context"
	"time"
)

type Segment struct {
	Text     string
	StartSec float64
	EndSec   float64
}

type Result struct {
	Text     string
	Segments []Segment
	Language string // detected or forced
}

// Options tune recognition. Zero values mean engine defaults.
type Options struct {
	Language        string // e.g. "auto", "en", "ru"
	TranslateToEn   bool
	Threads         int // <=0 => NumCPU()
	InitialPrompt   string
	MaxTokens       uint
	MaxSegmentChars uint
	BeamSize        int // >0 enables beam search
	AudioCtx        uint
	SplitOnWord     bool
	EntropyThold    float32
	TokenSumThold   float32
	Temperature     float32
	TemperatureStep float32
	Offset          time.Duration
	Duration        time.Duration
}

// Transcriber recognizes mono 16 kHz float32 PCM in [-1, 1].
type Transcriber interface {
	Transcribe(ctx context.Context, pcm16k []float32) (Result, error)
	Close() error
}
