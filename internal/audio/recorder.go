// Package audio captures microphone input and ducks other playback
// streams while the assistant is listening.
package audio

import (
	"context"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

const sampleRate = 16000

// Settings tune voice activity detection. Zero values fall back to
// defaults suited for near-field speech.
type Settings struct {
	FrameSize    int           // samples per read, default 320 (20ms)
	SilenceRMS   float64       // frames below this count as silence
	SilenceHold  time.Duration // trailing silence that ends an utterance
	MaxUtterance time.Duration // hard cap per recording
}

func (s Settings) withDefaults() Settings {
	if s.FrameSize <= 0 {
		s.FrameSize = 320
	}
	if s.SilenceRMS <= 0 {
		s.SilenceRMS = 0.015
	}
	if s.SilenceHold <= 0 {
		s.SilenceHold = 600 * time.Millisecond
	}
	if s.MaxUtterance <= 0 {
		s.MaxUtterance = 10 * time.Second
	}
	return s
}

type Recorder struct {
	set Settings
}

func NewRecorder(set Settings) *Recorder {
	return &Recorder{set: set.withDefaults()}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// RecordAuto records one utterance: it waits for speech, then stops after
// SilenceHold of quiet or at the MaxUtterance cap. Leading silence is not
// included in the result. An empty slice means nothing was heard.
func (r *Recorder) RecordAuto(ctx context.Context) ([]float32, error) {
	buf := make([]float32, r.set.FrameSize)
	out := make([]float32, 0, sampleRate*3)

	stream, err := portaudio.OpenDefaultStream(1, 0, sampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	frameDur := time.Duration(r.set.FrameSize) * time.Second / sampleRate
	maxFrames := int(r.set.MaxUtterance / frameDur)

	var (
		speaking  bool
		silentFor time.Duration
	)

	for i := 0; i < maxFrames; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, err
		}

		rms := frameRMS(buf)

		if rms > r.set.SilenceRMS {
			speaking = true
			silentFor = 0
			out = append(out, buf...)
			continue
		}

		if !speaking {
			continue
		}
		silentFor += frameDur
		if silentFor >= r.set.SilenceHold {
			break
		}
		out = append(out, buf...)
	}

	return out, nil
}

func frameRMS(f []float32) float64 {
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
