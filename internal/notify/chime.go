// Package notify covers the short feedback channels: an audio chime, desktop
// notifications, and the confirmation prompter that combines them.
package notify

import (
	"fmt"
	"os"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Chime plays a short mp3 cue. The file is decoded into memory once so
// repeated plays never touch the disk.
type Chime struct {
	buf *beep.Buffer
}

func NewChime(path string) (*Chime, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chime: %w", err)
	}
	defer f.Close()

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode chime: %w", err)
	}
	defer streamer.Close()

	buf := beep.NewBuffer(format)
	buf.Append(streamer)

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}

	return &Chime{buf: buf}, nil
}

// Play blocks until the cue finishes.
func (c *Chime) Play() {
	done := make(chan bool)
	speaker.Play(beep.Seq(c.buf.Streamer(0, c.buf.Len()), beep.Callback(func() {
		done <- true
	})))
	<-done
}
