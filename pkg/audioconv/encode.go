package audioconv

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV16k packs mono float32 PCM into a 16-bit WAV blob, the upload
// format the transcription server accepts.
func EncodeWAV16k(pcm []float32) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("no samples")
	}

	ints := make([]int, len(pcm))
	for i, v := range pcm {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		ints[i] = int(v * 32767)
	}

	var ws seekBuffer
	enc := wav.NewEncoder(&ws, targetRate, 16, 1, 1)
	err := enc.Write(&audio.IntBuffer{
		Data:           ints,
		Format:         &audio.Format{NumChannels: 1, SampleRate: targetRate},
		SourceBitDepth: 16,
	})
	if err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	return ws.buf, nil
}

// seekBuffer is the in-memory WriteSeeker the wav encoder needs to patch
// chunk sizes into the header on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if need := s.pos + len(p); need > len(s.buf) {
		grown := make([]byte, need)
		copy(grown, s.buf)
		s.buf = grown
	}
	copy(s.buf[s.pos:], p)
	s.pos += len(p)
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = s.pos + int(offset)
	case io.SeekEnd:
		next = len(s.buf) + int(offset)
	default:
		return 0, errors.New("bad whence")
	}
	if next < 0 {
		return 0, errors.New("negative position")
	}
	s.pos = next
	return int64(next), nil
}
