// Package audioconv converts between audio containers and the mono 16 kHz
// float32 PCM the transcription engines expect.
package audioconv

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

const targetRate = 16000

// FileToPCM16k decodes a wav/mp3/ogg file into mono float32 @16 kHz.
// Unknown extensions are sniffed by magic bytes.
func FileToPCM16k(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWAV(f)
	case ".mp3":
		return decodeMP3(f)
	case ".ogg", ".oga":
		return decodeOgg(f)
	default:
		return sniffAndDecode(f)
	}
}

// BytesToPCM16k decodes an in-memory blob, recognizing the format by its
// magic bytes. Useful for audio arriving over the hub without a filename.
func BytesToPCM16k(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, errors.New("audio blob too short")
	}

	r := bytes.NewReader(data)
	switch {
	case string(data[:4]) == "RIFF":
		return decodeWAV(r)
	case string(data[:4]) == "OggS":
		return decodeOgg(r)
	case looksLikeMP3(data):
		return decodeMP3(r)
	default:
		return nil, fmt.Errorf("unsupported format (supported: wav, mp3, ogg-vorbis, ogg-opus)")
	}
}

func sniffAndDecode(f *os.File) ([]float32, error) {
	br := bufio.NewReader(f)
	magic, _ := br.Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	switch {
	case string(magic) == "RIFF":
		return decodeWAV(f)
	case string(magic) == "OggS":
		return decodeOgg(f)
	case looksLikeMP3(magic):
		return decodeMP3(f)
	default:
		return nil, fmt.Errorf("unsupported format (supported: wav, mp3, ogg-vorbis, ogg-opus)")
	}
}

func looksLikeMP3(b []byte) bool {
	if len(b) >= 3 && string(b[:3]) == "ID3" {
		return true
	}
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0
}

// decodeOgg tries Vorbis first, then Opus.
func decodeOgg(rs io.ReadSeeker) ([]float32, error) {
	if pcm, err := decodeOggVorbis(rs); err == nil {
		return pcm, nil
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	pcm, err := decodeOggOpus(rs)
	if err != nil {
		return nil, fmt.Errorf("cannot decode ogg as Vorbis or Opus: %w", err)
	}
	return pcm, nil
}

func decodeWAV(r io.ReadSeeker) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, errors.New("empty wav")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	x := intToFloat32(pb.Data, depth)

	channels, rate := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			channels = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			rate = pb.Format.SampleRate
		}
	}
	return normalize(x, channels, rate), nil
}

func decodeMP3(r io.Reader) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}

	x := int16ToFloat32(ints)
	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}
	// the decoder always emits stereo
	return normalize(x, 2, rate), nil
}

func decodeOggVorbis(r io.Reader) ([]float32, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("invalid ogg/vorbis stream")
	}
	return normalize(pcm, format.Channels, format.SampleRate), nil
}

func decodeOggOpus(rs io.ReadSeeker) ([]float32, error) {
	dec, err := popus.NewDecoder(rs)
	if err != nil {
		return nil, err
	}
	defer dec.Destroy()

	channels := dec.ChannelCount()
	if channels <= 0 {
		channels = 1
	}

	// opus always decodes at 48k
	var pcm48 []float32
	buf := make([]int16, 48000*channels/2)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm48 = append(pcm48, int16ToFloat32(buf[:n*channels])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if len(pcm48) == 0 {
		return nil, errors.New("empty opus stream")
	}
	return normalize(pcm48, channels, 48000), nil
}

// normalize downmixes to mono and resamples to the target rate.
func normalize(x []float32, channels, rate int) []float32 {
	if channels > 1 {
		x = downmix(x, channels)
	}
	if rate != targetRate {
		x = resampleLinear(x, rate, targetRate)
	}
	return x
}

func intToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		f := float64(v) * scale
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		out[i] = float32(f)
	}
	return out
}

func int16ToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 32768
	}
	return out
}

func downmix(in []float32, channels int) []float32 {
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func resampleLinear(in []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(in) == 0 {
		return in
	}
	ratio := float64(outRate) / float64(inRate)
	n := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		src := float64(i) / ratio
		i0 := int(src)
		if i0 >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i0+1]*a
	}
	return out
}
