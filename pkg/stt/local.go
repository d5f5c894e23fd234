package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Local runs a whisper.cpp model in-process.
type Local struct {
	model whisper.Model // interface, not pointer
	opt   Options
}

func NewLocal(modelPath string, opt Options) (*Local, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Local{model: m, opt: opt}, nil
}

func (l *Local) Close() error {
	if l.model == nil {
		return nil
	}
	return l.model.Close()
}

func (l *Local) Transcribe(ctx context.Context, pcm16k []float32) (Result, error) {
	if l.model == nil {
		return Result{}, errors.New("nil model")
	}
	if len(pcm16k) == 0 {
		return Result{}, errors.New("no audio samples provided")
	}

	wctx, err := l.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new context: %w", err)
	}

	opt := l.opt
	if opt.Language == "" {
		opt.Language = "auto"
	}
	if err := wctx.SetLanguage(opt.Language); err != nil {
		return Result{}, fmt.Errorf("set language: %w", err)
	}
	wctx.SetTranslate(opt.TranslateToEn)

	if opt.Offset > 0 {
		wctx.SetOffset(opt.Offset)
	}
	if opt.Duration > 0 {
		wctx.SetDuration(opt.Duration)
	}

	threads := opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if opt.SplitOnWord {
		wctx.SetSplitOnWord(true)
	}
	if opt.MaxTokens > 0 {
		wctx.SetMaxTokensPerSegment(opt.MaxTokens)
	}
	if opt.MaxSegmentChars > 0 {
		wctx.SetMaxSegmentLength(opt.MaxSegmentChars)
	}
	if opt.AudioCtx > 0 {
		wctx.SetAudioCtx(opt.AudioCtx)
	}
	if opt.BeamSize > 0 {
		wctx.SetBeamSize(opt.BeamSize)
	}
	if opt.EntropyThold != 0 {
		wctx.SetEntropyThold(opt.EntropyThold)
	}
	if opt.TokenSumThold != 0 {
		wctx.SetTokenSumThreshold(opt.TokenSumThold)
	}
	if opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(opt.InitialPrompt)
	}
	if opt.Temperature != 0 {
		wctx.SetTemperature(opt.Temperature)
	}
	if opt.TemperatureStep != 0 {
		wctx.SetTemperatureFallback(opt.TemperatureStep)
	}

	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}

	var (
		segs     []Segment
		fullText string
	)
	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("next segment: %w", err)
		}
		segs = append(segs, Segment{
			Text:     s.Text,
			StartSec: s.Start.Seconds(),
			EndSec:   s.End.Seconds(),
		})
		if fullText == "" {
			fullText = s.Text
		} else {
			fullText += " " + s.Text
		}
	}

	lang := wctx.DetectedLanguage()
	if lang == "" {
		lang = wctx.Language()
	}

	return Result{
		Text:     fullText,
		Segments: segs,
		Language: lang,
	}, nil
}
