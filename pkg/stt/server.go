package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"lobo/pkg/audioconv"
)

// Server sends audio to a whisper HTTP endpoint instead of running the
// model locally. The endpoint accepts multipart WAV on POST /transcribe
// and reports readiness on GET /health.
type Server struct {
	base string
	lang string
	http *http.Client
}

func NewServer(baseURL, language string, client *http.Client) (*Server, error) {
	if baseURL == "" {
		return nil, errors.New("empty server url")
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Server{
		base: strings.TrimRight(baseURL, "/"),
		lang: language,
		http: client,
	}, nil
}

func (s *Server) Close() error { return nil }

func (s *Server) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("whisper server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whisper server status %d", resp.StatusCode)
	}
	return nil
}

func (s *Server) Transcribe(ctx context.Context, pcm16k []float32) (Result, error) {
	if len(pcm16k) == 0 {
		return Result{}, errors.New("no audio samples provided")
	}

	wav, err := audioconv.EncodeWAV16k(pcm16k)
	if err != nil {
		return Result{}, fmt.Errorf("encode wav: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Result{}, err
	}
	if _, err := fw.Write(wav); err != nil {
		return Result{}, err
	}
	if s.lang != "" && s.lang != "auto" {
		_ = mw.WriteField("language", s.lang)
	}
	if err := mw.Close(); err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/transcribe", &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("transcribe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("transcribe status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}

	return Result{
		Text:     strings.TrimSpace(out.Text),
		Language: out.Language,
	}, nil
}
