// Package ipc is the local control channel: a unix socket speaking one
// JSON request and one JSON response per connection.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

const DefaultSocketPath = "/tmp/lobo.sock"

// connDeadline bounds one exchange. Generous because "trigger" records and
// transcribes before it can answer.
const connDeadline = 2 * time.Minute

// Request is one control command. Cmd is one of "trigger", "say",
// "status", "pending", "transcribe".
type Request struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text,omitempty"`
	Path string `json:"path,omitempty"`
}

type Response struct {
	OK      bool            `json:"ok"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func Ok(message string) Response {
	return Response{OK: true, Message: message}
}

func Fail(format string, args ...any) Response {
	return Response{Message: fmt.Sprintf(format, args...)}
}

// OkData marshals v into the response payload.
func OkData(message string, v any) Response {
	raw, err := json.Marshal(v)
	if err != nil {
		return Fail("encode payload: %v", err)
	}
	return Response{OK: true, Message: message, Data: raw}
}

type Handler func(req Request) Response

type Server struct {
	ln   net.Listener
	path string
	log  *slog.Logger
}

// Serve binds the socket and answers requests until Close. A stale socket
// file from a previous run is removed first.
func Serve(path string, handler Handler, log *slog.Logger) (*Server, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	if log == nil {
		log = slog.Default()
	}

	os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}

	s := &Server{ln: ln, path: path, log: log}
	go s.accept(handler)
	return s, nil
}

func (s *Server) accept(handler Handler) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Debug("accept failed", "err", err)
			continue
		}
		go s.handleConn(conn, handler)
	}
}

func (s *Server) handleConn(conn net.Conn, handler Handler) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connDeadline))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.log.Debug("bad control request", "err", err)
		return
	}

	resp := handler(req)
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.log.Debug("control response not sent", "cmd", req.Cmd, "err", err)
	}
}

func (s *Server) Close() error {
	err := s.ln.Close()
	os.Remove(s.path)
	return err
}

// Send performs one request/response exchange with a running daemon.
func Send(path string, req Request) (Response, error) {
	if path == "" {
		path = DefaultSocketPath
	}

	conn, err := net.Dial("unix", path)
	if err != nil {
		return Response{}, fmt.Errorf("dial %s (is the daemon running?): %w", path, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connDeadline))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}
