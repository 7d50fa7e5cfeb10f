// Package ipc carries control commands from short-lived hark invocations to
// the process that owns the capture, as one JSON line each way over a unix
// socket.
package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Command names accepted by the capture owner.
const (
	CommandStatus = "status"
	CommandStop   = "stop"
	CommandToggle = "toggle"
	CommandCancel = "cancel"
	CommandLevel  = "level"
)

// maxMessageBytes bounds one request or response line.
const maxMessageBytes = 64 << 10

type Request struct {
	Command string `json:"command"`
}

// Level is the most recent input level of the active capture.
type Level struct {
	DB       float64 `json:"db"`
	PeakDB   float64 `json:"peak_db"`
	Speaking bool    `json:"speaking"`
	AtMS     int64   `json:"at_ms"`
}

type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Level   *Level `json:"level,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func failure(format string, args ...any) Response {
	return Response{OK: false, Error: fmt.Sprintf(format, args...)}
}

// writeLine encodes v as a single newline-terminated JSON document.
func writeLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// readLine decodes the next JSON line from r into v. The verb prefixes
// errors so callers can tell a transport failure from a malformed peer.
func readLine(r io.Reader, verb string, v any) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024), maxMessageBytes)
	if !scanner.Scan() {
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		return fmt.Errorf("read %s: %w", verb, err)
	}
	if err := json.Unmarshal(scanner.Bytes(), v); err != nil {
		return fmt.Errorf("decode %s: %w", verb, err)
	}
	return nil
}
