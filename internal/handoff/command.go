package handoff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// CommandSender hands recordings to a local program. The WAV path is appended
// to Argv, the envelope is written to stdin as JSON and mirrored into HARK_*
// environment variables. Stdout is decoded as a Reply; plain text is taken as
// the transcript.
type CommandSender struct {
	Argv    []string
	Timeout time.Duration
	Logger  *slog.Logger
}

func (s *CommandSender) Send(ctx context.Context, path string, env Envelope) (Reply, error) {
	if len(s.Argv) == 0 {
		return Reply{}, fmt.Errorf("command argv cannot be empty")
	}
	if err := env.Validate(); err != nil {
		return Reply{}, err
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	input, err := json.Marshal(env)
	if err != nil {
		return Reply{}, fmt.Errorf("encode envelope: %w", err)
	}

	args := append(append([]string(nil), s.Argv[1:]...), path)
	cmd := exec.CommandContext(ctx, s.Argv[0], args...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = append(os.Environ(), envVars(path, env)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return Reply{}, fmt.Errorf("run %s: %w: %s", s.Argv[0], err, msg)
		}
		return Reply{}, fmt.Errorf("run %s: %w", s.Argv[0], err)
	}

	reply := parseCommandOutput(stdout.Bytes())
	if s.Logger != nil {
		s.Logger.Debug("handoff command complete", "command", s.Argv[0], "stdout_bytes", stdout.Len())
	}
	return reply, nil
}

func parseCommandOutput(out []byte) Reply {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var reply Reply
		if err := json.Unmarshal(trimmed, &reply); err == nil {
			return reply
		}
	}
	return Reply{Transcript: string(trimmed)}
}

func envVars(path string, env Envelope) []string {
	fields := env.Fields()
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	vars := []string{"HARK_RECORDING=" + path}
	for _, key := range keys {
		vars = append(vars, "HARK_"+strings.ToUpper(key)+"="+fields[key])
	}
	return vars
}
