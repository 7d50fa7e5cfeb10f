// Package app dispatches parsed CLI commands to the capture owner or to a
// running owner over IPC.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/rbright/hark/internal/audio"
	"github.com/rbright/hark/internal/cli"
	"github.com/rbright/hark/internal/config"
	"github.com/rbright/hark/internal/doctor"
	"github.com/rbright/hark/internal/ipc"
	"github.com/rbright/hark/internal/logging"
	"github.com/rbright/hark/internal/session"
	"github.com/rbright/hark/internal/version"
)

const binaryName = "hark"

const (
	forwardTimeout      = 220 * time.Millisecond
	ownerProbeTimeout   = 180 * time.Millisecond
	ownerAcquireRetries = 8
)

type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdin: os.Stdin, Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}
	if err := logRuntime.SetLevel(cfgLoaded.Config.Log.Level); err != nil {
		logger.Warn("ignoring log level", "error", err.Error())
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandLevel:
		return r.commandLevel(ctx)
	case cli.CommandStop:
		return r.relay(ctx, ipc.CommandStop)
	case cli.CommandCancel:
		return r.relay(ctx, ipc.CommandCancel)
	case cli.CommandListen:
		return r.commandListen(ctx, cfgLoaded.Config, parsed.Overrides, logger, false)
	case cli.CommandToggle:
		return r.commandListen(ctx, cfgLoaded.Config, parsed.Overrides, logger, true)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	sources, err := audio.ListSources(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(sources) == 0 {
		fmt.Fprintln(r.Stdout, "no audio sources found")
		return 1
	}

	for _, src := range sources {
		defaultMark := " "
		if src.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			src.ID,
			src.Description,
			src.State,
			yesNo(src.Available),
			yesNo(src.Muted),
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	resp, err := forward(ctx, ipc.CommandStatus)
	switch {
	case errors.Is(err, errNoOwner):
		resp.State = string(session.StateIdle)
	case err != nil:
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	case resp.State == "":
		resp.State = string(session.StateIdle)
	}

	state := resp.State
	if resp.Phase != "" {
		state += " (" + resp.Phase + ")"
	}
	fmt.Fprintln(r.Stdout, state)
	return 0
}

func (r Runner) commandLevel(ctx context.Context) int {
	resp, err := forward(ctx, ipc.CommandLevel)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Level == nil {
		fmt.Fprintln(r.Stdout, resp.Message)
		return 0
	}
	fmt.Fprintln(r.Stdout, formatLevel(resp))
	return 0
}

func formatLevel(resp ipc.Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "level=%.1f dBFS peak=%.1f dBFS", resp.Level.DB, resp.Level.PeakDB)
	if resp.Level.Speaking {
		b.WriteString(" speaking")
	} else {
		b.WriteString(" quiet")
	}
	if resp.Phase != "" {
		b.WriteString(" phase=" + resp.Phase)
	}
	return b.String()
}

// relay forwards command to the owner and prints its message.
func (r Runner) relay(ctx context.Context, command string) int {
	resp, err := forward(ctx, command)
	return r.printForwarded(resp, err)
}

// commandListen becomes the capture owner. With toggle set, an existing
// owner is asked to stop instead.
func (r Runner) commandListen(ctx context.Context, cfg config.Config, overrides cli.Overrides, logger *slog.Logger, toggle bool) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if toggle {
		if resp, err := forwardTo(ctx, socketPath, ipc.CommandToggle); !errors.Is(err, errNoOwner) {
			return r.printForwarded(resp, err)
		}
	}

	listener, err := ipc.Acquire(ctx, socketPath, ownerProbeTimeout, ownerAcquireRetries, nil)
	if toggle && errors.Is(err, ipc.ErrAlreadyRunning) {
		// Another invocation won the race to own the socket.
		return r.printForwarded(forwardTo(ctx, socketPath, ipc.CommandToggle))
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	return r.runOwner(ctx, listener, cfg, overrides, logger)
}

func (r Runner) printForwarded(resp ipc.Response, err error) int {
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// reportResult prints the lifecycle outcome and maps it to an exit code.
func (r Runner) reportResult(result session.Result) int {
	if result.Cancelled {
		fmt.Fprintln(r.Stdout, "cancelled")
		return 0
	}
	if result.Reason == session.ReasonContext {
		fmt.Fprintln(r.Stderr, "interrupted")
		return 130
	}
	if result.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}

	reply := result.Reply
	if transcript := strings.TrimSpace(reply.Transcript); transcript != "" {
		fmt.Fprintln(r.Stdout, transcript)
	}
	if text := strings.TrimSpace(reply.Reply); text != "" && !reply.IsSTTOnly {
		fmt.Fprintln(r.Stdout, text)
	}
	if reply.Empty() {
		switch {
		case result.ObjectKey != "":
			fmt.Fprintln(r.Stdout, result.ObjectKey)
		case result.Recording.Path != "":
			fmt.Fprintln(r.Stdout, result.Recording.Path)
		}
	}
	return 0
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"state", result.State,
		"reason", result.Reason,
		"cancelled", result.Cancelled,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"recording_path", result.Recording.Path,
		"recording_ms", result.Recording.Duration.Milliseconds(),
		"bytes_captured", result.Recording.Bytes,
		"speech_detected", result.Recording.SpeechDetected,
		"transcript_length", len(result.Reply.Transcript),
		"object_key", result.ObjectKey,
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

// errNoOwner reports that nothing is listening on the runtime socket.
var errNoOwner = errors.New("no active hark capture")

// forward sends command to the owner on the runtime socket.
func forward(ctx context.Context, command string) (ipc.Response, error) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return ipc.Response{}, fmt.Errorf("%w: %v", errNoOwner, err)
	}
	return forwardTo(ctx, socketPath, command)
}

// forwardTo returns errNoOwner when the socket is missing or refuses
// connections. Any other transport failure means an owner may exist.
func forwardTo(ctx context.Context, socketPath string, command string) (ipc.Response, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, forwardTimeout)
	switch {
	case err == nil && resp.OK:
		return resp, nil
	case err == nil:
		return resp, errors.New(resp.Error)
	case ownerGone(err):
		return ipc.Response{}, errNoOwner
	default:
		return ipc.Response{}, fmt.Errorf("forward %s: %w", command, err)
	}
}

func ownerGone(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
