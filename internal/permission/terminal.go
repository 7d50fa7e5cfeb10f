package permission

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// TerminalPrompter asks on an interactive terminal.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer
}

func (p TerminalPrompter) Prompt(ctx context.Context) (Decision, error) {
	if p.In == nil {
		return Denied, fmt.Errorf("no terminal input for permission prompt")
	}
	if p.Out != nil {
		_, _ = fmt.Fprint(p.Out, "Allow microphone access? [y/N]: ")
	}

	type answer struct {
		line string
		err  error
	}
	lines := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		lines <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return Denied, ctx.Err()
	case got := <-lines:
		if got.err != nil && got.err != io.EOF {
			return Denied, got.err
		}
		switch strings.ToLower(strings.TrimSpace(got.line)) {
		case "y", "yes":
			return Granted, nil
		default:
			return Denied, nil
		}
	}
}

// ForMode builds the prompter configured by mode.
func ForMode(mode Mode, in io.Reader, out io.Writer) (Prompter, error) {
	switch mode {
	case ModeAllow, "":
		return Static(Granted), nil
	case ModeDeny:
		return Static(Denied), nil
	case ModePrompt:
		return TerminalPrompter{In: in, Out: out}, nil
	default:
		return nil, fmt.Errorf("unknown permission mode %q", mode)
	}
}
