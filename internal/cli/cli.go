// Package cli parses hark command-line arguments.
package cli

import (
	"fmt"
	"strconv"
	"strings"
)

type Command string

const (
	CommandListen  Command = "listen"
	CommandToggle  Command = "toggle"
	CommandStop    Command = "stop"
	CommandCancel  Command = "cancel"
	CommandStatus  Command = "status"
	CommandLevel   Command = "level"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

// commands is ordered as printed in help.
var commands = []struct {
	name    Command
	summary string
}{
	{CommandListen, "Capture one utterance; ends by itself after trailing silence"},
	{CommandToggle, "Start listening, or stop the active capture"},
	{CommandStop, "Stop the active capture and hand off the recording"},
	{CommandCancel, "Cancel the active capture and discard audio"},
	{CommandStatus, "Print current state"},
	{CommandLevel, "Print the live input level of the active capture"},
	{CommandDevices, "List available input sources"},
	{CommandDoctor, "Run configuration and environment checks"},
	{CommandVersion, "Print version information"},
	{CommandHelp, "Show this help"},
}

func knownCommand(name string) (Command, bool) {
	for _, c := range commands {
		if string(c.name) == name {
			return c.name, true
		}
	}
	return "", false
}

// Overrides replace capture settings for a single run.
type Overrides struct {
	ThresholdDB *float64
	SilenceMS   *int
	MaxMS       *int
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	Overrides  Overrides
}

// Parse accepts global flags followed by at most one command. Flags take
// their value either as the next argument or inline after "=".
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		name, inline, hasInline := strings.Cut(args[i], "=")
		if !strings.HasPrefix(name, "-") {
			hasInline = false
			name = args[i]
		}

		// value yields the flag's argument, consuming the next word if needed.
		value := func(missing string) (string, error) {
			if hasInline {
				return inline, nil
			}
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s %s", name, missing)
			}
			i++
			return args[i], nil
		}

		switch name {
		case "-h", "--help":
			parsed.Command, parsed.ShowHelp = CommandHelp, true
		case "--version":
			parsed.Command, parsed.ShowHelp = CommandVersion, false
		case "--config":
			path, err := value("requires a path")
			if err != nil {
				return Parsed{}, err
			}
			parsed.ConfigPath = path
		case "--threshold":
			raw, err := value("requires a value")
			if err != nil {
				return Parsed{}, err
			}
			db, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return Parsed{}, fmt.Errorf("--threshold: invalid dB value %q", raw)
			}
			parsed.Overrides.ThresholdDB = &db
		case "--silence":
			ms, err := millisFlag(name, value)
			if err != nil {
				return Parsed{}, err
			}
			parsed.Overrides.SilenceMS = &ms
		case "--max":
			ms, err := millisFlag(name, value)
			if err != nil {
				return Parsed{}, err
			}
			parsed.Overrides.MaxMS = &ms
		default:
			if strings.HasPrefix(name, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", name)
			}
			cmd, ok := knownCommand(name)
			if !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", name)
			}
			if i != len(args)-1 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", name)
			}
			parsed.Command, parsed.ShowHelp = cmd, cmd == CommandHelp
		}
	}

	return parsed, nil
}

func millisFlag(name string, value func(string) (string, error)) (int, error) {
	raw, err := value("requires a value")
	if err != nil {
		return 0, err
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("%s: invalid milliseconds %q", name, raw)
	}
	return ms, nil
}

func HelpText(binaryName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage:\n  %s [flags] <command>\n\nCommands:\n", binaryName)
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-9s %s\n", c.name, c.summary)
	}
	b.WriteString(`
Flags:
  --config PATH      Config file path (default: $XDG_CONFIG_HOME/hark/config.jsonc)
  --threshold DB     Silence threshold override, e.g. -45
  --silence MS       Trailing silence before end of utterance
  --max MS           Hard cap on capture length (0 disables)
  -h, --help         Show help
  --version          Show version
`)
	return b.String()
}
