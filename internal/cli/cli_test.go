package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseWithoutArgsShowsHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, Parsed{Command: CommandHelp, ShowHelp: true}, parsed)
}

func TestParseCommands(t *testing.T) {
	cases := map[string]struct {
		args []string
		want Parsed
	}{
		"short help":     {[]string{"-h"}, Parsed{Command: CommandHelp, ShowHelp: true}},
		"help command":   {[]string{"help"}, Parsed{Command: CommandHelp, ShowHelp: true}},
		"version flag":   {[]string{"--version"}, Parsed{Command: CommandVersion}},
		"listen":         {[]string{"listen"}, Parsed{Command: CommandListen}},
		"level":          {[]string{"level"}, Parsed{Command: CommandLevel}},
		"config then op": {[]string{"--config", "/tmp/hark.jsonc", "stop"}, Parsed{Command: CommandStop, ConfigPath: "/tmp/hark.jsonc"}},
		"inline config":  {[]string{"--config=/tmp/a=b.jsonc", "doctor"}, Parsed{Command: CommandDoctor, ConfigPath: "/tmp/a=b.jsonc"}},
		"flag after op":  {[]string{"toggle", "--help"}, Parsed{}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.want == (Parsed{}) { // zero value marks a rejected input
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, parsed)
		})
	}
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		args    []string
		wantErr string
	}{
		{[]string{"--config"}, "--config requires a path"},
		{[]string{"--verbose"}, "unknown flag: --verbose"},
		{[]string{"--verbose=1"}, "unknown flag: --verbose"},
		{[]string{"record"}, "unknown command: record"},
		{[]string{"status", "--config", "/tmp/cfg"}, `unexpected arguments after command "status"`},
		{[]string{"doctor", "extra"}, "unexpected arguments"},
		{[]string{"--threshold"}, "--threshold requires a value"},
		{[]string{"--threshold", "loud", "listen"}, `invalid dB value "loud"`},
		{[]string{"--silence", "-1", "listen"}, "--silence: invalid milliseconds"},
		{[]string{"--max=soon", "listen"}, `--max: invalid milliseconds "soon"`},
	}

	for _, tc := range cases {
		t.Run(strings.Join(tc.args, " "), func(t *testing.T) {
			_, err := Parse(tc.args)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestParseCaptureOverrides(t *testing.T) {
	parsed, err := Parse([]string{"--threshold", "-42.5", "--silence=1200", "--max", "0", "listen"})
	require.NoError(t, err)
	require.Equal(t, CommandListen, parsed.Command)
	require.InDelta(t, -42.5, *parsed.Overrides.ThresholdDB, 1e-9)
	require.Equal(t, 1200, *parsed.Overrides.SilenceMS)
	require.Equal(t, 0, *parsed.Overrides.MaxMS)
}

func TestParseLeavesUnsetOverridesNil(t *testing.T) {
	parsed, err := Parse([]string{"--silence", "900", "toggle"})
	require.NoError(t, err)
	require.Nil(t, parsed.Overrides.ThresholdDB)
	require.Nil(t, parsed.Overrides.MaxMS)
}

func TestHelpTextListsEveryCommand(t *testing.T) {
	text := HelpText("hark")
	require.True(t, strings.HasPrefix(text, "Usage:\n  hark [flags] <command>\n"))
	for _, c := range commands {
		require.Contains(t, text, "  "+string(c.name)+" ")
	}
	require.Contains(t, text, "--config PATH")
	require.Contains(t, text, "--threshold DB")
}
