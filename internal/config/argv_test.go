package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArgv(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr string
	}{
		{name: "empty", input: "", want: nil},
		{name: "whitespace only", input: "  \t ", want: nil},
		{name: "simple", input: "hark-reply --voice nova", want: []string{"hark-reply", "--voice", "nova"}},
		{name: "double quoted spaces", input: `hark-reply --prompt "be brief"`, want: []string{"hark-reply", "--prompt", "be brief"}},
		{name: "single quoted spaces", input: `hark-reply --prompt 'be brief'`, want: []string{"hark-reply", "--prompt", "be brief"}},
		{name: "escaped space", input: `/opt/my\ tools/reply`, want: []string{"/opt/my tools/reply"}},
		{name: "empty quoted argument", input: `reply --tag ""`, want: []string{"reply", "--tag", ""}},
		{name: "backslash literal in single quotes", input: `reply 'a\b'`, want: []string{"reply", `a\b`}},
		{name: "adjacent quotes join", input: `reply pre"fix"'ed'`, want: []string{"reply", "prefixed"}},
		{name: "commented out", input: `# hark-reply --voice nova`, want: nil},
		{name: "unterminated quote", input: `reply "oops`, wantErr: "unterminated quote"},
		{name: "unterminated escape", input: `reply hello\`, wantErr: "unterminated escape"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseArgv(tc.input)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
