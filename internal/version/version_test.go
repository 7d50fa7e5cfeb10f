package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func stamp(t *testing.T, version, commit, date string) {
	t.Helper()
	saved := [3]string{Version, Commit, Date}
	t.Cleanup(func() { Version, Commit, Date = saved[0], saved[1], saved[2] })
	Version, Commit, Date = version, commit, date
}

func TestStringUsesLinkerMetadata(t *testing.T) {
	stamp(t, "1.2.3", "abc123", "2026-02-18")

	require.Equal(t, "hark 1.2.3 (commit=abc123, date=2026-02-18, go="+runtime.Version()+")", String())
}

func TestStringWithoutMetadataStillNamesBinary(t *testing.T) {
	stamp(t, "dev", "none", "unknown")

	require.Contains(t, String(), "hark dev (commit=")
}

func TestShortRevision(t *testing.T) {
	require.Equal(t, "0123456789ab", shortRevision("0123456789abcdef0123"))
	require.Equal(t, "abc", shortRevision("abc"))
}
