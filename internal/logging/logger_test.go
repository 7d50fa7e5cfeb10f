package logging

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	t.Setenv("XDG_STATE_HOME", "")
	path, err := Path()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local/state/hark/log.jsonl"), path)

	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)
	path, err = Path()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(state, "hark/log.jsonl"), path)
}

func TestNewAppendsJSONRecords(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	first, err := New()
	require.NoError(t, err)
	first.Logger.Info("first run", "command", "listen")
	require.NoError(t, first.Close())

	second, err := New()
	require.NoError(t, err)
	second.Logger.Warn("second run")
	require.NoError(t, second.Close())

	records := readRecords(t, second.Path)
	require.Len(t, records, 2)
	require.Equal(t, "first run", records[0]["msg"])
	require.Equal(t, "listen", records[0]["command"])
	require.Equal(t, "WARN", records[1]["level"])
	require.EqualValues(t, os.Getpid(), records[1]["pid"])

	info, err := os.Stat(second.Path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	dirInfo, err := os.Stat(filepath.Dir(second.Path))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())
}

func TestSetLevel(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	rt, err := New()
	require.NoError(t, err)

	rt.Logger.Debug("dropped")
	require.NoError(t, rt.SetLevel("debug"))
	rt.Logger.Debug("kept")
	require.Error(t, rt.SetLevel("chatty"))
	rt.Logger.Debug("still kept")
	require.NoError(t, rt.SetLevel("error"))
	rt.Logger.Warn("dropped too")
	require.NoError(t, rt.Close())

	var msgs []any
	for _, rec := range readRecords(t, rt.Path) {
		msgs = append(msgs, rec["msg"])
	}
	require.Equal(t, []any{"kept", "still kept"}, msgs)
}

func TestZeroRuntimeIsSafe(t *testing.T) {
	var rt Runtime
	require.NoError(t, rt.SetLevel("warn"))
	require.NoError(t, rt.Close())
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseLevel("trace")
	require.ErrorContains(t, err, `unknown log level "trace"`)
}
