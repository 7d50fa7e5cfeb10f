//go:build integration

package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListSourcesIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sources, err := ListSources(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, sources)
}

func TestCaptureIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	mic := &Microphone{Input: "default", Dir: t.TempDir()}
	handle, err := mic.Open(ctx)
	require.NoError(t, err)
	defer handle.Release()

	select {
	case <-handle.Samples():
	case <-ctx.Done():
		t.Fatal("no samples from default source")
	}

	artifact, err := handle.Stop(ctx)
	require.NoError(t, err)
	require.FileExists(t, artifact.Path)
}
