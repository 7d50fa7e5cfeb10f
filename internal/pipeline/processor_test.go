package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/hark/internal/handoff"
	"github.com/rbright/hark/internal/recorder"
)

type fakeArchiver struct {
	calls atomic.Int32
	err   error
}

func (f *fakeArchiver) Upload(_ context.Context, path string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "hark/" + filepath.Base(path), nil
}

type fakeSender struct {
	calls atomic.Int32
	reply handoff.Reply
	err   error
	env   handoff.Envelope
}

func (f *fakeSender) Send(_ context.Context, path string, env handoff.Envelope) (handoff.Reply, error) {
	f.calls.Add(1)
	f.env = env
	if _, err := os.Stat(path); err != nil {
		return handoff.Reply{}, err
	}
	return f.reply, f.err
}

func newRecording(t *testing.T) recorder.FinishedRecording {
	t.Helper()
	path := filepath.Join(t.TempDir(), "utterance-1.wav")
	require.NoError(t, os.WriteFile(path, []byte("wav"), 0o600))
	return recorder.FinishedRecording{Path: path, SpeechDetected: true, Reason: recorder.ReasonEndOfUtterance}
}

func TestProcessUploadsHandsOffAndRemoves(t *testing.T) {
	rec := newRecording(t)
	archiver := &fakeArchiver{}
	sender := &fakeSender{reply: handoff.Reply{Transcript: "what time is it"}}
	env := handoff.Envelope{Speed: 1, Language: "en", STTOnly: true}

	out, err := NewProcessor(Options{Sender: sender, Archiver: archiver, Envelope: env}).Process(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, "what time is it", out.Reply.Transcript)
	require.Equal(t, "hark/utterance-1.wav", out.ObjectKey)
	require.True(t, out.Removed)
	require.Equal(t, env, sender.env)
	require.NoFileExists(t, rec.Path)
}

func TestProcessKeepAudio(t *testing.T) {
	rec := newRecording(t)
	out, err := NewProcessor(Options{Archiver: &fakeArchiver{}, KeepAudio: true}).Process(context.Background(), rec)
	require.NoError(t, err)
	require.False(t, out.Removed)
	require.FileExists(t, rec.Path)
}

func TestProcessUploadFailureKeepsAudioAndSkipsHandoff(t *testing.T) {
	rec := newRecording(t)
	boom := errors.New("bucket gone")
	sender := &fakeSender{}

	_, err := NewProcessor(Options{Sender: sender, Archiver: &fakeArchiver{err: boom}}).Process(context.Background(), rec)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "archive recording")
	require.Equal(t, int32(0), sender.calls.Load())
	require.FileExists(t, rec.Path)
}

func TestProcessHandoffFailureKeepsAudio(t *testing.T) {
	rec := newRecording(t)
	boom := errors.New("503")

	out, err := NewProcessor(Options{Sender: &fakeSender{err: boom}}).Process(context.Background(), rec)
	require.ErrorIs(t, err, boom)
	require.False(t, out.Removed)
	require.FileExists(t, rec.Path)
}

func TestProcessEmptyReply(t *testing.T) {
	rec := newRecording(t)
	_, err := NewProcessor(Options{Sender: &fakeSender{}}).Process(context.Background(), rec)
	require.ErrorIs(t, err, ErrEmptyTranscript)
	require.FileExists(t, rec.Path)
}

func TestProcessSilentReplyIsSuccess(t *testing.T) {
	rec := newRecording(t)
	out, err := NewProcessor(Options{Sender: &fakeSender{reply: handoff.Reply{Silent: true}}}).Process(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, out.Reply.Silent)
	require.True(t, out.Removed)
}

func TestProcessNoSpeechDiscards(t *testing.T) {
	rec := newRecording(t)
	rec.SpeechDetected = false
	sender := &fakeSender{}
	archiver := &fakeArchiver{}

	out, err := NewProcessor(Options{Sender: sender, Archiver: archiver}).Process(context.Background(), rec)
	require.ErrorIs(t, err, ErrNoSpeech)
	require.True(t, out.Removed)
	require.Equal(t, int32(0), sender.calls.Load())
	require.Equal(t, int32(0), archiver.calls.Load())
	require.NoFileExists(t, rec.Path)
}

func TestProcessWithoutStagesKeepsAudio(t *testing.T) {
	rec := newRecording(t)
	out, err := NewProcessor(Options{}).Process(context.Background(), rec)
	require.NoError(t, err)
	require.False(t, out.Removed)
	require.Equal(t, rec.Path, out.Path)
	require.FileExists(t, rec.Path)
}
