package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"

	"github.com/rbright/hark/internal/config"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	if in.Body != nil {
		f.body, _ = io.ReadAll(in.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
}

func TestUploadPutsObject(t *testing.T) {
	local := filepath.Join(t.TempDir(), "utterance-1.wav")
	require.NoError(t, os.WriteFile(local, []byte("wavdata"), 0o600))

	putter := &fakePutter{}
	u := NewWithClient(putter, "archive", "/hark/", nil)
	u.now = fixedNow

	key, err := u.Upload(context.Background(), local)
	require.NoError(t, err)
	require.Equal(t, "hark/20260304T050607Z-utterance-1.wav", key)
	require.Equal(t, "archive", aws.ToString(putter.input.Bucket))
	require.Equal(t, key, aws.ToString(putter.input.Key))
	require.Equal(t, int64(7), aws.ToInt64(putter.input.ContentLength))
	require.Equal(t, "audio/wav", aws.ToString(putter.input.ContentType))
	require.Equal(t, []byte("wavdata"), putter.body)
}

func TestUploadWithoutPrefix(t *testing.T) {
	u := NewWithClient(&fakePutter{}, "archive", "", nil)
	u.now = fixedNow
	require.Equal(t, "20260304T050607Z-a.wav", u.Key("/tmp/a.wav"))
}

func TestUploadPropagatesClientError(t *testing.T) {
	local := filepath.Join(t.TempDir(), "u.wav")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o600))

	boom := errors.New("access denied")
	u := NewWithClient(&fakePutter{err: boom}, "archive", "hark", nil)
	_, err := u.Upload(context.Background(), local)
	require.ErrorIs(t, err, boom)
}

func TestUploadMissingFile(t *testing.T) {
	u := NewWithClient(&fakePutter{}, "archive", "hark", nil)
	_, err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(config.Default().Upload, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bucket")
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	cfg := config.Default().Upload
	cfg.Bucket = "archive"

	_, err := New(cfg, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "access key and secret are required")
}

func TestNewUsesEnvironmentCredentials(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	cfg := config.Default().Upload
	cfg.Bucket = "archive"
	cfg.Endpoint = "http://127.0.0.1:9000"

	u, err := New(cfg, nil)
	require.NoError(t, err)

	client, ok := u.client.(*s3.Client)
	require.True(t, ok)
	opts := client.Options()
	require.True(t, opts.UsePathStyle)
	require.Equal(t, "http://127.0.0.1:9000", aws.ToString(opts.BaseEndpoint))
	require.Equal(t, "auto", opts.Region)
}
