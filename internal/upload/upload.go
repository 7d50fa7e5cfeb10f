// Package upload archives finished recordings to S3-compatible storage.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rbright/hark/internal/config"
)

// ObjectPutter is the subset of the S3 client used for archival.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader writes recordings under a bucket prefix.
type Uploader struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Uploader for cfg. Credentials fall back to
// AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY when the config leaves them empty.
func New(cfg config.UploadConfig, logger *slog.Logger) (*Uploader, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("upload bucket is not configured")
	}
	client, err := createS3Client(cfg)
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}
	return NewWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewWithClient wires an explicit client.
func NewWithClient(client ObjectPutter, bucket, prefix string, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Uploader{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
		now:    time.Now,
	}
}

func createS3Client(cfg config.UploadConfig) (*s3.Client, error) {
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if secretKey == "" {
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("access key and secret are required")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	creds := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = region
		},
	}
	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...), nil
}

// Key returns the object key used for the recording at localPath.
func (u *Uploader) Key(localPath string) string {
	name := fmt.Sprintf("%s-%s", u.now().UTC().Format("20060102T150405Z"), filepath.Base(localPath))
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// Upload stores the file at localPath and returns its object key.
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open recording: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat recording: %w", err)
	}

	key := u.Key(localPath)
	started := time.Now()
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("audio/wav"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	u.logger.Info("recording archived",
		"bucket", u.bucket,
		"key", key,
		"bytes", info.Size(),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return key, nil
}
