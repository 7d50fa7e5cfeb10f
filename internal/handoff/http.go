package handoff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const maxReplyBytes = 32 << 20

// HTTPClient posts recordings as multipart forms.
type HTTPClient struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPClient creates a client for the given endpoint.
func NewHTTPClient(url string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Send uploads the WAV at path with the envelope fields and decodes the reply.
func (c *HTTPClient) Send(ctx context.Context, path string, env Envelope) (Reply, error) {
	if err := env.Validate(); err != nil {
		return Reply{}, err
	}

	body, contentType, err := buildForm(path, env)
	if err != nil {
		return Reply{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return Reply{}, fmt.Errorf("create handoff request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("post recording: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return Reply{}, fmt.Errorf("read handoff response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Reply{}, fmt.Errorf("handoff returned status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var reply Reply
	if err := json.Unmarshal(data, &reply); err != nil {
		return Reply{}, fmt.Errorf("decode handoff response: %w", err)
	}

	c.logger.Debug("handoff complete",
		"url", c.url,
		"status", resp.StatusCode,
		"latency_ms", time.Since(started).Milliseconds(),
		"silent", reply.Silent,
	)
	return reply, nil
}

func buildForm(path string, env Envelope) (*bytes.Buffer, string, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read recording: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}

	fields := env.Fields()
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := writer.WriteField(key, fields[key]); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
