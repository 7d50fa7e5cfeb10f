package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"

	"github.com/rbright/hark/internal/recorder"
)

const (
	sampleBuffer        = 128
	DefaultStallTimeout = 2 * time.Second
)

var errCaptureStopped = errors.New("capture already stopped")

// CaptureOptions configures one capture.
type CaptureOptions struct {
	// Dir receives the finished WAV artifact.
	Dir string
	// StallTimeout reports a device fault when no PCM arrives for this long.
	// Zero uses DefaultStallTimeout; negative disables the watchdog.
	StallTimeout time.Duration
	Logger       *slog.Logger
}

// Capture records 16kHz mono s16 from one Pulse source and emits one metered
// sample per 20ms window.
type Capture struct {
	source Source
	opts   CaptureOptions

	client *pulse.Client
	stream *pulse.RecordStream

	samples chan recorder.Sample
	faults  chan error
	stopCh  chan struct{}

	mu        sync.Mutex
	pcm       []byte
	window    LevelData
	windowLen int
	stopped   bool
	finalized bool

	inflight  sync.WaitGroup
	bytes     atomic.Int64
	dropped   atomic.Int64
	lastWrite atomic.Int64
}

func newCapture(source Source, opts CaptureOptions) *Capture {
	c := &Capture{
		source:  source,
		opts:    opts,
		samples: make(chan recorder.Sample, sampleBuffer),
		faults:  make(chan error, 1),
		stopCh:  make(chan struct{}),
	}
	c.lastWrite.Store(time.Now().UnixNano())
	return c
}

// StartCapture creates and starts a record stream bound to ctx.
func StartCapture(ctx context.Context, source Source, opts CaptureOptions) (*Capture, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	pulseSource, err := client.SourceByID(source.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", source.ID, err)
	}

	capture := newCapture(source, opts)
	capture.client = client

	writer := pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(pulseSource),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(frameBytes),
		pulse.RecordMediaName("hark utterance"),
	)
	if err != nil {
		_ = capture.Release()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	stream.Start()

	stall := opts.StallTimeout
	if stall == 0 {
		stall = DefaultStallTimeout
	}
	if stall > 0 {
		go capture.watch(stall)
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = capture.Release()
		case <-capture.stopCh:
		}
	}()

	return capture, nil
}

// Source returns capture metadata for logging and diagnostics.
func (c *Capture) Source() Source {
	return c.source
}

func (c *Capture) Samples() <-chan recorder.Sample {
	return c.samples
}

func (c *Capture) Faults() <-chan error {
	return c.faults
}

// BytesCaptured reports total bytes accepted from Pulse.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// Dropped reports samples discarded because the consumer fell behind.
func (c *Capture) Dropped() int64 {
	return c.dropped.Load()
}

// Stop halts the stream and writes the captured audio as a WAV artifact.
func (c *Capture) Stop(ctx context.Context) (recorder.Artifact, error) {
	c.mu.Lock()
	if c.finalized || (c.stopped && c.pcm == nil) {
		c.mu.Unlock()
		return recorder.Artifact{}, errCaptureStopped
	}
	c.finalized = true
	c.mu.Unlock()

	c.halt()

	if err := ctx.Err(); err != nil {
		return recorder.Artifact{}, err
	}

	c.mu.Lock()
	pcm := c.pcm
	c.pcm = nil
	c.mu.Unlock()

	path, err := WriteArtifact(c.opts.Dir, pcm)
	if err != nil {
		return recorder.Artifact{}, err
	}
	if n := c.dropped.Load(); n > 0 && c.opts.Logger != nil {
		c.opts.Logger.Warn("meter samples dropped", "count", n)
	}
	return recorder.Artifact{
		Path:     path,
		Duration: bytesToDuration(len(pcm)),
		Bytes:    int64(len(pcm)),
	}, nil
}

// Release closes the stream and discards audio not yet written by Stop.
func (c *Capture) Release() error {
	c.halt()
	c.mu.Lock()
	c.pcm = nil
	c.mu.Unlock()
	return nil
}

// halt stops the stream and closes Samples exactly once.
func (c *Capture) halt() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()
	close(c.samples)
}

// onPCM receives raw Pulse frames, keeps them for the artifact and emits one
// sample per full metering window.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-c.stopCh:
		return 0, io.EOF
	default:
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Guard Add under the same mutex as c.stopped to avoid Add/Wait races.
	c.inflight.Add(1)
	defer c.inflight.Done()

	offset := len(c.pcm)
	c.pcm = append(c.pcm, buffer...)

	var out []recorder.Sample
	for rest := buffer; len(rest) > 0; {
		n := min(frameBytes-c.windowLen, len(rest))
		ProcessSamples(rest[:n], &c.window)
		c.windowLen += n
		offset += n
		rest = rest[n:]

		if c.windowLen == frameBytes {
			levels := CalculateLevels(&c.window)
			out = append(out, recorder.Sample{
				Level: levels.RMS,
				Peak:  levels.Peak,
				At:    bytesToDuration(offset),
			})
			c.window.Reset()
			c.windowLen = 0
		}
	}
	c.mu.Unlock()

	c.bytes.Add(int64(len(buffer)))
	c.lastWrite.Store(time.Now().UnixNano())

	for _, sample := range out {
		select {
		case c.samples <- sample:
		default:
			c.dropped.Add(1)
		}
	}
	return len(buffer), nil
}

// watch reports a fault when the stream stops delivering PCM.
func (c *Capture) watch(timeout time.Duration) {
	ticker := time.NewTicker(max(timeout/4, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			idle := now.Sub(time.Unix(0, c.lastWrite.Load()))
			if idle < timeout {
				continue
			}
			select {
			case c.faults <- fmt.Errorf("no audio from %s for %s", c.source, idle.Round(time.Millisecond)):
			default:
			}
			return
		}
	}
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
