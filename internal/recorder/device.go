package recorder

import (
	"context"
	"time"
)

// Sample is one amplitude reading. At is the offset on the capture clock,
// non-decreasing within one capture.
type Sample struct {
	Level float64
	Peak  float64
	At    time.Duration
}

// Artifact references the audio written by a stopped capture.
type Artifact struct {
	Path     string
	Duration time.Duration
	Bytes    int64
}

// Device opens captures.
type Device interface {
	Open(ctx context.Context) (Handle, error)
}

// Handle is one open capture.
//
// Samples and Faults deliver asynchronously. Stop flushes and finalizes the
// artifact; Release closes the device and discards anything not stopped.
// Release must be idempotent and safe after Stop.
type Handle interface {
	Samples() <-chan Sample
	Faults() <-chan error
	Stop(ctx context.Context) (Artifact, error)
	Release() error
}

// DeviceFunc adapts a function into a Device.
type DeviceFunc func(ctx context.Context) (Handle, error)

func (f DeviceFunc) Open(ctx context.Context) (Handle, error) {
	return f(ctx)
}
