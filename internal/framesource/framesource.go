// Package framesource decodes a camera stream into raw frames.
//
// The default Opener runs an ffmpeg child process per camera that writes
// fixed-size RGBA frames to its stdout; Source reads them one at a time.
package framesource

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrSourceUnavailable means the camera could not be opened.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrReadFailure means the stream ended or broke after it was opened.
	ErrReadFailure = errors.New("frame read failed")
)

// Source is one open camera stream. It is owned by a single reader and is
// not safe for concurrent use.
type Source interface {
	// Read returns the next decoded frame. The returned frame is owned by
	// the caller and is not reused by the source.
	Read() (*image.RGBA, error)
	// Skip discards the next n frames.
	Skip(n int) error
	Close() error
}

// Opener acquires a Source for a camera address.
type Opener interface {
	Open(ctx context.Context, address string) (Source, error)
}

var _ Opener = (*FFmpeg)(nil)
