package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"

	"github.com/NIU1599156/CameraManager/internal/framesource"
	"github.com/NIU1599156/CameraManager/internal/models"
	"github.com/NIU1599156/CameraManager/internal/motion"
)

// State is the lifecycle position of a detector worker.
type State string

const (
	StateOpening  State = "opening"
	StateScanning State = "scanning"
	StateDetected State = "detected"
	StateClosed   State = "closed"
	StateFaulted  State = "faulted"
)

// Opener acquires a frame source for a camera address.
type Opener = framesource.Opener

// Result is what a worker reports when it exits.
type Result struct {
	State State
	Err   error
}

// WorkerConfig paces a worker's scan loop.
type WorkerConfig struct {
	SkipFrames int
	PollDelay  time.Duration
}

// Worker scans one camera until it sees motion, its stream fails or its
// context is cancelled. It owns its frame window exclusively.
type Worker struct {
	camera   models.Camera
	opener   Opener
	detector *motion.Detector
	cfg      WorkerConfig
	logger   zerolog.Logger

	prev, curr *image.RGBA
}

func NewWorker(camera models.Camera, opener Opener, detector *motion.Detector, cfg WorkerConfig, logger zerolog.Logger) *Worker {
	return &Worker{
		camera:   camera,
		opener:   opener,
		detector: detector,
		cfg:      cfg,
		logger: logger.With().
			Int("camera_id", camera.ID).
			Str("camera", camera.Name).
			Logger(),
	}
}

// Run drives the worker state machine. A positive detection is sent on
// events and ends the run with StateDetected; the source is closed on every
// exit path.
func (w *Worker) Run(ctx context.Context, events chan<- models.MotionEvent) Result {
	src, err := w.opener.Open(ctx, w.camera.Address)
	if err != nil {
		if ctx.Err() != nil {
			return Result{State: StateClosed}
		}
		if !errors.Is(err, framesource.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", framesource.ErrSourceUnavailable, err)
		}
		w.logger.Error().Err(err).Str("address", w.camera.Address).Msg("failed to open video")
		return Result{State: StateFaulted, Err: err}
	}
	defer func() {
		if err := src.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("failed to release video source")
		}
	}()
	// unblocks a Read stuck on a stalled stream once the worker is told to stop
	release := context.AfterFunc(ctx, func() { _ = src.Close() })
	defer release()

	res := w.scan(ctx, src, events)
	switch res.State {
	case StateFaulted:
		w.logger.Warn().Err(res.Err).Msg("worker faulted")
	case StateDetected:
		w.logger.Debug().Msg("motion detected")
	}
	return res
}

func (w *Worker) scan(ctx context.Context, src framesource.Source, events chan<- models.MotionEvent) Result {
	var err error
	if w.curr, err = src.Read(); err != nil {
		return w.readFailed(ctx, err)
	}
	if err := w.advance(src); err != nil {
		return w.readFailed(ctx, err)
	}

	roi := w.detector.ROI(w.curr.Rect.Dy())

	for {
		if ctx.Err() != nil {
			return Result{State: StateClosed}
		}

		if w.detector.Detect(w.prev, w.curr, roi) {
			event := models.MotionEvent{
				CameraID:   w.camera.ID,
				CameraName: w.camera.Name,
				Timestamp:  time.Now().UTC(),
				Frame:      w.curr,
			}
			select {
			case events <- event:
				return Result{State: StateDetected}
			case <-ctx.Done():
				return Result{State: StateClosed}
			}
		}

		if err := w.advance(src); err != nil {
			return w.readFailed(ctx, err)
		}

		select {
		case <-ctx.Done():
			return Result{State: StateClosed}
		case <-time.After(w.cfg.PollDelay):
		}
	}
}

// advance slides the window: the newest frame becomes prev, SkipFrames
// frames are dropped and the next one becomes curr.
func (w *Worker) advance(src framesource.Source) error {
	if err := src.Skip(w.cfg.SkipFrames); err != nil {
		return err
	}
	next, err := src.Read()
	if err != nil {
		return err
	}
	w.prev, w.curr = w.curr, next
	return nil
}

func (w *Worker) readFailed(ctx context.Context, err error) Result {
	if ctx.Err() != nil {
		return Result{State: StateClosed}
	}
	if !errors.Is(err, framesource.ErrReadFailure) {
		err = fmt.Errorf("%w: %v", framesource.ErrReadFailure, err)
	}
	return Result{State: StateFaulted, Err: err}
}
