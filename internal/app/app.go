// Package app composes the camera manager: registry, motion detection,
// observer notifications, stream relays and the alarm.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/NIU1599156/CameraManager/internal/alarm"
	"github.com/NIU1599156/CameraManager/internal/config"
	"github.com/NIU1599156/CameraManager/internal/detection"
	"github.com/NIU1599156/CameraManager/internal/metrics"
	"github.com/NIU1599156/CameraManager/internal/models"
	"github.com/NIU1599156/CameraManager/internal/motion"
	"github.com/NIU1599156/CameraManager/internal/notify"
	"github.com/NIU1599156/CameraManager/internal/registry"
	"github.com/NIU1599156/CameraManager/internal/stream"
)

// Deps are the collaborators built outside the app. Motion and Snapshots
// are optional.
type Deps struct {
	Registry   *registry.Registry
	Opener     detection.Opener
	Line       alarm.Line
	StreamArgs stream.ArgsBuilder
	Motion     MotionPublisher
	Snapshots  SnapshotStore
}

type App struct {
	cfg *config.Config

	registry  *registry.Registry
	detection *detection.Supervisor
	hub       *notify.Hub
	streams   *stream.Supervisor
	actuator  *alarm.Actuator
	metrics   *metrics.Metrics

	logger zerolog.Logger
}

// Status is the operational summary served by the API.
type Status struct {
	Detection bool                     `json:"detection"`
	Workers   []detection.WorkerStatus `json:"workers"`
	Streams   []stream.Handle          `json:"streams"`
	Observers int                      `json:"observers"`
}

func New(cfg *config.Config, deps Deps, m *metrics.Metrics, logger zerolog.Logger) *App {
	th := cfg.Detection.Thresholds
	detector := motion.NewDetector(motion.Thresholds{
		NoiseFloor:       th.NoiseFloor,
		MinBlobArea:      th.MinBlobArea,
		ROIMargin:        th.ROIMargin,
		DilateIterations: th.DilateIterations,
	})

	hub := notify.NewHub(cfg.Notify.SendTimeout, m, logger)
	sink := &fanout{
		hub:       hub,
		motion:    deps.Motion,
		snapshots: deps.Snapshots,
		logger:    logger.With().Str("component", "export").Logger(),
	}

	d := cfg.Detection
	supervisor := detection.NewSupervisor(deps.Registry, deps.Opener, detector, sink, detection.Config{
		SweepInterval: d.SweepInterval,
		RetryDelay:    d.RetryDelay,
		MaxRetryDelay: d.MaxRetryDelay,
		Worker: detection.WorkerConfig{
			SkipFrames: d.SkipFrames,
			PollDelay:  d.PollDelay,
		},
	}, m, logger)

	streams := stream.NewSupervisor(stream.Config{
		Binary:      cfg.Stream.Binary,
		Destination: cfg.Stream.Destination,
		StopTimeout: cfg.Stream.StopTimeout,
	}, deps.StreamArgs, m, logger)

	return &App{
		cfg:       cfg,
		registry:  deps.Registry,
		detection: supervisor,
		hub:       hub,
		streams:   streams,
		actuator:  alarm.NewActuator(deps.Line, m, logger),
		metrics:   m,
		logger:    logger.With().Str("component", "app").Logger(),
	}
}

func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

func (a *App) StartDetection(ctx context.Context) error {
	return a.detection.Start(ctx)
}

func (a *App) StopDetection() {
	a.detection.Stop()
}

func (a *App) Cameras() []models.Camera {
	return a.registry.List()
}

func (a *App) Camera(id int) (models.Camera, error) {
	return a.registry.Get(id)
}

// AddCamera registers a camera. The detection loop picks it up on its next
// sweep.
func (a *App) AddCamera(ctx context.Context, name, address string) (models.Camera, error) {
	return a.registry.Add(ctx, name, address)
}

func (a *App) UpdateCamera(ctx context.Context, id int, name, address string) (models.Camera, error) {
	return a.registry.Update(ctx, id, name, address)
}

// DeleteCamera removes the camera and stops its relay, if any.
func (a *App) DeleteCamera(ctx context.Context, id int) error {
	if err := a.registry.Delete(ctx, id); err != nil {
		return err
	}
	if err := a.streams.Stop(id); err != nil && !errors.Is(err, stream.ErrNotFound) {
		a.logger.Error().Err(err).Int("camera_id", id).Msg("failed to stop relay of deleted camera")
	}
	return nil
}

// DeleteAllCameras stops every relay and empties the registry.
func (a *App) DeleteAllCameras(ctx context.Context) error {
	a.streams.StopAll()
	return a.registry.DeleteAll(ctx)
}

// StartStream starts the relay of a registered camera.
func (a *App) StartStream(ctx context.Context, id int) (stream.Handle, error) {
	if err := ctx.Err(); err != nil {
		return stream.Handle{}, err
	}

	camera, err := a.registry.Get(id)
	if err != nil {
		return stream.Handle{}, err
	}
	return a.streams.Start(camera)
}

func (a *App) StopStream(id int) error {
	return a.streams.Stop(id)
}

func (a *App) Streams() []stream.Handle {
	return a.streams.List()
}

// PulseAlarm holds the alarm line HIGH for the configured duration. The
// pulse runs to completion even if the caller goes away.
func (a *App) PulseAlarm(ctx context.Context) error {
	return a.actuator.Pulse(context.WithoutCancel(ctx), a.cfg.Alarm.Duration)
}

func (a *App) Subscribe(o notify.Observer) notify.Handle {
	return a.hub.Subscribe(o)
}

func (a *App) Unsubscribe(h notify.Handle) bool {
	return a.hub.Unsubscribe(h)
}

// Broadcast sends text to every observer and returns how many received it.
func (a *App) Broadcast(ctx context.Context, text string) int {
	return a.hub.BroadcastText(ctx, text)
}

func (a *App) Status() Status {
	return Status{
		Detection: a.detection.Running(),
		Workers:   a.detection.Workers(),
		Streams:   a.streams.List(),
		Observers: a.hub.Len(),
	}
}

// Shutdown stops detection and every relay, drives the alarm LOW and
// disconnects all observers.
func (a *App) Shutdown() error {
	a.detection.Stop()
	a.streams.StopAll()

	var errs []error
	if err := a.actuator.Reset(); err != nil {
		errs = append(errs, fmt.Errorf("failed to reset alarm: %w", err))
	}
	a.hub.CloseAll()

	a.logger.Info().Msg("shutdown complete")
	return errors.Join(errs...)
}
