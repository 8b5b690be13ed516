package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/NIU1599156/CameraManager/internal/models"
	"github.com/NIU1599156/CameraManager/internal/notify"
)

const exportTimeout = 5 * time.Second

// MotionPublisher exports events to a message bus.
type MotionPublisher interface {
	PublishMotion(event models.MotionEvent) error
}

// SnapshotStore keeps the frame that triggered an event.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, event models.MotionEvent) (string, error)
}

// fanout delivers each event to the observers first, then to the optional
// exporters. Export failures are logged and never reach observers.
type fanout struct {
	hub       *notify.Hub
	motion    MotionPublisher
	snapshots SnapshotStore
	logger    zerolog.Logger
}

func (f *fanout) Publish(ctx context.Context, event models.MotionEvent) {
	f.hub.Broadcast(ctx, event)

	if f.motion != nil {
		if err := f.motion.PublishMotion(event); err != nil {
			f.logger.Error().Err(err).Int("camera_id", event.CameraID).Msg("failed to publish motion event")
		}
	}

	if f.snapshots != nil && event.Frame != nil {
		sctx, cancel := context.WithTimeout(ctx, exportTimeout)
		defer cancel()

		key, err := f.snapshots.SaveSnapshot(sctx, event)
		if err != nil {
			f.logger.Error().Err(err).Int("camera_id", event.CameraID).Msg("failed to save snapshot")
			return
		}
		f.logger.Debug().Str("key", key).Int("camera_id", event.CameraID).Msg("snapshot saved")
	}
}
