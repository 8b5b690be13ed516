package app

import (
	"context"
	"errors"

	"github.com/goccy/go-json"

	"github.com/NIU1599156/CameraManager/internal/kafka"
	"github.com/NIU1599156/CameraManager/internal/models"
	"github.com/NIU1599156/CameraManager/internal/registry"
	"github.com/NIU1599156/CameraManager/internal/stream"
)

// ListenForCommands applies stream commands until ctx is done or messages
// is closed. A message is acked once its command is applied, or when
// retrying could not change the outcome (already running, not running,
// unknown camera). Malformed messages and spawn failures stay unacked.
func (a *App) ListenForCommands(ctx context.Context, messages <-chan kafka.Message) {
	a.logger.Info().Msg("listening for stream commands")
	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("command listener shutting down")
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}

			var cmd models.StreamCommand
			if err := json.Unmarshal(msg.Value, &cmd); err != nil {
				a.logger.Error().Err(err).Msg("invalid command format")
				continue
			}
			a.logger.Info().Int("camera_id", cmd.CameraID).Str("action", string(cmd.Action)).Msg("received stream command")

			if err := a.applyCommand(ctx, cmd); err != nil {
				a.logger.Error().Err(err).Int("camera_id", cmd.CameraID).Msg("failed to process command")
				continue
			}
			msg.Ack()
		}
	}
}

func (a *App) applyCommand(ctx context.Context, cmd models.StreamCommand) error {
	var err error
	switch cmd.Action {
	case models.CommandStart:
		_, err = a.StartStream(ctx, cmd.CameraID)
	case models.CommandStop:
		err = a.StopStream(cmd.CameraID)
	default:
		a.logger.Warn().Str("action", string(cmd.Action)).Msg("unknown command")
		return nil
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, stream.ErrAlreadyRunning), errors.Is(err, stream.ErrNotFound), errors.Is(err, registry.ErrNotFound):
		a.logger.Warn().Err(err).Int("camera_id", cmd.CameraID).Msg("command had no effect")
		return nil
	default:
		return err
	}
}
