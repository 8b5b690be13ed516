// Package alarm drives the physical alarm output.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/NIU1599156/CameraManager/internal/metrics"
)

var (
	ErrBusy            = errors.New("alarm pulse already in progress")
	ErrActuatorFailure = errors.New("alarm actuator failure")
)

// Line is a digital output. Set(true) drives it HIGH.
type Line interface {
	Set(high bool) error
}

// Actuator pulses a line HIGH for a while. Pulses never overlap: a pulse
// requested while another is in progress fails with ErrBusy.
type Actuator struct {
	line    Line
	mu      sync.Mutex
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewActuator(line Line, m *metrics.Metrics, logger zerolog.Logger) *Actuator {
	return &Actuator{
		line:    line,
		metrics: m,
		logger:  logger.With().Str("component", "alarm").Logger(),
	}
}

// Pulse drives the line HIGH for d, then LOW. The line is driven LOW on
// every return path, including cancellation and a failed HIGH write.
func (a *Actuator) Pulse(ctx context.Context, d time.Duration) (err error) {
	if !a.mu.TryLock() {
		a.metrics.AlarmPulses.WithLabelValues("busy").Inc()
		return ErrBusy
	}
	defer a.mu.Unlock()

	defer func() {
		if lowErr := a.line.Set(false); lowErr != nil && err == nil {
			err = fmt.Errorf("%w: failed to set line low: %v", ErrActuatorFailure, lowErr)
		}

		result := "ok"
		if err != nil {
			result = "failed"
			a.logger.Error().Err(err).Msg("alarm activation failed")
		} else {
			a.logger.Debug().Msg("alarm deactivated")
		}
		a.metrics.AlarmPulses.WithLabelValues(result).Inc()
	}()

	if err := a.line.Set(true); err != nil {
		return fmt.Errorf("%w: failed to set line high: %v", ErrActuatorFailure, err)
	}
	a.logger.Debug().Dur("duration", d).Msg("alarm activated")

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset drives the line LOW, waiting for any pulse in progress to end.
func (a *Actuator) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.line.Set(false); err != nil {
		return fmt.Errorf("%w: %v", ErrActuatorFailure, err)
	}
	return nil
}
