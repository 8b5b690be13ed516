package alarm

import (
	"fmt"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIOLine is a GPIO pin configured as an output.
type GPIOLine struct {
	pin gpio.PinIO
}

// OpenGPIO initializes the host drivers and drives the named pin (e.g.
// "GPIO2") LOW.
func OpenGPIO(name string) (*GPIOLine, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: failed to init host: %v", ErrActuatorFailure, err)
	}

	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: unknown pin %q", ErrActuatorFailure, name)
	}

	l := &GPIOLine{pin: pin}
	if err := l.Set(false); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *GPIOLine) Set(high bool) error {
	level := gpio.Low
	if high {
		level = gpio.High
	}
	return l.pin.Out(level)
}

// NopLine only logs transitions. Used on hosts without GPIO.
type NopLine struct {
	logger zerolog.Logger
}

func NewNopLine(logger zerolog.Logger) *NopLine {
	return &NopLine{logger: logger.With().Str("component", "alarm").Logger()}
}

func (l *NopLine) Set(high bool) error {
	l.logger.Debug().Bool("high", high).Msg("alarm line set")
	return nil
}
