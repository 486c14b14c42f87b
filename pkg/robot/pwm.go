package robot

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/pca9685"
	"periph.io/x/host/v3"

	"github.com/gwillem/vrteleop/pkg/servo"
)

// pwmResolution is the PCA9685 counter range per period.
const pwmResolution = 4096

// PWMConfig configures a PCA9685 servo board.
type PWMConfig struct {
	// Bus is the I2C bus name; empty opens the first available bus.
	Bus       string  `json:"bus"`
	Address   uint16  `json:"address"`
	Frequency float64 `json:"frequency"`
	// PulseMin and PulseMax are the pulse widths in microseconds for 0° and
	// 180°.
	PulseMin float64 `json:"pulse_min"`
	PulseMax float64 `json:"pulse_max"`
}

// DefaultPWMConfig returns settings for hobby servos on a PCA9685 at 50Hz.
func DefaultPWMConfig() PWMConfig {
	return PWMConfig{
		Address:   pca9685.I2CAddr,
		Frequency: 50,
		PulseMin:  500,
		PulseMax:  2500,
	}
}

// Duty converts an angle to PCA9685 off-counts for this config.
func (c PWMConfig) Duty(deg float64) gpio.Duty {
	deg = math.Max(0, math.Min(180, deg))
	pulse := c.PulseMin + deg/180*(c.PulseMax-c.PulseMin)
	period := float64(time.Second/time.Microsecond) / c.Frequency
	return gpio.Duty(math.Round(pulse / period * pwmResolution))
}

// pwmWriter is the subset of *pca9685.Dev the driver needs.
type pwmWriter interface {
	SetPwm(channel int, on, off gpio.Duty) error
}

// PWMDriver drives hobby servos through a PCA9685 on I2C.
type PWMDriver struct {
	cfg     PWMConfig
	outputs Outputs
	dev     pwmWriter
	bus     i2c.BusCloser
}

// NewPWMDriver initializes the host, opens the I2C bus and configures the
// PCA9685 frequency.
func NewPWMDriver(cfg PWMConfig, outputs Outputs) (*PWMDriver, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "init host")
	}

	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, errors.Wrap(err, "open i2c bus")
	}

	dev, err := pca9685.NewI2C(bus, cfg.Address)
	if err != nil {
		bus.Close()
		return nil, errors.Wrap(err, "open pca9685")
	}

	if err := dev.SetPwmFreq(physic.Frequency(cfg.Frequency * float64(physic.Hertz))); err != nil {
		bus.Close()
		return nil, errors.Wrap(err, "set pwm frequency")
	}

	return &PWMDriver{cfg: cfg, outputs: outputs, dev: dev, bus: bus}, nil
}

// Apply writes one pulse width per wired channel.
func (d *PWMDriver) Apply(_ context.Context, v servo.Values) error {
	var err error
	for _, ch := range servo.AllChannels() {
		out, ok := d.outputs[ch]
		if !ok {
			continue
		}
		if e := d.dev.SetPwm(out.PWM, 0, d.cfg.Duty(v[ch])); e != nil {
			err = multierr.Append(err, errors.Wrapf(e, "%s (pwm %d)", ch, out.PWM))
		}
	}
	return err
}

// Rest moves every wired servo to its rest angle.
func (d *PWMDriver) Rest(ctx context.Context) error {
	return d.Apply(ctx, d.outputs.RestValues())
}

// Close releases the I2C bus. Servos hold their last pulse.
func (d *PWMDriver) Close() error {
	if d.bus == nil {
		return nil
	}
	return d.bus.Close()
}
