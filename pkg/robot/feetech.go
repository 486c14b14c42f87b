package robot

import (
	"context"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/gwillem/vrteleop/pkg/servo"
)

// FeetechDriver drives STS bus servos on a serial port.
type FeetechDriver struct {
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	calibration Calibration
	rest        servo.Values
}

// NewFeetechDriver opens the bus and groups the calibrated servos.
func NewFeetechDriver(port string, cal Calibration, rest servo.Values) (*FeetechDriver, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open bus")
	}

	return &FeetechDriver{
		bus:         bus,
		group:       feetech.NewServoGroupByIDs(bus, cal.MotorIDs()...),
		calibration: cal,
		rest:        rest,
	}, nil
}

// Enable enables torque on all servos.
func (d *FeetechDriver) Enable(ctx context.Context) error {
	return d.group.EnableAll(ctx)
}

// ReadPositions reads the current angle of every calibrated channel.
func (d *FeetechDriver) ReadPositions(ctx context.Context) (map[servo.Channel]float64, error) {
	raw, err := d.group.Positions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read positions")
	}

	positions := make(map[servo.Channel]float64, len(raw))
	for id, pos := range raw {
		ch, cal, ok := d.calibration.ByID(id)
		if !ok {
			continue
		}
		positions[ch] = cal.Degrees(pos)
	}
	return positions, nil
}

// Apply writes all calibrated channels in one sync write.
func (d *FeetechDriver) Apply(ctx context.Context, v servo.Values) error {
	if err := d.group.SetPositions(ctx, d.calibration.positions(v)); err != nil {
		return errors.Wrap(err, "write positions")
	}
	return nil
}

// Rest moves to the rest pose.
func (d *FeetechDriver) Rest(ctx context.Context) error {
	return d.Apply(ctx, d.rest)
}

// Close disables torque and closes the bus.
func (d *FeetechDriver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return multierr.Combine(
		d.group.DisableAll(ctx),
		d.bus.Close(),
	)
}

// positions converts angles to raw bus positions for every calibrated channel.
func (c Calibration) positions(v servo.Values) feetech.PositionMap {
	raw := make(feetech.PositionMap, len(c))
	for ch, mc := range c {
		raw[mc.ID] = mc.Raw(v[ch])
	}
	return raw
}
