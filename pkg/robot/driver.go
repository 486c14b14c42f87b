package robot

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/gwillem/vrteleop/pkg/servo"
)

// Driver moves the robot's servos.
type Driver interface {
	// Apply commands every channel to the given angle in degrees.
	Apply(ctx context.Context, v servo.Values) error
	// Rest parks every servo at its rest angle.
	Rest(ctx context.Context) error
	Close() error
}

// PositionReader is implemented by drivers that can read the servo angles
// back, such as bus servos.
type PositionReader interface {
	ReadPositions(ctx context.Context) (map[servo.Channel]float64, error)
}

// LogDriver is a dry-run Driver that only logs the commanded angles.
type LogDriver struct {
	logger *zap.SugaredLogger
	rest   servo.Values

	mu      sync.Mutex
	last    servo.Values
	applied int
}

// NewLogDriver creates a dry-run driver.
func NewLogDriver(logger *zap.SugaredLogger, rest servo.Values) *LogDriver {
	return &LogDriver{logger: logger, rest: rest, last: servo.NeutralValues()}
}

// Apply records and logs v.
func (d *LogDriver) Apply(_ context.Context, v servo.Values) error {
	d.mu.Lock()
	d.last = v
	d.applied++
	d.mu.Unlock()

	d.logger.Debugw("apply", "values", servo.Encode(v))
	return nil
}

// Rest logs the rest pose.
func (d *LogDriver) Rest(ctx context.Context) error {
	d.logger.Infow("moving to rest pose", "values", servo.Encode(d.rest))
	return d.Apply(ctx, d.rest)
}

// Last returns the most recently applied table and the number of Apply calls.
func (d *LogDriver) Last() (servo.Values, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.applied
}

func (d *LogDriver) Close() error {
	return nil
}
