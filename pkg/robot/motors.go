// Package robot provides the receiver side of the teleoperation link: the
// configuration file, and drivers that move the physical servos.
package robot

import (
	"github.com/pkg/errors"

	"github.com/gwillem/vrteleop/pkg/servo"
)

// Output describes how one servo channel is wired on the robot.
type Output struct {
	// PWM is the PCA9685 output the servo is plugged into.
	PWM int `json:"pwm"`
	// Rest is the angle the servo is parked at on shutdown.
	Rest float64 `json:"rest"`
}

// Outputs maps each servo channel to its wiring.
type Outputs map[servo.Channel]Output

// DefaultOutputs returns the wiring of the reference build.
func DefaultOutputs() Outputs {
	return Outputs{
		servo.ShoulderRoll:  {PWM: 0, Rest: 90},
		servo.ShoulderPitch: {PWM: 1, Rest: 180},
		servo.ShoulderYaw:   {PWM: 2, Rest: 90},
		servo.Elbow:         {PWM: 3, Rest: 90},
		servo.Wrist:         {PWM: 4, Rest: 90},
		servo.Grip:          {PWM: 5, Rest: 150},
		servo.HeadPan:       {PWM: 12, Rest: 90},
		servo.HeadTilt:      {PWM: 13, Rest: 120},
	}
}

// RestValues returns the rest pose as a full command table. Channels without
// wiring rest at servo.Neutral.
func (o Outputs) RestValues() servo.Values {
	v := servo.NeutralValues()
	for ch, out := range o {
		v[ch] = out.Rest
	}
	return v
}

// Validate checks that PWM outputs exist on a PCA9685 and are not shared.
func (o Outputs) Validate() error {
	used := make(map[int]servo.Channel, len(o))
	for _, ch := range servo.AllChannels() {
		out, ok := o[ch]
		if !ok {
			continue
		}
		if out.PWM < 0 || out.PWM > 15 {
			return errors.Errorf("%s: pwm output %d out of range 0-15", ch, out.PWM)
		}
		if other, dup := used[out.PWM]; dup {
			return errors.Errorf("%s: pwm output %d already used by %s", ch, out.PWM, other)
		}
		used[out.PWM] = ch
		if out.Rest < 0 || out.Rest > 180 {
			return errors.Errorf("%s: rest angle %v out of range 0-180", ch, out.Rest)
		}
	}
	return nil
}
