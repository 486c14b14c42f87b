// Package servo holds the shared servo command table and its wire format.
package servo

import "github.com/pkg/errors"

// Channel identifies one servo output in the command table.
type Channel int

// Channels in wire order.
const (
	ShoulderYaw Channel = iota
	ShoulderPitch
	ShoulderRoll
	Elbow
	Wrist
	Grip
	HeadPan
	HeadTilt

	// NumChannels is the fixed size of the command table.
	NumChannels = 8
)

// Neutral is the value every channel holds before any producer writes.
const Neutral = 90.0

var channelNames = [NumChannels]string{
	"shoulder_yaw",
	"shoulder_pitch",
	"shoulder_roll",
	"elbow",
	"wrist",
	"grip",
	"head_pan",
	"head_tilt",
}

// String returns the channel's snake_case name.
func (c Channel) String() string {
	if c < 0 || int(c) >= NumChannels {
		return "unknown"
	}
	return channelNames[c]
}

// ParseChannel looks a channel up by name.
func ParseChannel(name string) (Channel, bool) {
	for i, n := range channelNames {
		if n == name {
			return Channel(i), true
		}
	}
	return 0, false
}

// MarshalText encodes the channel as its name, so channel-keyed maps read
// naturally in JSON config.
func (c Channel) MarshalText() ([]byte, error) {
	if c < 0 || int(c) >= NumChannels {
		return nil, errors.Errorf("invalid channel %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a channel name.
func (c *Channel) UnmarshalText(text []byte) error {
	ch, ok := ParseChannel(string(text))
	if !ok {
		return errors.Errorf("unknown channel %q", text)
	}
	*c = ch
	return nil
}

// AllChannels returns all channels in wire order.
func AllChannels() []Channel {
	return []Channel{
		ShoulderYaw,
		ShoulderPitch,
		ShoulderRoll,
		Elbow,
		Wrist,
		Grip,
		HeadPan,
		HeadTilt,
	}
}

// ArmChannels returns the channels written by the arm solver.
func ArmChannels() []Channel {
	return []Channel{ShoulderYaw, ShoulderPitch, ShoulderRoll, Elbow, Wrist, Grip}
}

// HeadChannels returns the channels written by the head solver.
func HeadChannels() []Channel {
	return []Channel{HeadPan, HeadTilt}
}

// Values is one value per channel, indexed by Channel.
type Values [NumChannels]float64

// NeutralValues returns a table with every channel at Neutral.
func NeutralValues() Values {
	var v Values
	for i := range v {
		v[i] = Neutral
	}
	return v
}

// Arm holds the six arm-side servo angles in degrees.
type Arm struct {
	ShoulderYaw   float64
	ShoulderPitch float64
	ShoulderRoll  float64
	Elbow         float64
	Wrist         float64
	Grip          float64
}

// Head holds the two head servo angles in degrees.
type Head struct {
	Pan  float64
	Tilt float64
}
