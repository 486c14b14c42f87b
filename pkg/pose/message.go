package pose

import (
	"encoding/json"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// CommandRecalibrate asks the head solver to re-anchor on the current pose.
const CommandRecalibrate = "recalibrate"

// Message is the JSON payload a VR bridge sends for one device sample, or a
// bare command.
//
//	{"device":"right_hand","position":[0.2,1.2,0.3],"orientation":[0,0,0,1],"grip":0.4}
//	{"command":"recalibrate"}
//
// Orientation is [x, y, z, w], the order used by OpenXR and Unity.
type Message struct {
	Device      Device    `json:"device,omitempty"`
	Position    []float64 `json:"position,omitempty"`
	Orientation []float64 `json:"orientation,omitempty"`
	Grip        float64   `json:"grip,omitempty"`
	Command     string    `json:"command,omitempty"`
}

// DecodeMessage parses a JSON message.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, errors.Wrap(err, "decode pose message")
	}
	return m, nil
}

// NewMessage builds the wire message for a sample.
func NewMessage(device Device, s Sample) Message {
	q := s.Pose.Orientation
	return Message{
		Device:      device,
		Position:    []float64{s.Pose.Position[0], s.Pose.Position[1], s.Pose.Position[2]},
		Orientation: []float64{q.V[0], q.V[1], q.V[2], q.W},
		Grip:        s.Grip,
	}
}

// Sample converts the message to a sample stamped with now. The orientation
// is normalized; a zero quaternion is rejected.
func (m Message) Sample(now time.Time) (Sample, error) {
	if len(m.Position) != 3 {
		return Sample{}, errors.Errorf("position needs 3 components, got %d", len(m.Position))
	}
	if len(m.Orientation) != 4 {
		return Sample{}, errors.Errorf("orientation needs 4 components, got %d", len(m.Orientation))
	}
	for _, v := range append(append([]float64{m.Grip}, m.Position...), m.Orientation...) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Sample{}, errors.New("non-finite value in pose message")
		}
	}

	q := mgl64.Quat{W: m.Orientation[3], V: mgl64.Vec3{m.Orientation[0], m.Orientation[1], m.Orientation[2]}}
	if q.Len() < 1e-9 {
		return Sample{}, errors.New("orientation is a zero quaternion")
	}

	grip := m.Grip
	if grip < 0 {
		grip = 0
	} else if grip > 1 {
		grip = 1
	}

	return Sample{
		Pose: Pose{
			Position:    mgl64.Vec3{m.Position[0], m.Position[1], m.Position[2]},
			Orientation: q.Normalize(),
		},
		Grip: grip,
		Time: now,
	}, nil
}
