package kinematics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/gwillem/vrteleop/pkg/angle"
	"github.com/gwillem/vrteleop/pkg/pose"
	"github.com/gwillem/vrteleop/pkg/servo"
)

// HeadMode selects how headset orientation maps to pan/tilt.
type HeadMode string

const (
	// HeadRelative tracks rotation relative to a captured anchor pose.
	HeadRelative HeadMode = "relative"
	// HeadAbsolute tracks the headset's world-space forward direction.
	HeadAbsolute HeadMode = "absolute"
)

// HeadConfig configures the head solver.
type HeadConfig struct {
	Mode HeadMode `json:"mode"`
	// PanRange and TiltRange are the ± limits in degrees mapped onto [0, 180].
	PanRange        float64 `json:"pan_range"`
	TiltRange       float64 `json:"tilt_range"`
	PanSensitivity  float64 `json:"pan_sensitivity"`
	TiltSensitivity float64 `json:"tilt_sensitivity"`
	// Smoothing is the fraction of the previous output kept each frame.
	Smoothing  float64 `json:"smoothing"`
	InvertPan  bool    `json:"invert_pan"`
	InvertTilt bool    `json:"invert_tilt"`
}

// DefaultHeadConfig returns the settings of the reference build.
func DefaultHeadConfig() HeadConfig {
	return HeadConfig{
		Mode:            HeadRelative,
		PanRange:        60,
		TiltRange:       30,
		PanSensitivity:  1.0,
		TiltSensitivity: 0.8,
		Smoothing:       0.15,
		InvertPan:       true,
		InvertTilt:      false,
	}
}

// Validate reports settings the solver cannot use.
func (c HeadConfig) Validate() error {
	switch c.Mode {
	case HeadRelative, HeadAbsolute:
	default:
		return errors.Errorf("unknown head mode %q", c.Mode)
	}
	if c.PanRange <= 0 || c.PanRange > 180 {
		return errors.Errorf("pan_range must be in (0, 180], got %v", c.PanRange)
	}
	if c.TiltRange <= 0 || c.TiltRange > 90 {
		return errors.Errorf("tilt_range must be in (0, 90], got %v", c.TiltRange)
	}
	if c.Smoothing < 0 || c.Smoothing >= 1 {
		return errors.Errorf("smoothing must be in [0, 1), got %v", c.Smoothing)
	}
	return nil
}

// HeadState is the head solver's mutable state.
type HeadState struct {
	Anchor   pose.Pose
	Anchored bool
	// Pan and Tilt are the smoothed servo outputs.
	Pan  float64
	Tilt float64
}

func neutralHeadState() HeadState {
	return HeadState{Pan: servo.Neutral, Tilt: servo.Neutral}
}

// HeadSolution is the result of one head solve.
type HeadSolution struct {
	// Servo holds the smoothed pan/tilt servo angles in [0, 180].
	Servo servo.Head
	// RawPan and RawTilt are the tracked angles in degrees before
	// sensitivity, inversion and clamping.
	RawPan  float64
	RawTilt float64
}

// HeadSolver converts a headset pose into pan/tilt servo angles. It is not
// safe for concurrent use.
type HeadSolver struct {
	cfg   HeadConfig
	state HeadState
}

// NewHeadSolver creates a solver with no anchor and outputs at mid-range.
// In relative mode the first solved pose becomes the anchor.
func NewHeadSolver(cfg HeadConfig) *HeadSolver {
	return &HeadSolver{cfg: cfg, state: neutralHeadState()}
}

// Config returns the solver configuration.
func (h *HeadSolver) Config() HeadConfig {
	return h.cfg
}

// State returns a copy of the solver state.
func (h *HeadSolver) State() HeadState {
	return h.state
}

// Recalibrate makes p the anchor and resets both outputs to mid-range.
func (h *HeadSolver) Recalibrate(p pose.Pose) {
	h.state = neutralHeadState()
	h.state.Anchor = p
	h.state.Anchored = true
}

// Reset drops the anchor and resets both outputs to mid-range. The next
// solved pose becomes the anchor.
func (h *HeadSolver) Reset() {
	h.state = neutralHeadState()
}

// Solve computes pan/tilt for the headset pose.
func (h *HeadSolver) Solve(p pose.Pose) HeadSolution {
	var pan, tilt float64
	switch h.cfg.Mode {
	case HeadAbsolute:
		pan, tilt = absolutePanTilt(p.Orientation)
	default:
		if !h.state.Anchored {
			h.state.Anchor = p
			h.state.Anchored = true
		}
		pan, tilt = relativePanTilt(h.state.Anchor.Orientation, p.Orientation)
	}

	rawPan, rawTilt := pan, tilt

	pan *= h.cfg.PanSensitivity
	tilt *= h.cfg.TiltSensitivity
	if h.cfg.InvertPan {
		pan = -pan
	}
	if h.cfg.InvertTilt {
		tilt = -tilt
	}

	pan = angle.Clamp(pan, -h.cfg.PanRange, h.cfg.PanRange)
	tilt = angle.Clamp(tilt, -h.cfg.TiltRange, h.cfg.TiltRange)

	targetPan := angle.Map(pan, -h.cfg.PanRange, h.cfg.PanRange, 0, 180)
	targetTilt := angle.Map(tilt, -h.cfg.TiltRange, h.cfg.TiltRange, 0, 180)

	h.state.Pan = angle.Lerp(h.state.Pan, targetPan, 1-h.cfg.Smoothing)
	h.state.Tilt = angle.Lerp(h.state.Tilt, targetTilt, 1-h.cfg.Smoothing)

	return HeadSolution{
		Servo:   servo.Head{Pan: h.state.Pan, Tilt: h.state.Tilt},
		RawPan:  rawPan,
		RawTilt: rawTilt,
	}
}

// absolutePanTilt reads pan and tilt from the world-space forward vector.
// Both the quaternion and the forward vector are normalized so an off-unit
// input cannot skew the angles or push asin outside its domain.
func absolutePanTilt(q mgl64.Quat) (pan, tilt float64) {
	f := direction(q.Normalize().Rotate(pose.Forward))
	pan = atan2Deg(f.X(), f.Z())
	tilt = angle.Degrees(math.Asin(angle.Clamp(f.Y(), -1, 1)))
	return pan, tilt
}

// relativePanTilt returns the yaw and negated pitch of the rotation from
// anchor to current, each wrapped into (-180, 180]. Positive tilt is looking
// up.
func relativePanTilt(anchor, current mgl64.Quat) (pan, tilt float64) {
	rel := anchor.Inverse().Mul(current)
	pitch, yaw, _ := eulerZXY(rel)
	return angle.Wrap180(yaw), -angle.Wrap180(pitch)
}

// eulerZXY decomposes q into angles in degrees for the rotation order used by
// common VR runtimes: roll about Z first, then pitch about X, then yaw about
// Y (q = yaw * pitch * roll). Positive pitch turns the forward axis down.
func eulerZXY(q mgl64.Quat) (pitch, yaw, roll float64) {
	q = q.Normalize()
	w, x, y, z := q.W, q.V[0], q.V[1], q.V[2]

	sinPitch := angle.Clamp(2*(w*x-y*z), -1, 1)
	pitch = angle.Degrees(math.Asin(sinPitch))

	if math.Abs(sinPitch) > 0.9999 {
		// Gimbal lock: yaw and roll share an axis, fold everything into yaw.
		yaw = atan2Deg(-2*(x*z-w*y), 1-2*(y*y+z*z))
		return pitch, yaw, 0
	}

	yaw = atan2Deg(2*(w*y+x*z), 1-2*(x*x+y*y))
	roll = atan2Deg(2*(w*z+x*y), 1-2*(x*x+z*z))
	return pitch, yaw, roll
}
