package kinematics

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/vrteleop/pkg/angle"
	"github.com/gwillem/vrteleop/pkg/pose"
)

func yawPitchRoll(yaw, pitch, roll float64) mgl64.Quat {
	return mgl64.QuatRotate(angle.Radians(yaw), pose.Up).
		Mul(mgl64.QuatRotate(angle.Radians(pitch), pose.Right)).
		Mul(mgl64.QuatRotate(angle.Radians(roll), pose.Forward))
}

func headAt(q mgl64.Quat) pose.Pose {
	return pose.Pose{Position: mgl64.Vec3{0, 1.6, 0}, Orientation: q}
}

func TestEulerZXY(t *testing.T) {
	tests := []struct {
		pitch, yaw, roll float64
	}{
		{0, 0, 0},
		{10, 20, 30},
		{-45, 120, -60},
		{0, -170, 5},
		{80, -30, 15},
	}
	for _, tt := range tests {
		pitch, yaw, roll := eulerZXY(yawPitchRoll(tt.yaw, tt.pitch, tt.roll))
		assert.InDelta(t, tt.pitch, pitch, 1e-6, "pitch of %+v", tt)
		assert.InDelta(t, tt.yaw, yaw, 1e-6, "yaw of %+v", tt)
		assert.InDelta(t, tt.roll, roll, 1e-6, "roll of %+v", tt)
	}
}

func TestEulerZXY_GimbalLock(t *testing.T) {
	pitch, yaw, roll := eulerZXY(yawPitchRoll(40, 90, 0))
	assert.InDelta(t, 90, pitch, 1e-3)
	assert.InDelta(t, 40, yaw, 1e-3)
	assert.Equal(t, 0.0, roll)
}

func TestHeadSolver_StartsNeutral(t *testing.T) {
	h := NewHeadSolver(DefaultHeadConfig())
	st := h.State()
	assert.Equal(t, 90.0, st.Pan)
	assert.Equal(t, 90.0, st.Tilt)
	assert.False(t, st.Anchored)
}

func TestHeadSolver_FirstPoseBecomesAnchor(t *testing.T) {
	h := NewHeadSolver(DefaultHeadConfig())
	start := headAt(yawPitchRoll(35, -10, 5))

	sol := h.Solve(start)
	assert.True(t, h.State().Anchored)
	assert.Equal(t, start, h.State().Anchor)
	assert.InDelta(t, 90, sol.Servo.Pan, 1e-9)
	assert.InDelta(t, 90, sol.Servo.Tilt, 1e-9)
}

func TestHeadSolver_Relative(t *testing.T) {
	tests := []struct {
		name     string
		anchor   mgl64.Quat
		current  mgl64.Quat
		rawPan   float64
		rawTilt  float64
		wantPan  float64
		wantTilt float64
	}{
		{
			// 30° yaw, inverted: -30 of ±60 maps to 45, one smoothing step
			// from 90 lands at 90 + 0.85*(45-90).
			name:     "yaw",
			anchor:   mgl64.QuatIdent(),
			current:  yawPitchRoll(30, 0, 0),
			rawPan:   30,
			wantPan:  51.75,
			wantTilt: 90,
		},
		{
			// Looking up 20°: 0.8 sensitivity gives 16 of ±30, mapped 138.
			name:     "look up",
			anchor:   mgl64.QuatIdent(),
			current:  yawPitchRoll(0, -20, 0),
			rawTilt:  20,
			wantPan:  90,
			wantTilt: 130.8,
		},
		{
			name:     "yaw relative to turned anchor",
			anchor:   yawPitchRoll(50, 0, 0),
			current:  yawPitchRoll(80, 0, 0),
			rawPan:   30,
			wantPan:  51.75,
			wantTilt: 90,
		},
		{
			name:     "roll is ignored",
			anchor:   mgl64.QuatIdent(),
			current:  yawPitchRoll(0, 0, 40),
			wantPan:  90,
			wantTilt: 90,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHeadSolver(DefaultHeadConfig())
			h.Recalibrate(headAt(tt.anchor))
			sol := h.Solve(headAt(tt.current))

			assert.InDelta(t, tt.rawPan, sol.RawPan, 1e-6)
			assert.InDelta(t, tt.rawTilt, sol.RawTilt, 1e-6)
			assert.InDelta(t, tt.wantPan, sol.Servo.Pan, 1e-6)
			assert.InDelta(t, tt.wantTilt, sol.Servo.Tilt, 1e-6)
		})
	}
}

func TestHeadSolver_Converges(t *testing.T) {
	h := NewHeadSolver(DefaultHeadConfig())
	h.Recalibrate(headAt(mgl64.QuatIdent()))

	var sol HeadSolution
	for i := 0; i < 200; i++ {
		sol = h.Solve(headAt(yawPitchRoll(30, -20, 0)))
	}
	assert.InDelta(t, 45, sol.Servo.Pan, 1e-6)
	assert.InDelta(t, 138, sol.Servo.Tilt, 1e-6)
}

func TestHeadSolver_ClampsToRange(t *testing.T) {
	h := NewHeadSolver(DefaultHeadConfig())
	h.Recalibrate(headAt(mgl64.QuatIdent()))

	var sol HeadSolution
	for i := 0; i < 200; i++ {
		sol = h.Solve(headAt(yawPitchRoll(170, -85, 0)))
	}
	assert.InDelta(t, 0, sol.Servo.Pan, 1e-6)
	assert.InDelta(t, 180, sol.Servo.Tilt, 1e-6)
}

func TestHeadSolver_RecalibrateIsIdempotent(t *testing.T) {
	h := NewHeadSolver(DefaultHeadConfig())
	h.Solve(headAt(mgl64.QuatIdent()))
	for i := 0; i < 10; i++ {
		h.Solve(headAt(yawPitchRoll(25, 15, 0)))
	}
	require.NotEqual(t, 90.0, h.State().Pan)

	here := headAt(yawPitchRoll(25, 15, 0))
	h.Recalibrate(here)
	first := h.State()
	h.Recalibrate(here)
	assert.Equal(t, first, h.State())

	assert.Equal(t, 90.0, first.Pan)
	assert.Equal(t, 90.0, first.Tilt)
	assert.True(t, first.Anchored)
	assert.Equal(t, here, first.Anchor)

	// Holding still after recalibrating stays centered.
	sol := h.Solve(here)
	assert.InDelta(t, 90, sol.Servo.Pan, 1e-9)
	assert.InDelta(t, 90, sol.Servo.Tilt, 1e-9)
}

func TestHeadSolver_Reset(t *testing.T) {
	h := NewHeadSolver(DefaultHeadConfig())
	h.Recalibrate(headAt(mgl64.QuatIdent()))
	h.Solve(headAt(yawPitchRoll(40, 0, 0)))

	h.Reset()
	assert.Equal(t, 90.0, h.State().Pan)
	assert.False(t, h.State().Anchored)

	// The next pose is the new anchor.
	sol := h.Solve(headAt(yawPitchRoll(40, 0, 0)))
	assert.InDelta(t, 90, sol.Servo.Pan, 1e-9)
}

func TestHeadSolver_Absolute(t *testing.T) {
	cfg := DefaultHeadConfig()
	cfg.Mode = HeadAbsolute

	tests := []struct {
		name    string
		q       mgl64.Quat
		rawPan  float64
		rawTilt float64
	}{
		{"forward", mgl64.QuatIdent(), 0, 0},
		{"right", yawPitchRoll(30, 0, 0), 30, 0},
		{"up", yawPitchRoll(0, -20, 0), 0, 20},
		{"roll only", yawPitchRoll(0, 0, 70), 0, 0},
		{"unnormalized", mgl64.Quat{W: 1.5 * yawPitchRoll(0, -20, 0).W, V: yawPitchRoll(0, -20, 0).V.Mul(1.5)}, 0, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHeadSolver(cfg)
			sol := h.Solve(headAt(tt.q))
			assert.InDelta(t, tt.rawPan, sol.RawPan, 1e-6)
			assert.InDelta(t, tt.rawTilt, sol.RawTilt, 1e-6)
			assert.False(t, h.State().Anchored, "absolute mode never anchors")
		})
	}
}

func TestHeadSolver_Inversion(t *testing.T) {
	cfg := DefaultHeadConfig()
	cfg.InvertPan = false
	cfg.InvertTilt = true
	cfg.Smoothing = 0

	h := NewHeadSolver(cfg)
	h.Recalibrate(headAt(mgl64.QuatIdent()))
	sol := h.Solve(headAt(yawPitchRoll(30, -20, 0)))
	assert.InDelta(t, 135, sol.Servo.Pan, 1e-6)
	assert.InDelta(t, 42, sol.Servo.Tilt, 1e-6)
}

func TestHeadConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultHeadConfig().Validate())

	tests := []func(*HeadConfig){
		func(c *HeadConfig) { c.Mode = "sideways" },
		func(c *HeadConfig) { c.PanRange = 0 },
		func(c *HeadConfig) { c.TiltRange = 120 },
		func(c *HeadConfig) { c.Smoothing = 1 },
	}
	for i, mutate := range tests {
		c := DefaultHeadConfig()
		mutate(&c)
		assert.Error(t, c.Validate(), "case %d", i)
	}
}
