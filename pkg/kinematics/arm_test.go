package kinematics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/vrteleop/pkg/angle"
	"github.com/gwillem/vrteleop/pkg/pose"
	"github.com/gwillem/vrteleop/pkg/servo"
)

func assertServoRange(t *testing.T, a servo.Arm) {
	t.Helper()
	for name, v := range map[string]float64{
		"shoulder_yaw":   a.ShoulderYaw,
		"shoulder_pitch": a.ShoulderPitch,
		"shoulder_roll":  a.ShoulderRoll,
		"elbow":          a.Elbow,
		"wrist":          a.Wrist,
		"grip":           a.Grip,
	} {
		assert.False(t, math.IsNaN(v), "%s is NaN", name)
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 180.0, name)
	}
	assert.GreaterOrEqual(t, a.Elbow, 90.0, "elbow below calibrated minimum")
	assert.GreaterOrEqual(t, a.Grip, 110.0, "grip below calibrated minimum")
}

func TestArmSolver_ReferencePose(t *testing.T) {
	s := NewArmSolver(DefaultArmGeometry())
	sol := s.Solve(pose.Identity(mgl64.Vec3{0.23, 1.2, 0.05}), 0.5)

	assertServoRange(t, sol.Servo)

	// Target is the grip point moved by the wrist offset.
	assert.True(t, sol.Joints.Target.ApproxEqualThreshold(mgl64.Vec3{0.23, 1.12, 0.07}, 1e-9))

	// The target lies straight below-forward of the roll and yaw pivots, so
	// both see zero lateral angle; only the trim moves them off 90.
	assert.InDelta(t, 0, sol.Raw.ShoulderRoll, 1e-9)
	assert.InDelta(t, 0, sol.Raw.ShoulderPitch, 1e-9)
	assert.InDelta(t, 100, sol.Servo.ShoulderRoll, 1e-9)
	assert.InDelta(t, 80, sol.Servo.ShoulderPitch, 1e-9)

	assert.InDelta(t, angle.Degrees(math.Atan2(-0.18, 0.07)), sol.Raw.ShoulderYaw, 1e-9)
	assert.InDelta(t, 21.253, sol.Servo.ShoulderYaw, 0.01)

	// Out of reach: the elbow triangle is solved at (almost) full extension.
	assert.InDelta(t, 77.254, sol.Raw.Elbow, 0.01)
	assert.InDelta(t, 103.005, sol.Servo.Elbow, 0.01)

	// Hand up equals world up, so there is no twist.
	assert.InDelta(t, 0, sol.Raw.Wrist, 1e-4)
	assert.InDelta(t, 90, sol.Servo.Wrist, 1e-4)

	// 0.5 maps to 90, +20 trim, floor at 110.
	assert.InDelta(t, 110, sol.Servo.Grip, 1e-9)
}

func TestArmSolver_JointChain(t *testing.T) {
	g := DefaultArmGeometry()
	s := NewArmSolver(g)
	sol := s.Solve(pose.Identity(mgl64.Vec3{0.3, 1.25, 0.2}), 0)

	j := sol.Joints
	assert.InDelta(t, g.ElbowLink, j.Elbow.Sub(j.YawPivot).Len(), 1e-9)
	assert.InDelta(t, g.Forearm, j.Wrist.Sub(j.Elbow).Len(), 1e-9)
	assert.True(t, j.RollPivot.ApproxEqual(mgl64.Vec3{0.23, 1.3, 0}))
	assert.True(t, j.YawPivot.ApproxEqual(mgl64.Vec3{0.23, 1.3, 0.04}))

	// Elbow, wrist and target are collinear.
	toWrist := j.Wrist.Sub(j.Elbow).Normalize()
	toTarget := j.Target.Sub(j.Elbow).Normalize()
	assert.True(t, toWrist.ApproxEqualThreshold(toTarget, 1e-9))
}

func TestArmSolver_AlwaysInRange(t *testing.T) {
	s := NewArmSolver(DefaultArmGeometry())
	rotations := []mgl64.Quat{
		mgl64.QuatIdent(),
		mgl64.QuatRotate(math.Pi/2, pose.Forward),
		mgl64.QuatRotate(math.Pi, pose.Right),
		mgl64.QuatRotate(-math.Pi/3, mgl64.Vec3{1, 1, 0}.Normalize()),
	}
	for x := -0.5; x <= 0.9; x += 0.35 {
		for y := 0.6; y <= 2.0; y += 0.35 {
			for z := -0.4; z <= 0.8; z += 0.3 {
				for _, q := range rotations {
					for _, grip := range []float64{-1, 0, 0.3, 1, 2} {
						sol := s.Solve(pose.Pose{Position: mgl64.Vec3{x, y, z}, Orientation: q}, grip)
						assertServoRange(t, sol.Servo)
					}
				}
			}
		}
	}
}

func TestArmSolver_TargetOnPivot(t *testing.T) {
	g := DefaultArmGeometry()
	g.WristOffset = mgl64.Vec3{}
	s := NewArmSolver(g)

	// Hand exactly at the yaw pivot: every direction vector has zero length.
	sol := s.Solve(pose.Identity(g.YawPivot()), 1)
	assertServoRange(t, sol.Servo)
	assert.False(t, math.IsNaN(sol.Joints.Elbow.Len()))
}

func TestArmSolver_TwistAboutForearm(t *testing.T) {
	g := DefaultArmGeometry()
	g.WristOffset = mgl64.Vec3{}
	hand := g.YawPivot().Add(mgl64.Vec3{0, 0, 0.3})

	for _, deg := range []float64{-80, -40, 0, 25, 60} {
		s := NewArmSolver(g)
		q := mgl64.QuatRotate(angle.Radians(deg), pose.Forward)
		sol := s.Solve(pose.Pose{Position: hand, Orientation: q}, 0)

		// First call is unsmoothed.
		assert.InDelta(t, -deg*g.WristSensitivity, sol.Raw.Wrist, 1e-4, "twist %v", deg)
		assert.InDelta(t, angle.Map(-deg*g.WristSensitivity, -90, 90, 0, 180), sol.Servo.Wrist, 1e-4)
	}
}

func TestArmSolver_TwistIgnoresPointing(t *testing.T) {
	g := DefaultArmGeometry()
	g.WristOffset = mgl64.Vec3{}
	s := NewArmSolver(g)

	// Pointing the forearm sideways with an upright hand is not a twist.
	hand := g.YawPivot().Add(mgl64.Vec3{0.2, 0, 0.2})
	sol := s.Solve(pose.Identity(hand), 0)
	assert.InDelta(t, 0, sol.Raw.Wrist, 1e-4)
}

func TestArmSolver_VerticalForearmUsesForwardReference(t *testing.T) {
	g := DefaultArmGeometry()
	g.WristOffset = mgl64.Vec3{}
	hand := g.YawPivot().Add(mgl64.Vec3{0, 0.3, 0})

	for _, deg := range []float64{-50, 0, 30} {
		s := NewArmSolver(g)
		// Tip the hand so its up axis points forward, then twist about world up.
		q := mgl64.QuatRotate(angle.Radians(deg), pose.Up).Mul(mgl64.QuatRotate(math.Pi/2, pose.Right))
		sol := s.Solve(pose.Pose{Position: hand, Orientation: q}, 0)
		assert.InDelta(t, -deg*g.WristSensitivity, sol.Raw.Wrist, 1e-4, "twist %v", deg)
	}
}

func TestArmSolver_WristContinuityAcrossWrap(t *testing.T) {
	g := DefaultArmGeometry()
	g.WristOffset = mgl64.Vec3{}
	g.WristSensitivity = 1
	s := NewArmSolver(g)
	hand := g.YawPivot().Add(mgl64.Vec3{0, 0, 0.3})

	// Spin the hand through the ±180° twist boundary.
	prev := math.NaN()
	for deg := 170.0; deg <= 190; deg += 2 {
		q := mgl64.QuatRotate(angle.Radians(deg), pose.Forward)
		sol := s.Solve(pose.Pose{Position: hand, Orientation: q}, 0)
		if !math.IsNaN(prev) {
			assert.Less(t, math.Abs(sol.Raw.Wrist-prev), 5.0, "jump at %v°", deg)
		}
		prev = sol.Raw.Wrist
	}
	assert.True(t, s.WristState().Initialized)
}

func TestElbowFlexion(t *testing.T) {
	const link, forearm = 0.03, 0.08

	for reach := 0.0; reach <= forearm; reach += forearm / 50 {
		got := elbowFlexion(reach, link, forearm)
		assert.False(t, math.IsNaN(got), "reach %v", reach)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 180.0)
	}

	assert.InDelta(t, 0, elbowFlexion(0, link, forearm), 1e-9, "folded triangle clamps to 0")

	full := elbowFlexion(forearm, link, forearm)
	assert.Equal(t, full, elbowFlexion(10*forearm, link, forearm), "reach beyond forearm clamps")
	assert.InDelta(t, full, elbowFlexion(forearm-reachEpsilon, link, forearm), 1e-9)

	assert.Equal(t, 0.0, elbowFlexion(0.05, 0, forearm), "zero link length")
}

func TestCalibrateArm(t *testing.T) {
	trim := DefaultArmTrim()
	got := calibrateArm(trim, servo.Arm{
		ShoulderYaw:   45,
		ShoulderPitch: 5,
		ShoulderRoll:  175,
		Elbow:         20,
		Wrist:         130,
		Grip:          0,
	})
	assert.Equal(t, servo.Arm{
		ShoulderYaw:   45,
		ShoulderPitch: 0,
		ShoulderRoll:  180,
		Elbow:         90,
		Wrist:         130,
		Grip:          110,
	}, got)

	got = calibrateArm(trim, servo.Arm{ShoulderPitch: 100, ShoulderRoll: 100, Elbow: 150, Grip: 170})
	assert.Equal(t, 90.0, got.ShoulderPitch)
	assert.Equal(t, 110.0, got.ShoulderRoll)
	assert.Equal(t, 150.0, got.Elbow)
	assert.Equal(t, 180.0, got.Grip)
}

func TestArmGeometry_Validate(t *testing.T) {
	require.NoError(t, DefaultArmGeometry().Validate())

	g := DefaultArmGeometry()
	g.Forearm = 0
	assert.Error(t, g.Validate())

	g = DefaultArmGeometry()
	g.ElbowLink = -1
	assert.Error(t, g.Validate())

	g = DefaultArmGeometry()
	g.WristSmoothing = 1
	assert.Error(t, g.Validate())
}

func TestWristState(t *testing.T) {
	var w WristState
	assert.Equal(t, 179.0, w.Update(179, 0.15), "first update is unsmoothed")
	assert.True(t, w.Initialized)

	outputs := []float64{179}
	for _, raw := range []float64{-179, 178, -175, 179, -178} {
		outputs = append(outputs, w.Update(raw, 0.15))
	}
	for i := 1; i < len(outputs); i++ {
		assert.Less(t, math.Abs(outputs[i]-outputs[i-1]), 10.0,
			"step %d jumped from %v to %v", i, outputs[i-1], outputs[i])
	}
	assert.Equal(t, w.Smoothed, w.Previous)

	w.Reset()
	assert.False(t, w.Initialized)
	assert.Equal(t, -30.0, w.Update(-30, 0.15))
}

func TestWristState_Smoothing(t *testing.T) {
	var w WristState
	w.Update(0, 0.15)
	// One step covers 85% of the distance to the new target.
	assert.InDelta(t, 8.5, w.Update(10, 0.15), 1e-9)
	// Converges.
	for i := 0; i < 50; i++ {
		w.Update(10, 0.15)
	}
	assert.InDelta(t, 10, w.Smoothed, 1e-9)
}
