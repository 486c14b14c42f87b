package kinematics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/gwillem/vrteleop/pkg/angle"
	"github.com/gwillem/vrteleop/pkg/pose"
	"github.com/gwillem/vrteleop/pkg/servo"
)

// twistReferenceMin is the shortest projected world-up vector still used as
// the twist reference; below it the forearm is close to vertical.
const twistReferenceMin = 0.1

// ArmJoints are the solved joint positions, for visualization.
type ArmJoints struct {
	Shoulder  mgl64.Vec3
	RollPivot mgl64.Vec3
	YawPivot  mgl64.Vec3
	Elbow     mgl64.Vec3
	Wrist     mgl64.Vec3
	Target    mgl64.Vec3
}

// ArmAngles are the raw joint angles in degrees before servo mapping.
type ArmAngles struct {
	ShoulderYaw   float64
	ShoulderRoll  float64
	ShoulderPitch float64
	Elbow         float64
	// Wrist is the smoothed, sensitivity-scaled twist.
	Wrist float64
	// Grip is the trigger axis in [0, 1].
	Grip float64
}

// ArmSolution is the result of one arm solve.
type ArmSolution struct {
	// Servo holds the calibrated servo angles, each in [0, 180].
	Servo  servo.Arm
	Raw    ArmAngles
	Joints ArmJoints
}

// ArmSolver converts a hand pose and grip axis into arm servo angles. It is
// not safe for concurrent use; the wrist smoothing state changes every call.
type ArmSolver struct {
	geom  ArmGeometry
	wrist WristState
}

// NewArmSolver creates a solver for the given geometry.
func NewArmSolver(geom ArmGeometry) *ArmSolver {
	return &ArmSolver{geom: geom}
}

// Geometry returns the solver's arm geometry.
func (s *ArmSolver) Geometry() ArmGeometry {
	return s.geom
}

// WristState returns a copy of the wrist smoothing state.
func (s *ArmSolver) WristState() WristState {
	return s.wrist
}

// Solve computes servo angles for the hand pose and a grip axis in [0, 1].
func (s *ArmSolver) Solve(hand pose.Pose, grip float64) ArmSolution {
	g := s.geom

	// The controller is tracked at the grip; move to the wrist center.
	target := hand.Transform(g.WristOffset)

	shoulder := g.Shoulder
	rollPivot := g.RollPivot()
	yawPivot := g.YawPivot()

	// Each pivot sees only the straight line from itself to the target.
	fromShoulder := target.Sub(shoulder)
	yawDeg := atan2Deg(fromShoulder.Y(), fromShoulder.Z())

	fromRoll := target.Sub(rollPivot)
	rollDeg := atan2Deg(fromRoll.X(), fromRoll.Z())

	fromYaw := target.Sub(yawPivot)
	pitchDeg := atan2Deg(fromYaw.X(), fromYaw.Z())

	elbow := yawPivot.Add(direction(fromYaw).Mul(g.ElbowLink))
	elbowDeg := elbowFlexion(target.Sub(elbow).Len(), g.ElbowLink, g.Forearm)

	forearmDir := direction(target.Sub(elbow))
	wrist := elbow.Add(forearmDir.Mul(g.Forearm))

	twist := twistAngle(hand.Up(), forearmDir) * g.WristSensitivity
	wristDeg := s.wrist.Update(twist, g.WristSmoothing)

	grip = angle.Clamp(grip, 0, 1)

	return ArmSolution{
		Servo: calibrateArm(g.Trim, servo.Arm{
			ShoulderYaw:   angle.Map(yawDeg, -90, 90, 0, 180),
			ShoulderPitch: angle.Map(pitchDeg, -90, 90, 0, 180),
			ShoulderRoll:  angle.Map(rollDeg, -90, 90, 180, 0),
			Elbow:         angle.Map(elbowDeg, 0, 135, 0, 180),
			Wrist:         angle.Map(wristDeg, -90, 90, 0, 180),
			Grip:          angle.Map(grip, 0, 1, 0, 180),
		}),
		Raw: ArmAngles{
			ShoulderYaw:   yawDeg,
			ShoulderRoll:  rollDeg,
			ShoulderPitch: pitchDeg,
			Elbow:         elbowDeg,
			Wrist:         wristDeg,
			Grip:          grip,
		},
		Joints: ArmJoints{
			Shoulder:  shoulder,
			RollPivot: rollPivot,
			YawPivot:  yawPivot,
			Elbow:     elbow,
			Wrist:     wrist,
			Target:    target,
		},
	}
}

// calibrateArm applies the per-joint trim to mapped servo angles.
func calibrateArm(t ArmTrim, a servo.Arm) servo.Arm {
	a.ShoulderPitch = angle.Clamp(a.ShoulderPitch+t.PitchOffset, 0, 180)
	a.ShoulderRoll = angle.Clamp(a.ShoulderRoll+t.RollOffset, 0, 180)
	a.Elbow = angle.Clamp(a.Elbow, t.ElbowMin, 180)
	a.Grip = angle.Clamp(a.Grip+t.GripOffset, t.GripMin, 180)
	return a
}

// elbowFlexion solves the elbow angle in degrees from the law of cosines on
// the triangle (link, forearm, reach). Reach is clamped below the forearm
// length and the cosine to [-1, 1], so the result is always in [0, 180].
func elbowFlexion(reach, link, forearm float64) float64 {
	denom := 2 * forearm * link
	if denom < zeroLength {
		return 0
	}
	reach = math.Min(reach, forearm-reachEpsilon)
	cos := (forearm*forearm + link*link - reach*reach) / denom
	return angle.Degrees(math.Acos(angle.Clamp(cos, -1, 1)))
}

// twistAngle isolates rotation of the hand about the forearm axis: both the
// hand's up vector and a world reference are projected onto the plane
// perpendicular to the forearm and the signed angle between them is returned
// in degrees.
func twistAngle(handUp, forearmDir mgl64.Vec3) float64 {
	twistUp := reject(handUp, forearmDir)
	if twistUp.Len() < zeroLength {
		return 0
	}

	reference := reject(pose.Up, forearmDir)
	if reference.Len() < twistReferenceMin {
		reference = reject(pose.Forward, forearmDir)
	}

	return -signedAngle(reference.Normalize(), twistUp.Normalize(), forearmDir)
}
