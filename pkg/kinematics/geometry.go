// Package kinematics converts tracked VR poses into servo angles for a fixed
// 5-joint arm with gripper and a 2-joint pan/tilt head.
//
// The arm is solved in closed form, one pivot at a time (shoulder yaw, roll,
// pitch, then elbow and wrist twist); there is no iteration and no
// optimization. Every call solves the current frame independently, except for
// the wrist and head smoothing state the solvers own.
package kinematics

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// ArmGeometry describes the physical arm in the world frame (+X right, +Y up,
// +Z forward, meters).
type ArmGeometry struct {
	// Shoulder is the world-space origin of the shoulder assembly.
	Shoulder mgl64.Vec3 `json:"shoulder"`
	// RollOffset places the roll pivot relative to Shoulder.
	RollOffset mgl64.Vec3 `json:"roll_offset"`
	// YawOffset places the yaw pivot relative to the roll pivot.
	YawOffset mgl64.Vec3 `json:"yaw_offset"`
	// ElbowLink is the yaw pivot to elbow distance.
	ElbowLink float64 `json:"elbow_link"`
	// Forearm is the elbow to wrist distance.
	Forearm float64 `json:"forearm"`
	// WristOffset moves the tracked grip point to the wrist center, in the
	// controller's local frame.
	WristOffset mgl64.Vec3 `json:"wrist_offset"`
	// WristSensitivity scales the raw twist before smoothing.
	WristSensitivity float64 `json:"wrist_sensitivity"`
	// WristSmoothing is the fraction of the previous output kept each frame.
	WristSmoothing float64 `json:"wrist_smoothing"`
	// Trim holds per-joint calibration applied after range mapping.
	Trim ArmTrim `json:"trim"`
}

// ArmTrim is the fixed per-joint servo calibration of the physical build.
type ArmTrim struct {
	PitchOffset float64 `json:"pitch_offset"`
	RollOffset  float64 `json:"roll_offset"`
	ElbowMin    float64 `json:"elbow_min"`
	GripOffset  float64 `json:"grip_offset"`
	GripMin     float64 `json:"grip_min"`
}

// reachEpsilon keeps the elbow triangle strictly valid at full extension.
const reachEpsilon = 0.001

// DefaultArmGeometry returns the dimensions of the reference build.
func DefaultArmGeometry() ArmGeometry {
	return ArmGeometry{
		Shoulder:         mgl64.Vec3{0.20, 1.3, 0},
		RollOffset:       mgl64.Vec3{0.03, 0, 0},
		YawOffset:        mgl64.Vec3{0, 0, 0.04},
		ElbowLink:        0.03,
		Forearm:          0.08,
		WristOffset:      mgl64.Vec3{0, -0.08, 0.02},
		WristSensitivity: 0.75,
		WristSmoothing:   0.15,
		Trim:             DefaultArmTrim(),
	}
}

// DefaultArmTrim returns the calibration of the reference build.
func DefaultArmTrim() ArmTrim {
	return ArmTrim{
		PitchOffset: -10,
		RollOffset:  10,
		ElbowMin:    90,
		GripOffset:  20,
		GripMin:     110,
	}
}

// Validate reports geometry the solver cannot use.
func (g ArmGeometry) Validate() error {
	if g.ElbowLink <= 0 {
		return errors.Errorf("elbow_link must be positive, got %v", g.ElbowLink)
	}
	if g.Forearm <= reachEpsilon {
		return errors.Errorf("forearm must be longer than %v, got %v", reachEpsilon, g.Forearm)
	}
	if g.WristSmoothing < 0 || g.WristSmoothing >= 1 {
		return errors.Errorf("wrist_smoothing must be in [0, 1), got %v", g.WristSmoothing)
	}
	if g.Trim.ElbowMin < 0 || g.Trim.ElbowMin > 180 {
		return errors.Errorf("trim.elbow_min must be in [0, 180], got %v", g.Trim.ElbowMin)
	}
	if g.Trim.GripMin < 0 || g.Trim.GripMin > 180 {
		return errors.Errorf("trim.grip_min must be in [0, 180], got %v", g.Trim.GripMin)
	}
	return nil
}

// RollPivot returns the world position of the roll pivot.
func (g ArmGeometry) RollPivot() mgl64.Vec3 {
	return g.Shoulder.Add(g.RollOffset)
}

// YawPivot returns the world position of the yaw pivot.
func (g ArmGeometry) YawPivot() mgl64.Vec3 {
	return g.RollPivot().Add(g.YawOffset)
}
