package kinematics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/gwillem/vrteleop/pkg/angle"
	"github.com/gwillem/vrteleop/pkg/pose"
)

const zeroLength = 1e-9

// direction returns v normalized, or world forward when v has no length.
func direction(v mgl64.Vec3) mgl64.Vec3 {
	if v.Len() < zeroLength {
		return pose.Forward
	}
	return v.Normalize()
}

// project returns the component of v along unit axis n.
func project(v, n mgl64.Vec3) mgl64.Vec3 {
	return n.Mul(v.Dot(n))
}

// reject returns the component of v perpendicular to unit axis n.
func reject(v, n mgl64.Vec3) mgl64.Vec3 {
	return v.Sub(project(v, n))
}

// unsignedAngle returns the angle between a and b in degrees, [0, 180].
func unsignedAngle(a, b mgl64.Vec3) float64 {
	denom := a.Len() * b.Len()
	if denom < zeroLength {
		return 0
	}
	return angle.Degrees(math.Acos(angle.Clamp(a.Dot(b)/denom, -1, 1)))
}

// signedAngle returns the angle from a to b in degrees. The sign is the sign
// of axis·(a×b); a zero triple product counts as positive.
func signedAngle(a, b, axis mgl64.Vec3) float64 {
	unsigned := unsignedAngle(a, b)
	if axis.Dot(a.Cross(b)) < 0 {
		return -unsigned
	}
	return unsigned
}

// atan2Deg is math.Atan2 in degrees.
func atan2Deg(y, x float64) float64 {
	return angle.Degrees(math.Atan2(y, x))
}
