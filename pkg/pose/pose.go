// Package pose defines tracked device poses and the sources that supply them.
//
// World frame convention: +X right, +Y up, +Z forward, meters. Orientations
// are unit quaternions rotating device-local vectors into the world frame.
package pose

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Device identifies a tracked device.
type Device string

// Tracked devices used by the solvers.
const (
	RightHand Device = "right_hand"
	Head      Device = "head"
)

// AllDevices returns the tracked devices in a stable order.
func AllDevices() []Device {
	return []Device{RightHand, Head}
}

// World axes.
var (
	Up      = mgl64.Vec3{0, 1, 0}
	Forward = mgl64.Vec3{0, 0, 1}
	Right   = mgl64.Vec3{1, 0, 0}
)

// Pose is the position and orientation of a tracked point at one instant.
type Pose struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

// Identity returns a pose at position p with no rotation.
func Identity(p mgl64.Vec3) Pose {
	return Pose{Position: p, Orientation: mgl64.QuatIdent()}
}

// Up returns the device's local up axis in world space.
func (p Pose) Up() mgl64.Vec3 {
	return p.Orientation.Rotate(Up)
}

// Forward returns the device's local forward axis in world space.
func (p Pose) Forward() mgl64.Vec3 {
	return p.Orientation.Rotate(Forward)
}

// Transform maps a point given in the device's local frame to world space.
func (p Pose) Transform(local mgl64.Vec3) mgl64.Vec3 {
	return p.Position.Add(p.Orientation.Rotate(local))
}

// Sample is one reading from a pose source.
type Sample struct {
	Pose Pose
	// Grip is the trigger/grip axis in [0, 1]. Only hand devices report it.
	Grip float64
	Time time.Time
}

// Source supplies the most recent sample for a device. ok is false when the
// device has not reported yet (or its data went stale); callers skip the
// frame in that case.
type Source interface {
	Latest(device Device) (sample Sample, ok bool)
}

// Static is a Source that always returns the same samples.
type Static map[Device]Sample

// Latest implements Source.
func (s Static) Latest(device Device) (Sample, bool) {
	sample, ok := s[device]
	return sample, ok
}
