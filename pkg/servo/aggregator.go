package servo

import (
	"time"

	"go.uber.org/atomic"
)

// Snapshot is a consistent copy of the command table.
type Snapshot struct {
	Values Values
	// ArmUpdated and HeadUpdated are zero until the producer first writes.
	ArmUpdated  time.Time
	HeadUpdated time.Time
}

// Aggregator is the last-write-wins table shared by the solvers (writers) and
// the transport (reader). Each write publishes a new immutable snapshot with
// compare-and-swap, so writers never wait on each other or on the reader and
// Snapshot never observes a half-written table.
type Aggregator struct {
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

// NewAggregator returns a table with every channel at Neutral.
func NewAggregator() *Aggregator {
	a := &Aggregator{now: time.Now}
	a.current.Store(&Snapshot{Values: NeutralValues()})
	return a
}

// SetArm writes the six arm channels.
func (a *Aggregator) SetArm(arm Arm) {
	now := a.now()
	a.update(func(s *Snapshot) {
		s.Values[ShoulderYaw] = arm.ShoulderYaw
		s.Values[ShoulderPitch] = arm.ShoulderPitch
		s.Values[ShoulderRoll] = arm.ShoulderRoll
		s.Values[Elbow] = arm.Elbow
		s.Values[Wrist] = arm.Wrist
		s.Values[Grip] = arm.Grip
		s.ArmUpdated = now
	})
}

// SetHead writes the two head channels.
func (a *Aggregator) SetHead(head Head) {
	now := a.now()
	a.update(func(s *Snapshot) {
		s.Values[HeadPan] = head.Pan
		s.Values[HeadTilt] = head.Tilt
		s.HeadUpdated = now
	})
}

// Snapshot returns the current table.
func (a *Aggregator) Snapshot() Snapshot {
	return *a.current.Load()
}

func (a *Aggregator) update(apply func(*Snapshot)) {
	for {
		old := a.current.Load()
		next := *old
		apply(&next)
		if a.current.CompareAndSwap(old, &next) {
			return
		}
	}
}
