package kinematics

import "github.com/gwillem/vrteleop/pkg/angle"

// WristState carries wrist twist continuity between frames.
//
// The first Update seeds both fields with the raw angle. Later updates unwrap
// the raw angle against Previous (so crossing ±180° does not snap through a
// full turn) and then move Smoothed towards it.
type WristState struct {
	Previous    float64
	Smoothed    float64
	Initialized bool
}

// Update feeds one raw twist angle and returns the smoothed output. smoothing
// is the fraction of the previous output kept, in [0, 1).
func (w *WristState) Update(raw, smoothing float64) float64 {
	if !w.Initialized {
		w.Previous = raw
		w.Smoothed = raw
		w.Initialized = true
		return raw
	}

	target := w.Previous + angle.ShortestDelta(w.Previous, raw)
	w.Smoothed = angle.Lerp(w.Smoothed, target, 1-smoothing)
	w.Previous = w.Smoothed
	return w.Smoothed
}

// Reset forgets the history; the next Update seeds again.
func (w *WristState) Reset() {
	*w = WristState{}
}
