package robot

import (
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/gwillem/vrteleop/pkg/servo"
)

// MotorCalibration holds calibration data for a single bus servo.
// RangeMin and RangeMax are the raw positions for 0° and 180°.
type MotorCalibration struct {
	ID           int `json:"id"`
	DriveMode    int `json:"drive_mode"`
	HomingOffset int `json:"homing_offset"`
	RangeMin     int `json:"range_min"`
	RangeMax     int `json:"range_max"`
}

// Calibration holds calibration data for bus servos, keyed by channel.
type Calibration map[servo.Channel]MotorCalibration

// DefaultCalibration assumes STS servos with IDs 1-8 in channel order,
// centered at 2048 with 180° spanning half a turn.
func DefaultCalibration() Calibration {
	cal := make(Calibration, servo.NumChannels)
	for _, ch := range servo.AllChannels() {
		cal[ch] = MotorCalibration{
			ID:       int(ch) + 1,
			RangeMin: 1024,
			RangeMax: 3072,
		}
	}
	return cal
}

// LoadCalibration loads calibration data from a JSON file.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read calibration file")
	}

	var cal Calibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return nil, errors.Wrap(err, "parse calibration JSON")
	}
	return cal, nil
}

// Degrees converts a raw servo position to an angle in [0, 180].
func (c MotorCalibration) Degrees(raw int) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return servo.Neutral
	}
	deg := float64(raw-c.RangeMin) / rangeSize * 180
	if c.DriveMode != 0 {
		deg = 180 - deg
	}
	return deg
}

// Raw converts an angle in degrees to a raw servo position. Angles outside
// [0, 180] are clamped so the servo never leaves its calibrated range.
func (c MotorCalibration) Raw(deg float64) int {
	deg = math.Max(0, math.Min(180, deg))
	if c.DriveMode != 0 {
		deg = 180 - deg
	}
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return int(math.Round(deg/180*rangeSize)) + c.RangeMin
}

// MotorIDs returns the servo IDs for all calibrated channels.
func (c Calibration) MotorIDs() []int {
	ids := make([]int, 0, len(c))
	// Channel order keeps the result stable.
	for _, ch := range servo.AllChannels() {
		if mc, ok := c[ch]; ok {
			ids = append(ids, mc.ID)
		}
	}
	return ids
}

// ByID returns the channel and calibration for a given servo ID.
func (c Calibration) ByID(id int) (servo.Channel, MotorCalibration, bool) {
	for ch, mc := range c {
		if mc.ID == id {
			return ch, mc, true
		}
	}
	return 0, MotorCalibration{}, false
}
