package servo

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FieldSeparator joins the channel values in a frame.
const FieldSeparator = ","

// Encode renders v as a wire frame: eight decimals in channel order separated
// by commas, e.g. "90,150,90,90,90,150,90,90". Values are rounded to two
// decimals and trailing zeros are dropped.
func Encode(v Values) string {
	var sb strings.Builder
	for i, x := range v {
		if i > 0 {
			sb.WriteString(FieldSeparator)
		}
		sb.WriteString(formatValue(x))
	}
	return sb.String()
}

// Frame returns the encoded frame as bytes, ready for a datagram.
func (v Values) Frame() []byte {
	return []byte(Encode(v))
}

func formatValue(x float64) string {
	s := strconv.FormatFloat(x, 'f', 2, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}

// Parse decodes a wire frame. Surrounding whitespace is ignored; anything other
// than exactly eight finite decimals is an error.
func Parse(frame string) (Values, error) {
	var v Values
	fields := strings.Split(strings.TrimSpace(frame), FieldSeparator)
	if len(fields) != NumChannels {
		return v, errors.Errorf("frame has %d fields, want %d", len(fields), NumChannels)
	}
	for i, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return v, errors.Wrapf(err, "field %d (%s)", i, Channel(i))
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return v, errors.Errorf("field %d (%s) is not finite", i, Channel(i))
		}
		v[i] = x
	}
	return v, nil
}
