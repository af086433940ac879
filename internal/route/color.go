package route

import (
	"fmt"
	"math"
)

// Blue is the color of a zero lean or speed
const Blue = "#0000ff"

// LeanColor maps a lean angle to a color between blue (upright) and green
// at the ride's maximum left lean, or red at its maximum right lean.
// maxLeftLean and maxRightLean are positive magnitudes.
func LeanColor(leanAngle, maxLeftLean, maxRightLean float64) string {
	switch {
	case leanAngle < 0:
		if maxLeftLean <= 0 {
			return Blue
		}
		f := fraction(-leanAngle, maxLeftLean)
		return rgbToString(0, 255*f, 255-255*f)
	case leanAngle > 0:
		if maxRightLean <= 0 {
			return Blue
		}
		f := fraction(leanAngle, maxRightLean)
		return rgbToString(255*f, 0, 255-255*f)
	default:
		return Blue
	}
}

// SpeedColor maps a speed to a color between blue (stopped) and red at the
// ride's maximum speed
func SpeedColor(speed, maxSpeed float64) string {
	if maxSpeed <= 0 {
		return Blue
	}
	f := fraction(speed, maxSpeed)
	return rgbToString(255*f, 0, 255-255*f)
}

// fraction returns value/limit clamped to [0,1]
func fraction(value, limit float64) float64 {
	f := value / limit
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func rgbToString(r, g, b float64) string {
	return fmt.Sprintf("#%02x%02x%02x", component(r), component(g), component(b))
}

func component(c float64) int {
	return int(math.Max(0, math.Min(255, math.Round(c))))
}
