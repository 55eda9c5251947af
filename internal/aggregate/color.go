package aggregate

import (
	"fmt"
	"math"
)

const (
	goldenAngle = 137.50776

	categorySaturation = 70
	categoryLightness  = 50
)

// CategoryHue is the hue in degrees of the i-th category.
func CategoryHue(i int) float64 {
	return math.Mod(float64(i)*goldenAngle, 360)
}

// CategoryColor returns the CSS color of the i-th category. The same position
// always yields the same color.
func CategoryColor(i int) string {
	return fmt.Sprintf("hsl(%.2f, %d%%, %d%%)", CategoryHue(i), categorySaturation, categoryLightness)
}
