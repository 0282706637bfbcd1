package focus

import "math"

// Monitor geometry of the head-mounted display.
const (
	InchesFromScreen = 5
	ScreenPixelWidth = 3840
	PixelsPerInch    = 253.93
	ScreenInchWidth  = ScreenPixelWidth / PixelsPerInch

	// OffScreen is returned for angles that fall outside the display.
	OffScreen = -3000

	// HalfFOV is half the horizontal field of view in degrees.
	HalfFOV = 20.0
)

// AngleToPixel maps an azimuth in radians to a horizontal pixel on the
// display, or OffScreen.
func AngleToPixel(angle float64) int {
	angle -= math.Pi
	adjusted := math.Atan(angle)*InchesFromScreen + ScreenInchWidth/2
	if adjusted < 0 || adjusted > ScreenInchWidth {
		return OffScreen
	}
	return int(adjusted * PixelsPerInch)
}

// InView reports whether a bearing in degrees, relative to the viewing
// direction, is within the field of view.
func InView(bearing float64) bool {
	return math.Abs(Relative(bearing, 0)) <= HalfFOV
}

// Gaze is where the smoothed head direction lands on the display.
type Gaze struct {
	Azimuth  float64 `json:"azimuth"`
	Relative float64 `json:"relative"` // degrees from the calibrated centre
	Pixel    int     `json:"pixel"`
	InView   bool    `json:"inView"`
}

// NewGaze places azimuth, in degrees, relative to center.
func NewGaze(azimuth, center float64) Gaze {
	rel := Relative(azimuth, center)
	return Gaze{
		Azimuth:  azimuth,
		Relative: rel,
		Pixel:    AngleToPixel(rel*math.Pi/180 + math.Pi),
		InView:   InView(rel),
	}
}

// GazeReporter is a source that knows the viewer's gaze.
type GazeReporter interface {
	Gaze() (Gaze, bool)
}
