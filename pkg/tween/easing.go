package tween

import "math"

// Easing maps linear progress in [0, 1] to eased progress.
type Easing func(t float64) float64

func Linear(t float64) float64 { return t }

func QuadIn(t float64) float64  { return t * t }
func QuadOut(t float64) float64 { return t * (2 - t) }
func QuadInOut(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return -1 + (4-2*t)*t
}

func CubicIn(t float64) float64 { return t * t * t }

func CubicOut(t float64) float64 {
	t--
	return t*t*t + 1
}

func CubicInOut(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	t = 2*t - 2
	return t*t*t/2 + 1
}

func SineInOut(t float64) float64 {
	return -(math.Cos(math.Pi*t) - 1) / 2
}

// BackOut overshoots the target slightly before settling.
func BackOut(t float64) float64 {
	const s = 1.70158
	t--
	return t*t*((s+1)*t+s) + 1
}

var easings = map[string]Easing{
	"linear":     Linear,
	"quadin":     QuadIn,
	"quadout":    QuadOut,
	"quadinout":  QuadInOut,
	"cubicin":    CubicIn,
	"cubicout":   CubicOut,
	"cubicinout": CubicInOut,
	"sineinout":  SineInOut,
	"backout":    BackOut,
}

// EasingByName looks up an easing by its lower-case function name, such as
// "cubicinout".
func EasingByName(name string) (Easing, bool) {
	e, ok := easings[name]
	return e, ok
}
