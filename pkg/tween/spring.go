package tween

import (
	"math"

	"github.com/charmbracelet/harmonica"
)

// Spring moves Value toward Target with damped spring motion, advanced one
// fixed frame at a time.
type Spring struct {
	Value  float64
	Target float64

	spring   harmonica.Spring
	velocity float64
}

// NewSpring creates a spring stepping at fps frames per second. Damping 1
// is critically damped (no overshoot); lower values bounce.
func NewSpring(fps int, frequency, damping float64) *Spring {
	return &Spring{spring: harmonica.NewSpring(harmonica.FPS(max(1, fps)), frequency, damping)}
}

// Update steps the spring one frame and returns the new value.
func (s *Spring) Update() float64 {
	s.Value, s.velocity = s.spring.Update(s.Value, s.velocity, s.Target)
	return s.Value
}

// Velocity returns the current rate of change per second.
func (s *Spring) Velocity() float64 {
	return s.velocity
}

// Snap jumps to v and stops.
func (s *Spring) Snap(v float64) {
	s.Value, s.Target, s.velocity = v, v, 0
}

// Settled reports whether the spring is within eps of its target and nearly
// still.
func (s *Spring) Settled(eps float64) bool {
	return math.Abs(s.Value-s.Target) <= eps && math.Abs(s.velocity) <= eps
}
