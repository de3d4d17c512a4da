package render

import (
	"sync"

	"github.com/taigrr/diorama/pkg/math3d"
)

// Background paints the pixels no geometry covers. Sample receives the
// normalized world-space direction of the view ray through the pixel.
type Background interface {
	Sample(dir math3d.Vec3) Color
}

// SolidBackground fills the view with one color.
type SolidBackground struct {
	Color Color
}

func (b SolidBackground) Sample(math3d.Vec3) Color { return b.Color }

// Scene is the root of a scene graph.
type Scene struct {
	Node

	mu         sync.RWMutex
	background Background
}

// NewScene creates an empty scene without a background.
func NewScene() *Scene {
	s := &Scene{}
	s.Init(s)
	s.Name = "scene"
	return s
}

// SetBackground replaces the background. It may be called from any
// goroutine, which lets asynchronous texture loads attach their result.
func (s *Scene) SetBackground(b Background) {
	s.mu.Lock()
	s.background = b
	s.mu.Unlock()
}

// Background returns the current background or nil.
func (s *Scene) Background() Background {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.background
}
