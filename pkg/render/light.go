package render

import (
	"github.com/taigrr/diorama/pkg/math3d"
)

// AmbientLight lights every surface evenly.
type AmbientLight struct {
	Node

	Color     Color
	Intensity float64
}

// NewAmbientLight creates an ambient light.
func NewAmbientLight(c Color, intensity float64) *AmbientLight {
	l := &AmbientLight{Color: c, Intensity: intensity}
	l.Init(l)
	return l
}

// DirectionalLight shines parallel rays from its position toward Target,
// like sunlight.
type DirectionalLight struct {
	Node

	Color      Color
	Intensity  float64
	Target     math3d.Vec3
	CastShadow bool
	Shadow     ShadowSettings
}

// ShadowSettings sizes a directional light's shadow map.
type ShadowSettings struct {
	MapSize int     // texels per side
	Extent  float64 // half-width of the orthographic shadow volume
	Near    float64
	Far     float64
	Bias    float64
}

// DefaultShadowSettings covers a 100-unit square around the light target.
// Bias is in shadow-map depth, where the full range spans Far-Near units.
func DefaultShadowSettings() ShadowSettings {
	return ShadowSettings{MapSize: 256, Extent: 50, Near: 0.5, Far: 200, Bias: 0.001}
}

// NewDirectionalLight creates a light shining from (0, 1, 0) toward the
// origin.
func NewDirectionalLight(c Color, intensity float64) *DirectionalLight {
	l := &DirectionalLight{Color: c, Intensity: intensity, Shadow: DefaultShadowSettings()}
	l.Init(l)
	l.Position = math3d.V3(0, 1, 0)
	return l
}

// Direction returns the unit direction the light travels in.
func (l *DirectionalLight) Direction() math3d.Vec3 {
	d := l.Target.Sub(l.WorldPosition())
	if d.LenSq() == 0 {
		return math3d.V3(0, -1, 0)
	}
	return d.Normalize()
}
