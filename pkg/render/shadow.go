package render

import (
	"math"

	"github.com/taigrr/diorama/pkg/math3d"
)

// shadowMap is a depth image rendered from a directional light through an
// orthographic box centered on the light's target.
type shadowMap struct {
	size     int
	depth    []float64
	viewProj math3d.Mat4
	bias     float64
}

func newShadowMap(l *DirectionalLight, casters []*Mesh) *shadowMap {
	st := l.Shadow
	if st.MapSize <= 0 {
		st = DefaultShadowSettings()
	}
	eye := l.WorldPosition()
	if eye.Sub(l.Target).LenSq() == 0 {
		eye = l.Target.Add(math3d.Up())
	}
	up := math3d.Up()
	if l.Target.Sub(eye).Normalize().Cross(up).LenSq() < 1e-12 {
		up = math3d.V3(0, 0, -1)
	}
	// back the eye off so casters between the light and its target fit
	back := eye.Add(l.Target.Sub(eye).Normalize().Scale(-st.Far / 2))
	view := math3d.LookAt(back, l.Target, up)
	proj := math3d.Orthographic(-st.Extent, st.Extent, -st.Extent, st.Extent, st.Near, st.Far)

	sm := &shadowMap{
		size:     st.MapSize,
		depth:    make([]float64, st.MapSize*st.MapSize),
		viewProj: proj.Mul(view),
		bias:     st.Bias,
	}
	for i := range sm.depth {
		sm.depth[i] = math.MaxFloat64
	}
	for _, m := range casters {
		sm.drawMesh(m)
	}
	return sm
}

func (sm *shadowMap) toMap(p math3d.Vec3) (x, y, z float64) {
	ndc := sm.viewProj.MulVec3(p)
	s := float64(sm.size)
	return (ndc.X + 1) * 0.5 * s, (1 - ndc.Y) * 0.5 * s, (ndc.Z + 1) * 0.5
}

func (sm *shadowMap) drawMesh(m *Mesh) {
	g := m.Geometry
	world := m.WorldMatrix()
	n := g.VertexCount()
	pts := make([][3]float64, n)
	for i := range n {
		pos, _, _ := g.GetVertex(i)
		x, y, z := sm.toMap(world.MulVec3(pos))
		pts[i] = [3]float64{x, y, z}
	}
	for i := range g.TriangleCount() {
		f := g.GetFace(i)
		if f[0] >= n || f[1] >= n || f[2] >= n {
			continue
		}
		sm.fill(pts[f[0]], pts[f[1]], pts[f[2]])
	}
}

// fill writes the nearest depth of a triangle. Both windings are drawn.
func (sm *shadowMap) fill(a, b, c [3]float64) {
	area := (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
	if math.Abs(area) < 1e-12 {
		return
	}
	inv := 1 / area
	minX := max(0, int(math.Floor(min(a[0], b[0], c[0]))))
	maxX := min(sm.size-1, int(math.Ceil(max(a[0], b[0], c[0]))))
	minY := max(0, int(math.Floor(min(a[1], b[1], c[1]))))
	maxY := min(sm.size-1, int(math.Ceil(max(a[1], b[1], c[1]))))

	for y := minY; y <= maxY; y++ {
		py := float64(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float64(x) + 0.5
			w0 := ((c[0]-b[0])*(py-b[1]) - (c[1]-b[1])*(px-b[0])) * inv
			w1 := ((a[0]-c[0])*(py-c[1]) - (a[1]-c[1])*(px-c[0])) * inv
			w2 := 1 - w0 - w1
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := w0*a[2] + w1*b[2] + w2*c[2]
			if idx := y*sm.size + x; z < sm.depth[idx] {
				sm.depth[idx] = z
			}
		}
	}
}

// visibility returns 1 where p is lit and 0 where a caster is in front of
// it. Points outside the shadow volume are lit.
func (sm *shadowMap) visibility(p math3d.Vec3) float64 {
	x, y, z := sm.toMap(p)
	ix, iy := int(math.Floor(x)), int(math.Floor(y))
	if ix < 0 || iy < 0 || ix >= sm.size || iy >= sm.size || z > 1 {
		return 1
	}
	if z-sm.bias > sm.depth[iy*sm.size+ix] {
		return 0
	}
	return 1
}
