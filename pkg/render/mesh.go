package render

import (
	"github.com/taigrr/diorama/pkg/math3d"
)

// Geometry is indexed triangle data in an object's local space. Faces wind
// counter-clockwise when seen from the front.
type Geometry interface {
	VertexCount() int
	TriangleCount() int
	GetVertex(i int) (pos, normal math3d.Vec3, uv math3d.Vec2)
	GetFace(i int) [3]int
	GetBounds() (min, max math3d.Vec3)
}

// Material describes how a mesh surface is shaded.
type Material struct {
	Name  string
	Color Color
	Map   *Texture // multiplied with Color when set

	// Unlit skips lighting; the surface shows its base color.
	Unlit       bool
	Wireframe   bool
	DoubleSided bool
}

// NewMaterial returns a lit, single-sided material of the given color.
func NewMaterial(c Color) *Material {
	return &Material{Color: c}
}

// Mesh draws a geometry with a material.
type Mesh struct {
	Node

	Geometry      Geometry
	Material      *Material
	CastShadow    bool
	ReceiveShadow bool
}

// NewMesh creates a mesh. A nil material becomes plain white.
func NewMesh(g Geometry, m *Material) *Mesh {
	if m == nil {
		m = NewMaterial(ColorWhite)
	}
	mesh := &Mesh{Geometry: g, Material: m}
	mesh.Init(mesh)
	return mesh
}

// WorldBounds returns the world-space box enclosing the geometry.
func (m *Mesh) WorldBounds() AABB {
	lo, hi := m.Geometry.GetBounds()
	return NewAABB(lo, hi).Transform(m.WorldMatrix())
}

// Raycast appends the intersections of rc's ray with the mesh to hits.
// Back faces are skipped unless the material is double sided.
func (m *Mesh) Raycast(rc *Raycaster, hits []Intersection) []Intersection {
	if m.Geometry == nil || m.Geometry.TriangleCount() == 0 {
		return hits
	}
	world := m.WorldMatrix()
	inv := world.Inverse()
	local := rc.Ray.Transform(inv)

	lo, hi := m.Geometry.GetBounds()
	if _, ok := local.IntersectBox(lo, hi); !ok {
		return hits
	}

	cullBack := m.Material == nil || !m.Material.DoubleSided
	for i := range m.Geometry.TriangleCount() {
		f := m.Geometry.GetFace(i)
		a, _, _ := m.Geometry.GetVertex(f[0])
		b, _, _ := m.Geometry.GetVertex(f[1])
		c, _, _ := m.Geometry.GetVertex(f[2])
		t, ok := local.IntersectTriangle(a, b, c, cullBack)
		if !ok {
			continue
		}
		point := world.MulVec3(local.At(t))
		dist := point.Distance(rc.Ray.Origin)
		if dist < rc.Near || dist > rc.Far {
			continue
		}
		hits = append(hits, Intersection{
			Distance:  dist,
			Point:     point,
			FaceIndex: i,
			Object:    m.Self(),
		})
	}
	return hits
}
