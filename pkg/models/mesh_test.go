package models

import (
	"testing"

	"github.com/taigrr/diorama/pkg/math3d"
	"github.com/taigrr/diorama/pkg/render"
)

var _ render.Geometry = (*Mesh)(nil)

// outwardFaces counts faces whose winding normal points away from the
// mesh center.
func outwardFaces(m *Mesh) (out, total int) {
	center := m.Center()
	for _, f := range m.Faces {
		n := m.faceNormal(f)
		c := m.Vertices[f.V[0]].Position.Add(m.Vertices[f.V[1]].Position).Add(m.Vertices[f.V[2]].Position).Scale(1.0 / 3)
		if n.Dot(c.Sub(center)) > 0 {
			out++
		}
		total++
	}
	return out, total
}

func TestPrimitivesWindOutward(t *testing.T) {
	tests := []struct {
		name      string
		mesh      *Mesh
		triangles int
		size      math3d.Vec3
	}{
		{"box", NewBox(2, 4, 6), 12, math3d.V3(2, 4, 6)},
		{"sphere", NewSphere(1.5, 8, 6), 8 * (2*6 - 2), math3d.V3(3, 3, 3)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.mesh.TriangleCount(); got != tc.triangles {
				t.Errorf("triangles = %d, want %d", got, tc.triangles)
			}
			out, total := outwardFaces(tc.mesh)
			if out != total {
				t.Errorf("%d of %d faces wind inward", total-out, total)
			}
			if !tc.mesh.Size().ApproxEqual(tc.size, 1e-9) {
				t.Errorf("size = %v, want %v", tc.mesh.Size(), tc.size)
			}
			if tc.mesh.Center().Len() > 1e-9 {
				t.Errorf("center = %v", tc.mesh.Center())
			}
		})
	}
}

func TestPlaneFacesUp(t *testing.T) {
	p := NewPlane(10, 4, 3)
	if p.VertexCount() != 16 || p.TriangleCount() != 18 {
		t.Fatalf("got %d vertices, %d triangles", p.VertexCount(), p.TriangleCount())
	}
	for i, f := range p.Faces {
		if n := p.faceNormal(f).Normalize(); !n.ApproxEqual(math3d.Up(), 1e-9) {
			t.Fatalf("face %d normal = %v", i, n)
		}
	}
	if !p.Size().ApproxEqual(math3d.V3(10, 0, 4), 1e-9) {
		t.Errorf("size = %v", p.Size())
	}
}

func TestSmoothNormals(t *testing.T) {
	s := NewSphere(2, 16, 12)
	want := make([]math3d.Vec3, len(s.Vertices))
	for i, v := range s.Vertices {
		want[i] = v.Normal
	}

	s.CalculateSmoothNormals()
	for i, v := range s.Vertices {
		// the poles and the seam are shared by fewer faces
		if v.Position.Y > 1.9 || v.Position.Y < -1.9 || v.UV.X == 0 || v.UV.X == 1 {
			continue
		}
		if v.Normal.Dot(want[i]) < 0.97 {
			t.Fatalf("vertex %d normal %v strays from %v", i, v.Normal, want[i])
		}
	}
}

func TestFlatNormals(t *testing.T) {
	m := NewMesh("tri")
	a := m.AddVertex(math3d.V3(0, 0, 0), math3d.Vec3{}, math3d.Vec2{})
	b := m.AddVertex(math3d.V3(1, 0, 0), math3d.Vec3{}, math3d.Vec2{})
	c := m.AddVertex(math3d.V3(0, 0, -1), math3d.Vec3{}, math3d.Vec2{})
	m.AddFace(a, b, c)
	if m.HasNormals() {
		t.Fatal("fresh vertices have no normals")
	}

	m.CalculateNormals()
	if _, n, _ := m.GetVertex(0); !n.ApproxEqual(math3d.Up(), 1e-9) {
		t.Errorf("normal = %v, want up", n)
	}
}

func TestTransformAndClone(t *testing.T) {
	box := NewBox(1, 1, 1)
	clone := box.Clone()

	box.Transform(math3d.Translate(math3d.V3(5, 0, 0)).Mul(math3d.Scale(math3d.V3(2, 1, 1))))
	if !box.Center().ApproxEqual(math3d.V3(5, 0, 0), 1e-9) {
		t.Errorf("center = %v", box.Center())
	}
	if !box.Size().ApproxEqual(math3d.V3(2, 1, 1), 1e-9) {
		t.Errorf("size = %v", box.Size())
	}
	for _, v := range box.Vertices {
		if l := v.Normal.Len(); l < 0.999 || l > 1.001 {
			t.Fatalf("normal %v not unit length", v.Normal)
		}
	}
	if !clone.Center().ApproxEqual(math3d.Zero3(), 1e-9) {
		t.Error("clone should not share vertices with the original")
	}
}
