package models

import (
	"math"

	"github.com/taigrr/diorama/pkg/math3d"
)

// NewBox creates a box centered on the origin. Each side has its own
// vertices so edges stay sharp.
func NewBox(width, height, depth float64) *Mesh {
	m := NewMesh("box")
	half := math3d.V3(width/2, height/2, depth/2)
	for _, n := range []math3d.Vec3{
		{X: 1}, {X: -1}, {Y: 1}, {Y: -1}, {Z: 1}, {Z: -1},
	} {
		// u x v = n, so the corner order below runs counter-clockwise
		u := math3d.V3(n.Y, n.Z, n.X)
		v := n.Cross(u)
		center := n.Mul(half)
		hu := u.Abs().Dot(half)
		hv := v.Abs().Dot(half)

		base := len(m.Vertices)
		for _, k := range [4][2]float64{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			pos := center.Add(u.Scale(k[0] * hu)).Add(v.Scale(k[1] * hv))
			m.AddVertex(pos, n, math3d.V2((k[0]+1)/2, (k[1]+1)/2))
		}
		m.AddFace(base, base+1, base+2)
		m.AddFace(base, base+2, base+3)
	}
	m.CalculateBounds()
	return m
}

// NewPlane creates a flat grid on the XZ plane facing +Y, split into
// segments×segments quads.
func NewPlane(width, depth float64, segments int) *Mesh {
	segments = max(1, segments)
	m := NewMesh("plane")
	up := math3d.Up()
	for iz := 0; iz <= segments; iz++ {
		fz := float64(iz) / float64(segments)
		for ix := 0; ix <= segments; ix++ {
			fx := float64(ix) / float64(segments)
			pos := math3d.V3((fx-0.5)*width, 0, (fz-0.5)*depth)
			m.AddVertex(pos, up, math3d.V2(fx, 1-fz))
		}
	}
	row := segments + 1
	for iz := range segments {
		for ix := range segments {
			a := iz*row + ix // back left
			b := a + 1
			c := a + row // front left
			d := c + 1
			m.AddFace(a, c, d)
			m.AddFace(a, d, b)
		}
	}
	m.CalculateBounds()
	return m
}

// NewSphere creates a UV sphere. Segment counts below 3 and 2 are raised.
func NewSphere(radius float64, widthSegments, heightSegments int) *Mesh {
	widthSegments = max(3, widthSegments)
	heightSegments = max(2, heightSegments)
	m := NewMesh("sphere")

	grid := make([][]int, heightSegments+1)
	for iy := range grid {
		v := float64(iy) / float64(heightSegments)
		theta := v * math.Pi
		grid[iy] = make([]int, widthSegments+1)
		for ix := range grid[iy] {
			u := float64(ix) / float64(widthSegments)
			phi := u * 2 * math.Pi
			n := math3d.V3(
				-math.Cos(phi)*math.Sin(theta),
				math.Cos(theta),
				math.Sin(phi)*math.Sin(theta),
			)
			grid[iy][ix] = m.AddVertex(n.Scale(radius), n, math3d.V2(u, 1-v))
		}
	}
	for iy := range heightSegments {
		for ix := range widthSegments {
			a := grid[iy][ix+1]
			b := grid[iy][ix]
			c := grid[iy+1][ix]
			d := grid[iy+1][ix+1]
			if iy != 0 {
				m.AddFace(a, b, d)
			}
			if iy != heightSegments-1 {
				m.AddFace(b, c, d)
			}
		}
	}
	m.CalculateBounds()
	return m
}
