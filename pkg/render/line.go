package render

import (
	"github.com/taigrr/diorama/pkg/math3d"
)

// Segment is one line of a Lines object, in local space.
type Segment struct {
	From, To math3d.Vec3
	Color    Color
}

// Lines draws unlit, depth-tested line segments.
type Lines struct {
	Node

	Segments []Segment
}

// NewLines creates a line set.
func NewLines(segs ...Segment) *Lines {
	l := &Lines{Segments: segs}
	l.Init(l)
	return l
}

// NewGridHelper returns a size × size grid on the XZ plane with the given
// number of divisions. The two center lines use center, the rest grid.
func NewGridHelper(size float64, divisions int, center, grid Color) *Lines {
	if divisions < 1 {
		divisions = 1
	}
	half := size / 2
	step := size / float64(divisions)
	l := NewLines()
	l.Name = "grid"
	for i := 0; i <= divisions; i++ {
		k := -half + float64(i)*step
		c := grid
		if i*2 == divisions {
			c = center
		}
		l.Segments = append(l.Segments,
			Segment{From: math3d.V3(-half, 0, k), To: math3d.V3(half, 0, k), Color: c},
			Segment{From: math3d.V3(k, 0, -half), To: math3d.V3(k, 0, half), Color: c},
		)
	}
	return l
}

// NewAxesHelper returns red, green and blue lines of the given length along
// +X, +Y and +Z.
func NewAxesHelper(length float64) *Lines {
	o := math3d.Zero3()
	l := NewLines(
		Segment{From: o, To: math3d.V3(length, 0, 0), Color: ColorRed},
		Segment{From: o, To: math3d.V3(0, length, 0), Color: ColorGreen},
		Segment{From: o, To: math3d.V3(0, 0, length), Color: ColorBlue},
	)
	l.Name = "axes"
	return l
}
