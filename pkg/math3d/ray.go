package math3d

import "math"

const rayEpsilon = 1e-9

// Ray is a half-line starting at Origin. Direction is expected to be unit
// length so that hit parameters are distances.
type Ray struct {
	Origin    Vec3
	Direction Vec3
}

// At returns the point at parameter t along the ray.
func (r Ray) At(t float64) Vec3 {
	return r.Origin.Add(r.Direction.Scale(t))
}

// Transform returns the ray in the space described by m.
// The direction is renormalized, so distances are in the new space.
func (r Ray) Transform(m Mat4) Ray {
	return Ray{
		Origin:    m.MulVec3(r.Origin),
		Direction: m.MulVec3Dir(r.Direction).Normalize(),
	}
}

// IntersectBox returns the entry distance of the ray into the axis-aligned
// box [min, max]. A ray starting inside the box reports 0.
func (r Ray) IntersectBox(min, max Vec3) (float64, bool) {
	tmin, tmax := math.Inf(-1), math.Inf(1)
	for i := range 3 {
		o := r.Origin.Component(i)
		d := r.Direction.Component(i)
		lo, hi := min.Component(i), max.Component(i)
		if math.Abs(d) < rayEpsilon {
			if o < lo || o > hi {
				return 0, false
			}
			continue
		}
		t1, t2 := (lo-o)/d, (hi-o)/d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	if tmax < 0 {
		return 0, false
	}
	return math.Max(tmin, 0), true
}

// IntersectTriangle tests the ray against triangle (a, b, c) using the
// Möller–Trumbore method. With cullBack set, triangles whose
// counter-clockwise winding faces away from the ray are ignored.
func (r Ray) IntersectTriangle(a, b, c Vec3, cullBack bool) (float64, bool) {
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	p := r.Direction.Cross(e2)
	det := e1.Dot(p)
	if cullBack {
		if det < rayEpsilon {
			return 0, false
		}
	} else if math.Abs(det) < rayEpsilon {
		return 0, false
	}
	inv := 1 / det
	s := r.Origin.Sub(a)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := r.Direction.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * inv
	if t < rayEpsilon {
		return 0, false
	}
	return t, true
}

// IntersectPlane returns the distance to the plane through point with the
// given normal. Rays parallel to the plane or pointing away miss.
func (r Ray) IntersectPlane(point, normal Vec3) (float64, bool) {
	denom := normal.Dot(r.Direction)
	if math.Abs(denom) < rayEpsilon {
		return 0, false
	}
	t := point.Sub(r.Origin).Dot(normal) / denom
	if t < 0 {
		return 0, false
	}
	return t, true
}
