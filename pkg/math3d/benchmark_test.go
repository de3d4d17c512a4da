package math3d

import (
	"math"
	"testing"
)

func BenchmarkMat4Mul(b *testing.B) {
	m1 := Translate(V3(1, 2, 3))
	m2 := RotateY(0.5)

	for b.Loop() {
		_ = m1.Mul(m2)
	}
}

func BenchmarkMat4MulVec4(b *testing.B) {
	m := Translate(V3(1, 2, 3)).Mul(RotateY(0.5))
	v := V4(1, 2, 3, 1)

	for b.Loop() {
		_ = m.MulVec4(v)
	}
}

func BenchmarkMat4MulVec3(b *testing.B) {
	m := Translate(V3(1, 2, 3)).Mul(RotateY(0.5))
	v := V3(1, 2, 3)

	for b.Loop() {
		_ = m.MulVec3(v)
	}
}

func BenchmarkMat4Inverse(b *testing.B) {
	m := Translate(V3(1, 2, 3)).Mul(RotateY(0.5)).Mul(Scale(V3(2, 2, 2)))

	for b.Loop() {
		_ = m.Inverse()
	}
}

func BenchmarkVec3Normalize(b *testing.B) {
	v := V3(1, 2, 3)

	for b.Loop() {
		_ = v.Normalize()
	}
}

func BenchmarkPerspective(b *testing.B) {
	for b.Loop() {
		_ = Perspective(math.Pi/2, 1.333, 0.1, 5000)
	}
}

func BenchmarkLookAt(b *testing.B) {
	eye := V3(0, 0, 10)
	target := V3(0, 0, 0)
	up := V3(0, 1, 0)

	for b.Loop() {
		_ = LookAt(eye, target, up)
	}
}

func BenchmarkViewProjection(b *testing.B) {
	eye := V3(0, 0, 10)
	target := V3(0, 0, 0)
	up := V3(0, 1, 0)
	view := LookAt(eye, target, up)
	proj := Perspective(math.Pi/2, 1.333, 0.1, 5000)

	for b.Loop() {
		_ = proj.Mul(view)
	}
}

func BenchmarkCompose(b *testing.B) {
	q := QuatFromEuler(0.1, 0.2, 0.3)

	for b.Loop() {
		_ = Compose(V3(1, 2, 3), q, V3(1, 1, 1))
	}
}

func BenchmarkRayTriangle(b *testing.B) {
	r := Ray{Origin: V3(0, 0, 3), Direction: V3(0, 0, -1)}
	v0, v1, v2 := V3(-1, -1, 0), V3(1, -1, 0), V3(0, 1, 0)

	for b.Loop() {
		_, _ = r.IntersectTriangle(v0, v1, v2, true)
	}
}

func BenchmarkRayBox(b *testing.B) {
	r := Ray{Origin: V3(0, 0, 5), Direction: V3(0, 0, -1)}
	lo, hi := V3(-1, -1, -1), V3(1, 1, 1)

	for b.Loop() {
		_, _ = r.IntersectBox(lo, hi)
	}
}
