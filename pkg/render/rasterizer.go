package render

import (
	"image"
	"math"

	"github.com/taigrr/diorama/pkg/math3d"
)

// vertex is a transformed vertex ready for clipping.
type vertex struct {
	clip  math3d.Vec4 // clip-space position
	world math3d.Vec3
	uv    math3d.Vec2
	light rgb // ambient plus every unshadowed light
	sun   rgb // contribution of the shadow-casting light, before occlusion
}

func lerpVertex(a, b vertex, t float64) vertex {
	return vertex{
		clip:  lerpVec4(a.clip, b.clip, t),
		world: a.world.Lerp(b.world, t),
		uv:    a.uv.Add(b.uv.Sub(a.uv).Scale(t)),
		light: lerpRGB(a.light, b.light, t),
		sun:   lerpRGB(a.sun, b.sun, t),
	}
}

func lerpVec4(a, b math3d.Vec4, t float64) math3d.Vec4 {
	return math3d.V4(
		a.X+(b.X-a.X)*t,
		a.Y+(b.Y-a.Y)*t,
		a.Z+(b.Z-a.Z)*t,
		a.W+(b.W-a.W)*t,
	)
}

// screenVertex is a vertex after the perspective divide and viewport
// transform.
type screenVertex struct {
	x, y float64 // buffer pixels, origin top left
	z    float64 // NDC depth
	invW float64
}

// rasterizer draws one render pass into a color and depth buffer. Drawing
// is limited to clip, which is the viewport narrowed by the scissor box.
type rasterizer struct {
	fb        *Framebuffer
	depth     []float64
	viewport  image.Rectangle
	clip      image.Rectangle
	viewProj  math3d.Mat4
	logDepth  bool
	invLogFar float64
	tone      ToneMapping
	exposure  float64
	lights    *lighting
	shadow    *shadowMap

	poly      []vertex
	verts     []vertex
	triangles int
}

func (r *rasterizer) project(c math3d.Vec4) screenVertex {
	invW := 1 / c.W
	vp := r.viewport
	return screenVertex{
		x:    float64(vp.Min.X) + (c.X*invW+1)*0.5*float64(vp.Dx()),
		y:    float64(vp.Min.Y) + (1-c.Y*invW)*0.5*float64(vp.Dy()),
		z:    c.Z * invW,
		invW: invW,
	}
}

// depthOf maps an NDC depth and 1/w to the value stored in the depth buffer.
// With a logarithmic buffer precision follows view distance instead of NDC z.
func (r *rasterizer) depthOf(z, invW float64) float64 {
	if r.logDepth {
		return math.Log2(1+1/invW) * r.invLogFar
	}
	return z
}

// clipNear cuts the triangle against the near plane (z >= -w), returning a
// convex polygon of zero, three or four vertices.
func clipNear(tri [3]vertex, out []vertex) []vertex {
	out = out[:0]
	for i := range 3 {
		a, b := tri[i], tri[(i+1)%3]
		da, db := a.clip.Z+a.clip.W, b.clip.Z+b.clip.W
		if da >= 0 {
			out = append(out, a)
		}
		if (da >= 0) != (db >= 0) {
			out = append(out, lerpVertex(a, b, da/(da-db)))
		}
	}
	return out
}

// edge is twice the signed area of (a, b, p).
func edge(a, b screenVertex, px, py float64) float64 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

type shader func(t *[3]vertex, w [3]float64) Color

// drawTriangle clips, culls and fills one triangle. Front faces wind
// counter-clockwise in NDC, which is clockwise in buffer space because y
// points down.
func (r *rasterizer) drawTriangle(tri [3]vertex, cullBack bool, shade shader) {
	r.poly = clipNear(tri, r.poly)
	for i := 1; i+1 < len(r.poly); i++ {
		t := [3]vertex{r.poly[0], r.poly[i], r.poly[i+1]}
		s := [3]screenVertex{r.project(t[0].clip), r.project(t[1].clip), r.project(t[2].clip)}
		r.fill(&t, s, cullBack, shade)
	}
}

func (r *rasterizer) fill(t *[3]vertex, s [3]screenVertex, cullBack bool, shade shader) {
	area := edge(s[0], s[1], s[2].x, s[2].y)
	if math.Abs(area) < 1e-12 || (cullBack && area > 0) {
		return
	}
	r.triangles++

	minX := max(r.clip.Min.X, int(math.Floor(min(s[0].x, s[1].x, s[2].x))))
	maxX := min(r.clip.Max.X-1, int(math.Ceil(max(s[0].x, s[1].x, s[2].x))))
	minY := max(r.clip.Min.Y, int(math.Floor(min(s[0].y, s[1].y, s[2].y))))
	maxY := min(r.clip.Max.Y-1, int(math.Ceil(max(s[0].y, s[1].y, s[2].y))))
	inv := 1 / area

	for y := minY; y <= maxY; y++ {
		py := float64(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float64(x) + 0.5
			b0 := edge(s[1], s[2], px, py) * inv
			b1 := edge(s[2], s[0], px, py) * inv
			b2 := 1 - b0 - b1
			if b0 < 0 || b1 < 0 || b2 < 0 {
				continue
			}
			z := b0*s[0].z + b1*s[1].z + b2*s[2].z
			if z > 1 {
				continue
			}
			invW := b0*s[0].invW + b1*s[1].invW + b2*s[2].invW
			if invW <= 0 {
				continue
			}
			d := r.depthOf(z, invW)
			idx := y*r.fb.Width + x
			if d >= r.depth[idx] {
				continue
			}
			// perspective-correct weights
			w := [3]float64{b0 * s[0].invW / invW, b1 * s[1].invW / invW, b2 * s[2].invW / invW}
			r.depth[idx] = d
			r.fb.SetPixel(x, y, shade(t, w))
		}
	}
}

// drawMesh transforms, lights and fills every face of m.
func (r *rasterizer) drawMesh(m *Mesh, world math3d.Mat4) {
	g, mat := m.Geometry, m.Material
	mvp := r.viewProj.Mul(world)
	normalMat := world.Inverse().Transpose()

	n := g.VertexCount()
	if cap(r.verts) < n {
		r.verts = make([]vertex, n)
	}
	verts := r.verts[:n]
	for i := range n {
		pos, nrm, uv := g.GetVertex(i)
		wp := world.MulVec3(pos)
		v := vertex{clip: mvp.MulVec4(math3d.V4FromV3(pos, 1)), world: wp, uv: uv}
		if !mat.Unlit {
			v.light, v.sun = r.lights.at(normalMat.MulVec3Dir(nrm).Normalize(), wp, mat.DoubleSided)
		}
		verts[i] = v
	}

	albedo := toLinear(mat.Color)
	receive := m.ReceiveShadow && r.shadow != nil
	shade := func(t *[3]vertex, w [3]float64) Color {
		return r.fragment(t, w, mat, albedo, receive)
	}

	for i := range g.TriangleCount() {
		f := g.GetFace(i)
		if f[0] >= n || f[1] >= n || f[2] >= n {
			continue
		}
		if mat.Wireframe {
			col := mat.Color
			r.drawSegment(verts[f[0]].world, verts[f[1]].world, col)
			r.drawSegment(verts[f[1]].world, verts[f[2]].world, col)
			r.drawSegment(verts[f[2]].world, verts[f[0]].world, col)
			continue
		}
		r.drawTriangle([3]vertex{verts[f[0]], verts[f[1]], verts[f[2]]}, !mat.DoubleSided, shade)
	}
}

func (r *rasterizer) fragment(t *[3]vertex, w [3]float64, mat *Material, albedo rgb, receive bool) Color {
	base := albedo
	if mat.Map != nil {
		u := w[0]*t[0].uv.X + w[1]*t[1].uv.X + w[2]*t[2].uv.X
		v := w[0]*t[0].uv.Y + w[1]*t[1].uv.Y + w[2]*t[2].uv.Y
		base = base.mul(toLinear(mat.Map.Sample(u, v)))
	}
	if !mat.Unlit {
		light := t[0].light.scale(w[0]).add(t[1].light.scale(w[1])).add(t[2].light.scale(w[2]))
		sun := t[0].sun.scale(w[0]).add(t[1].sun.scale(w[1])).add(t[2].sun.scale(w[2]))
		if receive {
			p := t[0].world.Scale(w[0]).Add(t[1].world.Scale(w[1])).Add(t[2].world.Scale(w[2]))
			sun = sun.scale(r.shadow.visibility(p))
		}
		base = base.mul(light.add(sun))
	}
	return toSRGB(r.tone.apply(base, r.exposure), 255)
}

// drawLines draws every segment of l, depth tested but without writing depth.
func (r *rasterizer) drawLines(l *Lines, world math3d.Mat4) {
	for _, s := range l.Segments {
		r.drawSegment(world.MulVec3(s.From), world.MulVec3(s.To), s.Color)
	}
}

func (r *rasterizer) drawSegment(a, b math3d.Vec3, c Color) {
	ca := r.viewProj.MulVec4(math3d.V4FromV3(a, 1))
	cb := r.viewProj.MulVec4(math3d.V4FromV3(b, 1))
	da, db := ca.Z+ca.W, cb.Z+cb.W
	switch {
	case da < 0 && db < 0:
		return
	case da < 0:
		ca = lerpVec4(ca, cb, da/(da-db))
	case db < 0:
		cb = lerpVec4(cb, ca, db/(db-da))
	}
	sa, sb := r.project(ca), r.project(cb)

	t0, t1, ok := clipSegment(sa.x, sa.y, sb.x, sb.y, r.clip)
	if !ok {
		return
	}
	at := func(t float64) screenVertex {
		return screenVertex{
			x:    sa.x + (sb.x-sa.x)*t,
			y:    sa.y + (sb.y-sa.y)*t,
			z:    sa.z + (sb.z-sa.z)*t,
			invW: sa.invW + (sb.invW-sa.invW)*t,
		}
	}
	p0, p1 := at(t0), at(t1)
	col := toSRGB(r.tone.apply(toLinear(c), r.exposure), 255)

	bresenham(int(p0.x), int(p0.y), int(p1.x), int(p1.y), func(x, y int, t float64) {
		if !image.Pt(x, y).In(r.clip) {
			return
		}
		z := p0.z + (p1.z-p0.z)*t
		invW := p0.invW + (p1.invW-p0.invW)*t
		if z > 1 || invW <= 0 {
			return
		}
		if r.depthOf(z, invW) > r.depth[y*r.fb.Width+x] {
			return
		}
		r.fb.SetPixel(x, y, col)
	})
}

// clipSegment clips the 2D segment to rect (Liang–Barsky) and returns the
// parameter range that stays inside.
func clipSegment(x0, y0, x1, y1 float64, rect image.Rectangle) (t0, t1 float64, ok bool) {
	dx, dy := x1-x0, y1-y0
	t0, t1 = 0, 1
	edges := [4][2]float64{
		{-dx, x0 - float64(rect.Min.X)},
		{dx, float64(rect.Max.X) - 1e-6 - x0},
		{-dy, y0 - float64(rect.Min.Y)},
		{dy, float64(rect.Max.Y) - 1e-6 - y0},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			t0 = math.Max(t0, t)
		} else {
			t1 = math.Min(t1, t)
		}
		if t0 > t1 {
			return 0, 0, false
		}
	}
	return t0, t1, true
}

// fillBackground paints bg into the clip rectangle by sampling it along each
// pixel's view ray.
func (r *rasterizer) fillBackground(bg Background) {
	if solid, ok := bg.(SolidBackground); ok {
		r.fb.Fill(r.clip, solid.Color)
		return
	}
	inv := r.viewProj.Inverse()
	vp := r.viewport
	for y := r.clip.Min.Y; y < r.clip.Max.Y; y++ {
		ny := 1 - 2*(float64(y-vp.Min.Y)+0.5)/float64(vp.Dy())
		for x := r.clip.Min.X; x < r.clip.Max.X; x++ {
			nx := 2*(float64(x-vp.Min.X)+0.5)/float64(vp.Dx()) - 1
			near := inv.MulVec3(math3d.V3(nx, ny, -1))
			far := inv.MulVec3(math3d.V3(nx, ny, 1))
			r.fb.SetPixel(x, y, bg.Sample(far.Sub(near).Normalize()))
		}
	}
}

// lighting holds the per-pass light setup evaluated at each vertex.
type lighting struct {
	ambient rgb
	dirs    []dirLight
	sun     *dirLight

	// headlight replaces an empty light list with a light at the eye.
	headlight bool
	eye       math3d.Vec3
}

type dirLight struct {
	toLight math3d.Vec3
	color   rgb
}

func newLighting(scene *Scene, eye math3d.Vec3, shadowLight *DirectionalLight) *lighting {
	l := &lighting{eye: eye}
	found := false
	scene.TraverseVisible(func(o Object) {
		switch light := o.(type) {
		case *AmbientLight:
			found = true
			l.ambient = l.ambient.add(toLinear(light.Color).scale(light.Intensity))
		case *DirectionalLight:
			found = true
			d := dirLight{toLight: light.Direction().Negate(), color: toLinear(light.Color).scale(light.Intensity)}
			if light == shadowLight {
				l.sun = &d
			} else {
				l.dirs = append(l.dirs, d)
			}
		}
	})
	l.headlight = !found
	return l
}

func (l *lighting) at(n, p math3d.Vec3, twoSided bool) (light, sun rgb) {
	if l.headlight {
		v := 0.3 + 0.7*lambert(n, l.eye.Sub(p).Normalize(), twoSided)
		return rgb{v, v, v}, rgb{}
	}
	light = l.ambient
	for _, d := range l.dirs {
		light = light.add(d.color.scale(lambert(n, d.toLight, twoSided)))
	}
	if l.sun != nil {
		sun = l.sun.color.scale(lambert(n, l.sun.toLight, twoSided))
	}
	return light, sun
}

// lambert is the diffuse term. A missing normal counts as facing the light.
func lambert(n, toLight math3d.Vec3, twoSided bool) float64 {
	if n.LenSq() == 0 || math.IsNaN(n.X) {
		return 1
	}
	d := n.Dot(toLight)
	if twoSided {
		d = math.Abs(d)
	}
	return math.Max(0, d)
}
