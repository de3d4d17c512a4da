package render

import (
	"image"
	"math"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/taigrr/diorama/pkg/math3d"
	"github.com/taigrr/diorama/pkg/surface"
	"golang.org/x/image/draw"
)

// Options are fixed when a Renderer is created.
type Options struct {
	// Antialias renders at twice the resolution and filters down.
	Antialias bool
	// LogarithmicDepthBuffer stores log2 view distance instead of NDC z,
	// which keeps precision across large near/far ratios.
	LogarithmicDepthBuffer bool
	// Alpha makes the default clear color fully transparent, so the
	// terminal background shows where nothing is drawn.
	Alpha bool
	// ShadowMap enables shadows from the first shadow-casting directional
	// light.
	ShadowMap   bool
	ToneMapping ToneMapping
	// Exposure scales light before tone mapping. Zero means 1.
	Exposure float64
}

// Info counts renderer work.
type Info struct {
	Calls     int // Render invocations since creation
	Triangles int // triangles filled by the last Render
	Culled    int // meshes skipped by frustum culling in the last Render
}

// Renderer rasterizes scenes into a framebuffer shown by its canvas element.
//
// Sizes, viewports and scissor boxes are in CSS pixels with the origin at
// the bottom left, as in WebGL; the drawing buffer is that size times the
// pixel ratio.
type Renderer struct {
	Info Info
	// AutoClear clears the scissor box (or the whole buffer) before each
	// Render.
	AutoClear bool

	opts       Options
	width      int
	height     int
	pixelRatio float64
	samples    int

	fb    *Framebuffer // drawing buffer
	out   *Framebuffer // presented buffer
	depth []float64

	clearColor  Color
	clearAlpha  float64
	viewport    image.Rectangle
	scissor     image.Rectangle
	scissorTest bool

	element *surface.Element
	raster  rasterizer
}

// NewRenderer creates a renderer with a 1×1 drawing buffer.
func NewRenderer(opts Options) *Renderer {
	if opts.Exposure == 0 {
		opts.Exposure = 1
	}
	r := &Renderer{
		AutoClear:  true,
		opts:       opts,
		pixelRatio: 1,
		samples:    1,
		clearColor: ColorBlack,
		clearAlpha: 1,
	}
	if opts.Antialias {
		r.samples = 2
	}
	if opts.Alpha {
		r.clearAlpha = 0
	}
	r.element = surface.NewElement("canvas")
	r.element.SetContent(uv.DrawableFunc(func(scr uv.Screen, area uv.Rectangle) {
		r.out.Draw(scr, area)
	}))
	r.SetSize(1, 1)
	return r
}

// Options returns the creation options.
func (r *Renderer) Options() Options { return r.opts }

// DomElement is the canvas element presenting the rendered image.
func (r *Renderer) DomElement() *surface.Element { return r.element }

// SetPixelRatio sets the device pixel ratio and reallocates the buffers.
func (r *Renderer) SetPixelRatio(ratio float64) {
	if ratio <= 0 {
		ratio = 1
	}
	r.pixelRatio = ratio
	r.SetSize(r.width, r.height)
}

func (r *Renderer) PixelRatio() float64 { return r.pixelRatio }

// SetSize resizes the canvas and its buffers, and resets the viewport and
// scissor box to cover the whole canvas.
func (r *Renderer) SetSize(width, height int) {
	r.width, r.height = max(width, 1), max(height, 1)
	ow := max(1, int(math.Floor(float64(r.width)*r.pixelRatio)))
	oh := max(1, int(math.Floor(float64(r.height)*r.pixelRatio)))

	r.out = NewFramebuffer(ow, oh)
	r.fb = r.out
	if r.samples > 1 {
		r.fb = NewFramebuffer(ow*r.samples, oh*r.samples)
	}
	r.depth = make([]float64, r.fb.Width*r.fb.Height)
	for i := range r.depth {
		r.depth[i] = math.MaxFloat64
	}
	r.element.SetSize(width, height)
	r.SetViewport(0, 0, r.width, r.height)
	r.SetScissor(0, 0, r.width, r.height)
}

// Size returns the canvas size in CSS pixels.
func (r *Renderer) Size() (width, height int) { return r.width, r.height }

func (r *Renderer) SetClearColor(c Color) { r.clearColor = c }

func (r *Renderer) ClearColor() Color { return r.clearColor }

// SetClearAlpha sets the opacity of cleared pixels, 0 to 1.
func (r *Renderer) SetClearAlpha(a float64) { r.clearAlpha = clamp01(a) }

// SetViewport sets the area the camera projects into.
func (r *Renderer) SetViewport(x, y, width, height int) {
	r.viewport = image.Rect(x, y, x+width, y+height)
}

func (r *Renderer) Viewport() image.Rectangle { return r.viewport }

// SetScissor sets the box Clear and Render are confined to while the scissor
// test is enabled.
func (r *Renderer) SetScissor(x, y, width, height int) {
	r.scissor = image.Rect(x, y, x+width, y+height)
}

func (r *Renderer) Scissor() image.Rectangle { return r.scissor }

func (r *Renderer) SetScissorTest(enabled bool) { r.scissorTest = enabled }

func (r *Renderer) ScissorTest() bool { return r.scissorTest }

// bufferRect converts a CSS rectangle with a bottom-left origin into drawing
// buffer pixels with a top-left origin.
func (r *Renderer) bufferRect(css image.Rectangle) image.Rectangle {
	s := r.pixelRatio * float64(r.samples)
	px := func(v int) int { return int(math.Round(float64(v) * s)) }
	h := r.fb.Height
	return image.Rect(px(css.Min.X), h-px(css.Max.Y), px(css.Max.X), h-px(css.Min.Y))
}

func (r *Renderer) clearRect() image.Rectangle {
	if r.scissorTest {
		return r.bufferRect(r.scissor).Intersect(r.fb.img.Rect)
	}
	return r.fb.img.Rect
}

// Clear resets color and depth inside the scissor box, or everywhere when the
// scissor test is off.
func (r *Renderer) Clear() {
	rect := r.clearRect()
	c := r.clearColor
	c.A = uint8(math.Round(r.clearAlpha * 255))
	if c.A == 0 {
		c = Color{}
	}
	r.fb.Fill(rect, c)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		row := r.depth[y*r.fb.Width+rect.Min.X : y*r.fb.Width+rect.Max.X]
		for i := range row {
			row[i] = math.MaxFloat64
		}
	}
}

// Render draws scene as seen by cam into the current viewport.
func (r *Renderer) Render(scene *Scene, cam *Camera) {
	r.Info.Calls++
	r.Info.Triangles = 0
	r.Info.Culled = 0
	if r.AutoClear {
		r.Clear()
	}

	viewport := r.bufferRect(r.viewport)
	clip := viewport.Intersect(r.clearRect())
	if clip.Empty() || viewport.Empty() {
		r.resolve()
		return
	}

	var meshes []*Mesh
	var lines []*Lines
	var shadowLight *DirectionalLight
	scene.TraverseVisible(func(o Object) {
		switch v := o.(type) {
		case *Mesh:
			if v.Geometry != nil && v.Material != nil {
				meshes = append(meshes, v)
			}
		case *Lines:
			lines = append(lines, v)
		case *DirectionalLight:
			if r.opts.ShadowMap && v.CastShadow && shadowLight == nil {
				shadowLight = v
			}
		}
	})

	r.raster = rasterizer{
		fb:        r.fb,
		depth:     r.depth,
		viewport:  viewport,
		clip:      clip,
		viewProj:  cam.ViewProjectionMatrix(),
		logDepth:  r.opts.LogarithmicDepthBuffer,
		invLogFar: invLogFar(cam),
		tone:      r.opts.ToneMapping,
		exposure:  r.opts.Exposure,
		lights:    newLighting(scene, cam.WorldPosition(), shadowLight),
		poly:      r.raster.poly,
		verts:     r.raster.verts,
	}

	if bg := scene.Background(); bg != nil {
		r.raster.fillBackground(bg)
	}

	if shadowLight != nil {
		var casters []*Mesh
		for _, m := range meshes {
			if m.CastShadow {
				casters = append(casters, m)
			}
		}
		r.raster.shadow = newShadowMap(shadowLight, casters)
	}

	frustum := cam.Frustum()
	for _, m := range meshes {
		world := m.WorldMatrix()
		lo, hi := m.Geometry.GetBounds()
		if !frustum.IntersectAABB(NewAABB(lo, hi).Transform(world)) {
			r.Info.Culled++
			continue
		}
		r.raster.drawMesh(m, world)
	}
	for _, l := range lines {
		r.raster.drawLines(l, l.WorldMatrix())
	}

	r.Info.Triangles = r.raster.triangles
	r.resolve()
}

func invLogFar(cam *Camera) float64 {
	return 1 / math.Log2(math.Max(cam.Far, 1)+1)
}

// resolve filters the drawing buffer into the presented buffer.
func (r *Renderer) resolve() {
	if r.fb == r.out {
		return
	}
	draw.BiLinear.Scale(r.out.img, r.out.img.Rect, r.fb.img, r.fb.img.Rect, draw.Src, nil)
}

// Framebuffer returns the presented image. It is replaced on resize.
func (r *Renderer) Framebuffer() *Framebuffer { return r.out }

// Visible reports whether world is in front of the depth buffer when seen by
// cam through the current viewport, i.e. not hidden behind drawn geometry.
func (r *Renderer) Visible(cam *Camera, world math3d.Vec3) bool {
	clipPos := cam.ViewProjectionMatrix().MulVec4(math3d.V4FromV3(world, 1))
	if clipPos.W <= 0 {
		return false
	}
	rs := rasterizer{
		viewport:  r.bufferRect(r.viewport),
		logDepth:  r.opts.LogarithmicDepthBuffer,
		invLogFar: invLogFar(cam),
	}
	s := rs.project(clipPos)
	x, y := int(s.x), int(s.y)
	if x < 0 || y < 0 || x >= r.fb.Width || y >= r.fb.Height || s.z < -1 || s.z > 1 {
		return false
	}
	const eps = 1e-4
	return rs.depthOf(s.z, s.invW) <= r.depth[y*r.fb.Width+x]+eps
}

// Dispose drops the buffers and detaches the canvas element.
func (r *Renderer) Dispose() {
	r.element.Remove()
	r.out = NewFramebuffer(0, 0)
	r.fb = r.out
	r.depth = nil
}
