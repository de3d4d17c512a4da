package render

import (
	"bytes"
	"image/png"
	"math"
	"testing"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/taigrr/diorama/pkg/math3d"
)

func frontCamera(z float64) *Camera {
	cam := NewPerspectiveCamera(60, 1, 0.1, 100)
	cam.Position = math3d.V3(0, 0, z)
	cam.LookAt(math3d.Zero3())
	return cam
}

func TestRenderUnlitQuad(t *testing.T) {
	r := NewRenderer(Options{})
	r.SetSize(40, 40)
	scene := NewScene()
	mat := NewMaterial(ColorRed)
	mat.Unlit = true
	scene.Add(NewMesh(quadGeometry(2), mat))

	r.Render(scene, frontCamera(5))

	fb := r.Framebuffer()
	if got := fb.GetPixel(20, 20); !colorNear(got, ColorRed, 1) {
		t.Errorf("center = %v, want red", got)
	}
	if got := fb.GetPixel(1, 1); got != ColorBlack {
		t.Errorf("corner = %v, want the clear color", got)
	}
	if r.Info.Calls != 1 || r.Info.Triangles != 2 {
		t.Errorf("info = %+v", r.Info)
	}
}

func TestRenderCullsBackFaces(t *testing.T) {
	tests := []struct {
		name        string
		doubleSided bool
		wantDrawn   bool
	}{
		{"single sided", false, false},
		{"double sided", true, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRenderer(Options{})
			r.SetSize(40, 40)
			scene := NewScene()
			mat := NewMaterial(ColorGreen)
			mat.Unlit = true
			mat.DoubleSided = tc.doubleSided
			quad := NewMesh(quadGeometry(2), mat)
			quad.Rotation = math3d.QuatFromAxisAngle(math3d.Up(), math.Pi)
			scene.Add(quad)

			r.Render(scene, frontCamera(5))
			drawn := r.Framebuffer().GetPixel(20, 20) != ColorBlack
			if drawn != tc.wantDrawn {
				t.Errorf("drawn = %v, want %v", drawn, tc.wantDrawn)
			}
		})
	}
}

func TestRenderDepthOrder(t *testing.T) {
	for _, logDepth := range []bool{false, true} {
		r := NewRenderer(Options{LogarithmicDepthBuffer: logDepth})
		r.SetSize(40, 40)
		scene := NewScene()

		blue := NewMaterial(ColorBlue)
		blue.Unlit = true
		red := NewMaterial(ColorRed)
		red.Unlit = true
		front := NewMesh(quadGeometry(2), blue)
		front.Position = math3d.V3(0, 0, 1)
		back := NewMesh(quadGeometry(4), red)
		scene.Add(front, back)

		r.Render(scene, frontCamera(5))
		fb := r.Framebuffer()
		if got := fb.GetPixel(20, 20); !colorNear(got, ColorBlue, 1) {
			t.Errorf("log=%v: center = %v, want the nearer blue quad", logDepth, got)
		}
		if got := fb.GetPixel(20, 8); !colorNear(got, ColorRed, 1) {
			t.Errorf("log=%v: edge = %v, want the larger red quad", logDepth, got)
		}
	}
}

func TestRenderViewportAndScissor(t *testing.T) {
	r := NewRenderer(Options{})
	r.SetSize(40, 40)
	scene := NewScene()
	cam := frontCamera(5)

	r.SetClearColor(MustParseColor("#000"))
	r.Render(scene, cam)

	r.SetViewport(0, 0, 10, 10)
	r.SetScissor(0, 0, 10, 10)
	r.SetScissorTest(true)
	r.SetClearColor(MustParseColor("#ccc"))
	r.Render(scene, cam)

	fb := r.Framebuffer()
	gray := RGB(204, 204, 204)
	if got := fb.GetPixel(5, 35); got != gray {
		t.Errorf("inside the bottom-left viewport = %v, want %v", got, gray)
	}
	if got := fb.GetPixel(30, 5); got != ColorBlack {
		t.Errorf("outside = %v, want black", got)
	}
	if r.Info.Calls != 2 {
		t.Errorf("calls = %d, want 2", r.Info.Calls)
	}

	r.SetSize(20, 20)
	if r.Viewport().Dx() != 20 || r.Scissor().Dy() != 20 {
		t.Error("SetSize should reset viewport and scissor to the canvas")
	}
}

func TestRenderAlphaClear(t *testing.T) {
	r := NewRenderer(Options{Alpha: true})
	r.SetSize(8, 8)
	r.Render(NewScene(), frontCamera(5))
	if got := r.Framebuffer().GetPixel(3, 3); got.A != 0 {
		t.Errorf("alpha canvas should clear to transparent, got %v", got)
	}
}

func TestRenderAntialiasResolves(t *testing.T) {
	r := NewRenderer(Options{Antialias: true})
	r.SetSize(20, 10)
	r.SetClearColor(ColorMagenta)
	r.Render(NewScene(), frontCamera(5))

	fb := r.Framebuffer()
	if fb.Width != 20 || fb.Height != 10 {
		t.Fatalf("presented size = %dx%d, want 20x10", fb.Width, fb.Height)
	}
	if got := fb.GetPixel(10, 5); !colorNear(got, ColorMagenta, 1) {
		t.Errorf("resolved pixel = %v", got)
	}
}

func TestRenderLighting(t *testing.T) {
	r := NewRenderer(Options{})
	r.SetSize(40, 40)
	scene := NewScene()
	scene.Add(NewMesh(quadGeometry(2), NewMaterial(ColorWhite)))
	cam := frontCamera(5)

	r.Render(scene, cam)
	headlit := r.Framebuffer().GetPixel(20, 20)
	if !colorNear(headlit, ColorWhite, 10) {
		t.Errorf("with no lights the view is lit from the eye, got %v", headlit)
	}

	scene.Add(NewAmbientLight(ColorWhite, 0.1))
	r.Render(scene, cam)
	dim := r.Framebuffer().GetPixel(20, 20)

	sun := NewDirectionalLight(ColorWhite, 0.8)
	sun.Position = math3d.V3(0, 0, 10)
	scene.Add(sun)
	r.Render(scene, cam)
	bright := r.Framebuffer().GetPixel(20, 20)

	if luminance(dim) >= luminance(bright) {
		t.Errorf("directional light should brighten the quad: %v vs %v", dim, bright)
	}
}

func TestRenderShadows(t *testing.T) {
	r := NewRenderer(Options{ShadowMap: true})
	r.SetSize(80, 80)
	scene := NewScene()

	groundGeom := &testGeometry{}
	groundGeom.addFace(math3d.Zero3(), math3d.V3(0, 1, 0), 10)
	ground := NewMesh(groundGeom, NewMaterial(ColorWhite))
	ground.ReceiveShadow = true

	blockerGeom := &testGeometry{}
	blockerGeom.addFace(math3d.Zero3(), math3d.V3(0, 1, 0), 1)
	blocker := NewMesh(blockerGeom, NewMaterial(ColorWhite))
	blocker.Position = math3d.V3(0, 2, 0)
	blocker.CastShadow = true

	sun := NewDirectionalLight(ColorWhite, 1)
	sun.Position = math3d.V3(0, 10, 0)
	sun.CastShadow = true
	scene.Add(ground, blocker, sun, NewAmbientLight(ColorWhite, 0.2))

	cam := NewPerspectiveCamera(60, 1, 0.1, 100)
	cam.Position = math3d.V3(0, 10, 10)
	cam.LookAt(math3d.Zero3())
	r.Render(scene, cam)

	fb := r.Framebuffer()
	px := func(p math3d.Vec3) Color {
		x, y, _, ok := cam.WorldToScreen(p, fb.Width, fb.Height)
		if !ok {
			t.Fatalf("%v is off screen", p)
		}
		return fb.GetPixel(int(x), int(y))
	}
	shadowed := px(math3d.Zero3())
	lit := px(math3d.V3(4, 0, 0))
	if luminance(shadowed) >= luminance(lit) {
		t.Errorf("ground under the blocker should be darker: %v vs %v", shadowed, lit)
	}
}

func TestRenderLinesAndBackground(t *testing.T) {
	r := NewRenderer(Options{})
	r.SetSize(40, 40)
	scene := NewScene()
	scene.SetBackground(SolidBackground{Color: ColorBlue})
	scene.Add(NewAxesHelper(1))

	r.Render(scene, frontCamera(5))
	fb := r.Framebuffer()

	if got := fb.GetPixel(1, 1); got != ColorBlue {
		t.Errorf("background = %v, want blue", got)
	}
	// +X axis runs right from the center
	if got := fb.GetPixel(23, 20); !colorNear(got, ColorRed, 1) {
		t.Errorf("x axis pixel = %v, want red", got)
	}
}

func TestRenderCubeBackground(t *testing.T) {
	var cube CubeTexture
	for i := range cube.Faces {
		tex := NewTexture(1, 1)
		tex.SetPixel(0, 0, RGB(uint8(i*40), 0, 0))
		cube.Faces[i] = tex
	}
	r := NewRenderer(Options{})
	r.SetSize(20, 20)
	scene := NewScene()
	scene.SetBackground(&cube)

	r.Render(scene, frontCamera(5))
	if got := r.Framebuffer().GetPixel(10, 10); got != RGB(CubeNegZ*40, 0, 0) {
		t.Errorf("looking down -Z should show the -Z face, got %v", got)
	}
}

func TestRendererVisible(t *testing.T) {
	r := NewRenderer(Options{})
	r.SetSize(40, 40)
	scene := NewScene()
	scene.Add(NewMesh(quadGeometry(2), nil))
	cam := frontCamera(5)
	r.Render(scene, cam)

	if r.Visible(cam, math3d.V3(0, 0, -1)) {
		t.Error("point behind the quad should be hidden")
	}
	if !r.Visible(cam, math3d.V3(0, 0, 1)) {
		t.Error("point in front of the quad should be visible")
	}
	if r.Visible(cam, math3d.V3(0, 0, 10)) {
		t.Error("point behind the camera should be hidden")
	}
}

func TestRenderFrustumCulling(t *testing.T) {
	r := NewRenderer(Options{})
	r.SetSize(20, 20)
	scene := NewScene()
	off := NewMesh(boxGeometry(1), nil)
	off.Position = math3d.V3(100, 0, 0)
	scene.Add(off)

	r.Render(scene, frontCamera(5))
	if r.Info.Culled != 1 || r.Info.Triangles != 0 {
		t.Errorf("info = %+v, want the box culled", r.Info)
	}
}

func TestFramebufferDraw(t *testing.T) {
	fb := NewFramebuffer(2, 4)
	fb.SetPixel(0, 0, ColorRed)
	fb.SetPixel(0, 1, ColorBlue)

	scr := uv.NewScreenBuffer(2, 2)
	fb.Draw(scr, scr.Bounds())

	cell := scr.CellAt(0, 0)
	if cell == nil || cell.Content != "▀" {
		t.Fatalf("cell = %+v", cell)
	}
	if cell.Style.Fg != ColorRed || cell.Style.Bg != ColorBlue {
		t.Errorf("fg/bg = %v/%v", cell.Style.Fg, cell.Style.Bg)
	}
	if other := scr.CellAt(1, 1); other.Style.Fg != nil {
		t.Errorf("transparent pixels should leave the color unset, got %v", other.Style.Fg)
	}
}

func TestFramebufferPNG(t *testing.T) {
	fb := NewFramebuffer(3, 2)
	fb.Clear(ColorGreen)
	var buf bytes.Buffer
	if err := fb.EncodePNG(&buf); err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 2 {
		t.Errorf("bounds = %v", img.Bounds())
	}
}
