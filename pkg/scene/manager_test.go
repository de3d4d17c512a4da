package scene

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taigrr/diorama/pkg/fetch"
	"github.com/taigrr/diorama/pkg/math3d"
	"github.com/taigrr/diorama/pkg/models"
	"github.com/taigrr/diorama/pkg/render"
	"github.com/taigrr/diorama/pkg/surface"
	"github.com/taigrr/diorama/pkg/tween"
)

func newManager(t *testing.T, cfg Config, win *surface.Headless, opts ...Option) *Manager {
	t.Helper()
	m, err := New(cfg, append([]Option{WithWindow(win)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(m.Destroy)
	return m
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func waitReady(t *testing.T, m *Manager) {
	t.Helper()
	select {
	case <-m.BackgroundReady():
	case <-time.After(5 * time.Second):
		t.Fatal("background load did not settle")
	}
}

func TestNewDefaults(t *testing.T) {
	win := surface.NewHeadless(1280, 720)
	m := newManager(t, Config{}, win)

	cam := m.Camera()
	assert.Equal(t, 90.0, cam.FOV)
	assert.Equal(t, 0.1, cam.Near)
	assert.Equal(t, 5000.0, cam.Far)
	assert.InDelta(t, 1280.0/720.0, cam.Aspect, 1e-12)
	assert.Equal(t, math3d.V3(0, 10, 10), cam.Position)

	assert.Equal(t, []render.Object{cam}, m.Scene().Children())
	assert.Same(t, m.Scene(), m.Context().Scene())
	assert.Same(t, cam, m.Context().Camera())

	assert.Nil(t, m.Renderer(), "the renderer is created by Render")
	assert.Nil(t, m.AmbientLight())
	assert.Nil(t, m.CutoutCamera())
	assert.Nil(t, m.Overlay())
	assert.Nil(t, m.Scene().Background())
	assert.False(t, m.Picker().Recursive)
}

func TestNewWithOptions(t *testing.T) {
	pos := math3d.V3(1, 2, 3)
	grey := Color(render.ColorGray)
	cfg := Config{
		DefCameraOps:       CameraOptions{Position: &pos, FOV: 45, Aspect: 2},
		DefAmbientLightOps: LightOptions{Color: &grey},
		AmbientLight:       true,
		Cutout:             true,
		Overlay3D:          true,
	}
	m := newManager(t, cfg, surface.NewHeadless(100, 100))
	pos.X = 50 // the manager keeps its own copy

	assert.Equal(t, math3d.V3(1, 2, 3), m.Camera().Position)
	assert.Equal(t, 45.0, m.Camera().FOV)
	assert.Equal(t, 2.0, m.Camera().Aspect)

	light := m.AmbientLight()
	require.NotNil(t, light)
	assert.Equal(t, render.ColorGray, light.Color)
	assert.Equal(t, 1.0, light.Intensity)
	assert.Equal(t, math3d.V3(0, 3, 10), light.Position)
	assert.Len(t, m.Scene().Children(), 2)

	cut := m.CutoutCamera()
	require.NotNil(t, cut)
	assert.Equal(t, math3d.V3(0, 50, 0), cut.Position)
	assert.True(t, cut.Forward().ApproxEqual(math3d.V3(0, -1, 0), 1e-9))
	assert.Equal(t, Rect{Width: 500, Height: 500}, m.CutoutArea())

	require.NotNil(t, m.Overlay())
	assert.Equal(t, "3d", m.Overlay().Mode().String())
	assert.Equal(t, 1.0, m.Config().DefCameraOps.Position.X)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Background: Background{Images: []string{"one"}}})
	assert.Error(t, err)
}

func TestRenderDefaults(t *testing.T) {
	win := surface.NewHeadless(80, 40)
	m := newManager(t, Config{}, win)

	var events []string
	m.Bus().Subscribe(EventBeforeRender, func() { events = append(events, "before:"+rendererState(m)) })
	m.Bus().Subscribe(EventAfterRender, func() { events = append(events, "after:"+rendererState(m)) })

	require.NoError(t, m.Render(win.Body()))
	assert.Equal(t, []string{"before:nil", "after:set"}, events)

	r := m.Renderer()
	assert.Equal(t, RendererOptions{}.resolve(), r.Options())
	w, h := r.Size()
	assert.Equal(t, []int{80, 40}, []int{w, h})
	assert.Equal(t, 1, r.Info.Calls, "Render draws a first frame")

	canvas := r.DomElement()
	assert.Equal(t, []*surface.Element{canvas}, win.Body().Children())
	assert.Same(t, canvas, m.Context().DomElement())
	assert.Equal(t, 1, canvas.ListenerCount(surface.PointerDown))
	assert.Equal(t, 1, win.ListenerCount(surface.Resize))
	assert.Nil(t, m.Controls())
}

func rendererState(m *Manager) string {
	if m.Renderer() == nil {
		return "nil"
	}
	return "set"
}

func TestRenderTwiceRebinds(t *testing.T) {
	win := surface.NewHeadless(80, 40)
	m := newManager(t, Config{OrbitControls: true, RendererOps: RendererOptions{Size: &Size{Width: 40, Height: 20}}}, win)
	require.NoError(t, m.Render(win.Body()))
	first, firstControls := m.Renderer(), m.Controls()
	require.NoError(t, m.Render(win.Body()))

	assert.NotSame(t, first, m.Renderer())
	assert.NotSame(t, firstControls, m.Controls())
	assert.Same(t, m.Controls(), m.Context().OrbitControls())
	assert.Equal(t, []*surface.Element{m.Renderer().DomElement()}, win.Body().Children())
	assert.Zero(t, first.DomElement().ListenerCount(surface.PointerDown))
	assert.Equal(t, 2, m.Renderer().DomElement().ListenerCount(surface.PointerDown), "orbit controls and picking")
	assert.Equal(t, 1, win.ListenerCount(surface.Resize))

	w, h := m.Renderer().Size()
	assert.Equal(t, []int{40, 20}, []int{w, h}, "configured size wins over the window")
}

func TestOverlayReceivesInput(t *testing.T) {
	win := surface.NewHeadless(80, 40)
	m := newManager(t, Config{Overlay2D: true, OrbitControls: true}, win)
	require.NoError(t, m.Render(win.Body()))

	el := m.Overlay().Element()
	assert.Equal(t, []*surface.Element{el, m.Renderer().DomElement()}, win.Body().Children())
	assert.Equal(t, surface.Absolute, el.Style.Position)
	assert.Same(t, el, m.Context().DomElement())
	assert.Same(t, el, m.Controls().Element())
	assert.True(t, m.Camera().Forward().ApproxEqual(math3d.V3(0, -1, -1).Normalize(), 1e-9), "orbit controls aim the camera at the target")
}

func TestStartFrameAnimateBeforeRender(t *testing.T) {
	m := newManager(t, Config{}, surface.NewHeadless(10, 10))
	err := m.StartFrameAnimate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestAddDoesNotDedup(t *testing.T) {
	m := newManager(t, Config{}, surface.NewHeadless(10, 10))
	box := render.NewMesh(models.NewBox(1, 1, 1), nil)
	m.Add(box)
	m.Add(box)
	assert.Equal(t, []render.Object{m.Camera(), box, box}, m.Scene().Children())
}

func TestFrameOrder(t *testing.T) {
	win := surface.NewHeadless(40, 20, surface.WithFrameLimit(1))
	m := newManager(t, Config{}, win)
	require.NoError(t, m.Render(win.Body()))

	var order []string
	calls := func(name string) func() {
		return func() {
			order = append(order, name)
			assert.Equal(t, 1, m.Renderer().Info.Calls, name)
		}
	}
	m.Context().AddFrameCallback(calls("first"))
	m.Context().AddFrameCallback(calls("second"))
	m.Context().AddUpdater(UpdaterFunc(func(time.Duration) { calls("updater")() }))

	err := m.StartFrameAnimate(context.Background(), func(r *render.Renderer) {
		assert.Same(t, m.Renderer(), r)
		calls("onFrame")()
	})
	assert.ErrorIs(t, err, surface.ErrClosed)
	assert.Equal(t, []string{"onFrame", "first", "second", "updater"}, order)
	assert.Equal(t, 2, m.Renderer().Info.Calls)
}

func TestCutoutRendersTwoViewports(t *testing.T) {
	win := surface.NewHeadless(100, 60, surface.WithFrameLimit(1))
	m := newManager(t, Config{Cutout: true, RendererOps: RendererOptions{Antialias: Bool(false)}}, win)
	m.SetCutoutArea(Rect{Width: 20, Height: 20})
	require.NoError(t, m.Render(win.Body()))
	r := m.Renderer()
	assert.Equal(t, 2, r.Info.Calls)

	require.ErrorIs(t, m.StartFrameAnimate(context.Background(), nil), surface.ErrClosed)
	assert.Equal(t, 4, r.Info.Calls, "main and cutout each frame")
	assert.True(t, r.ScissorTest())
	assert.Equal(t, image.Rect(0, 0, 20, 20), r.Viewport())
	assert.Equal(t, render.MustParseColor("#ccc"), r.ClearColor())

	fb := r.Framebuffer()
	assert.Equal(t, render.MustParseColor("#ccc"), fb.GetPixel(5, 55), "cutout area at the bottom left")
	assert.Equal(t, render.MustParseColor("#000"), fb.GetPixel(90, 5))
	assert.InDelta(t, 1.0, m.CutoutCamera().Aspect, 1e-12)
}

func TestOnDemand(t *testing.T) {
	win := surface.NewHeadless(20, 10, surface.WithFrameLimit(5))
	m := newManager(t, Config{OnDemand: true}, win)
	require.NoError(t, m.Render(win.Body()))

	require.ErrorIs(t, m.StartFrameAnimate(context.Background(), nil), surface.ErrClosed)
	assert.Equal(t, 2, m.Renderer().Info.Calls, "only the first frame after Render draws")

	win2 := surface.NewHeadless(20, 10, surface.WithFrameLimit(5))
	m2 := newManager(t, Config{OnDemand: true}, win2)
	require.NoError(t, m2.Render(win2.Body()))
	v := 0.0
	m2.Tweens().Start(tween.Float(&v, 1, time.Hour))
	require.ErrorIs(t, m2.StartFrameAnimate(context.Background(), nil), surface.ErrClosed)
	assert.Equal(t, 6, m2.Renderer().Info.Calls, "a running tween draws every frame")
}

func TestDestroyStopsLoop(t *testing.T) {
	win := surface.NewHeadless(20, 10)
	m := newManager(t, Config{}, win)
	require.NoError(t, m.Render(win.Body()))
	canvas := m.Renderer().DomElement()

	frames := 0
	err := m.StartFrameAnimate(context.Background(), func(*render.Renderer) {
		frames++
		if frames == 3 {
			m.Destroy()
		}
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, frames)
	assert.Zero(t, win.ListenerCount(surface.Resize))
	assert.Zero(t, canvas.ListenerCount(surface.PointerDown))
	assert.Len(t, m.Scene().Children(), 1, "the scene graph is kept")
}

func TestStartFrameAnimateCanceled(t *testing.T) {
	win := surface.NewHeadless(20, 10)
	m := newManager(t, Config{}, win)
	require.NoError(t, m.Render(win.Body()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.StartFrameAnimate(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStartFrameAnimateAfterDestroy(t *testing.T) {
	win := surface.NewHeadless(20, 10, surface.WithFrameLimit(200))
	m := newManager(t, Config{}, win)
	require.NoError(t, m.Render(win.Body()))
	m.Destroy()

	frames := 0
	err := m.StartFrameAnimate(context.Background(), func(*render.Renderer) { frames++ })
	assert.NoError(t, err)
	assert.Zero(t, frames)
}

func TestCutoutFitsSmallCanvas(t *testing.T) {
	win := surface.NewHeadless(160, 96, surface.WithFrameLimit(1))
	m := newManager(t, Config{Cutout: true, RendererOps: RendererOptions{Antialias: Bool(false)}}, win)
	assert.Equal(t, Rect{Width: 500, Height: 500}, m.CutoutArea())
	assert.Equal(t, Rect{Width: 500, Height: 500}, m.CutoutViewport(), "nothing to fit before Render")

	require.NoError(t, m.Render(win.Body()))
	assert.Equal(t, Rect{Width: 32, Height: 32}, m.CutoutViewport())
	require.ErrorIs(t, m.StartFrameAnimate(context.Background(), nil), surface.ErrClosed)

	r := m.Renderer()
	assert.Equal(t, image.Rect(0, 0, 32, 32), r.Viewport())
	fb := r.Framebuffer()
	assert.Equal(t, render.MustParseColor("#ccc"), fb.GetPixel(4, 90))
	assert.Equal(t, render.MustParseColor("#000"), fb.GetPixel(150, 5), "main view stays visible")
	assert.Equal(t, render.MustParseColor("#000"), fb.GetPixel(40, 90))
}

func TestResize(t *testing.T) {
	win := surface.NewHeadless(40, 20, surface.WithFrameLimit(1))
	m := newManager(t, Config{Overlay2D: true}, win)
	require.NoError(t, m.Render(win.Body()))

	win.Resize(200, 50)
	require.ErrorIs(t, m.StartFrameAnimate(context.Background(), nil), surface.ErrClosed)
	assert.InDelta(t, 4.0, m.Camera().Aspect, 1e-12)
	w, h := m.Renderer().Size()
	assert.Equal(t, []int{200, 50}, []int{w, h})
	ow, oh := m.Overlay().Size()
	assert.Equal(t, []int{200, 50}, []int{ow, oh})
}

func TestBackgroundColor(t *testing.T) {
	red := Color(render.ColorRed)
	m := newManager(t, Config{Background: Background{Color: &red}}, surface.NewHeadless(10, 10))
	assert.Equal(t, render.SolidBackground{Color: render.ColorRed}, m.Scene().Background())
	waitReady(t, m)
}

func TestCubeBackgroundLoadsLater(t *testing.T) {
	dir := t.TempDir()
	face := filepath.Join(dir, "face.png")
	writePNG(t, face)
	data, err := os.ReadFile(face)
	require.NoError(t, err)

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write(data)
	}))
	defer srv.Close()

	var images []string
	for _, name := range []string{"px", "nx", "py", "ny", "pz", "nz"} {
		images = append(images, srv.URL+"/"+name+".png")
	}
	m := newManager(t, Config{Background: Background{Images: images}}, surface.NewHeadless(10, 10),
		WithFetcher(fetch.New(srv.Client(), nil)))

	assert.Nil(t, m.Scene().Background(), "no background until the faces arrive")
	close(release)
	waitReady(t, m)

	cube, ok := m.Scene().Background().(*render.CubeTexture)
	require.True(t, ok)
	for i, f := range cube.Faces {
		assert.NotNil(t, f, "face %d", i)
	}
}

func TestBackgroundFailureIsIgnored(t *testing.T) {
	dir := t.TempDir()
	var images []string
	for i := range 6 {
		images = append(images, filepath.Join(dir, "missing", string(rune('a'+i))+".png"))
	}
	m := newManager(t, Config{Background: Background{Images: images}}, surface.NewHeadless(10, 10))
	waitReady(t, m)
	assert.Nil(t, m.Scene().Background())
}

func TestPanoramaBackground(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pano.png")
	writePNG(t, path)
	m := newManager(t, Config{Background: Background{Panorama: path}}, surface.NewHeadless(10, 10))
	waitReady(t, m)
	pano, ok := m.Scene().Background().(*render.EquirectTexture)
	require.True(t, ok)
	assert.NotNil(t, pano.Texture)
}

func TestPointerToNDC(t *testing.T) {
	tests := []struct {
		name string
		x, y float64
		want math3d.Vec2
	}{
		{"top left", 0, 0, math3d.V2(-1, 1)},
		{"bottom right", 200, 100, math3d.V2(1, -1)},
		{"center", 100, 50, math3d.V2(0, 0)},
		{"outside clamps", -50, 400, math3d.V2(-1, -1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := PointerToNDC(tc.x, tc.y, 200, 100)
			assert.InDelta(t, tc.want.X, got.X, 1e-12)
			assert.InDelta(t, tc.want.Y, got.Y, 1e-12)
			assert.False(t, math.IsNaN(got.X))
		})
	}
	assert.Equal(t, math3d.V2(1, 1), PointerToNDC(5, -5, 0, 0), "a zero viewport does not divide by zero")
}

type countingDetacher struct{ n int }

func (d *countingDetacher) Detach() { d.n++ }

func TestPicking(t *testing.T) {
	win := surface.NewHeadless(100, 100)
	m := newManager(t, Config{}, win)
	m.Camera().LookAt(math3d.Zero3())
	box := render.NewMesh(models.NewBox(4, 1, 4), nil)
	m.Add(box)
	require.NoError(t, m.Render(win.Body()))

	tc := &countingDetacher{}
	m.Context().AddTransformControl(tc)

	var got []PickEvent
	unsubscribe := m.OnPick(func(ev PickEvent) { got = append(got, ev) })
	ctx := context.Background()

	win.Send(surface.PointerEvent{Kind: surface.PointerDown, ClientX: 50, ClientY: 50})
	require.NoError(t, win.NextFrame(ctx))
	require.Len(t, got, 1)
	assert.True(t, m.Context().PointerDown())
	hit, ok := got[0].Hit()
	require.True(t, ok)
	assert.Same(t, box, hit.Object)
	assert.InDelta(t, 0.5, hit.Point.Y, 1e-9)
	assert.Zero(t, tc.n)

	win.Send(surface.PointerEvent{Kind: surface.PointerUp, ClientX: 50, ClientY: 50})
	require.NoError(t, win.NextFrame(ctx))
	assert.False(t, m.Context().PointerDown())
	assert.Equal(t, 1, tc.n, "releasing the pointer detaches transform controls")
	assert.Equal(t, surface.PointerUp, m.Picker().Last().Type)

	win.Send(surface.PointerEvent{Kind: surface.PointerMove, ClientX: 1, ClientY: 1})
	require.NoError(t, win.NextFrame(ctx))
	require.Len(t, got, 3)
	assert.Empty(t, got[2].Intersections)
	assert.InDelta(t, -0.98, got[2].Pointer.X, 1e-9)
	assert.InDelta(t, 0.98, got[2].Pointer.Y, 1e-9)

	unsubscribe()
	m.Picker().Pick(surface.PointerMove, 50, 50)
	assert.Len(t, got, 3)
}

func TestPickingSkipsGroupMembers(t *testing.T) {
	win := surface.NewHeadless(100, 100)
	m := newManager(t, Config{}, win)
	m.Camera().LookAt(math3d.Zero3())

	outer, inner := render.NewGroup(), render.NewGroup()
	inner.Add(render.NewMesh(models.NewBox(4, 1, 4), nil))
	outer.Add(inner)
	m.Add(outer)

	ev := m.Picker().Pick(surface.PointerMove, 50, 50)
	assert.Empty(t, ev.Intersections, "meshes nested in groups are not pickable")

	m.Picker().Recursive = true
	ev = m.Picker().Pick(surface.PointerMove, 50, 50)
	assert.Empty(t, ev.Intersections, "groups are never candidates, even recursively")
}

func TestPickWithoutCamera(t *testing.T) {
	ctx := NewContext()
	p := NewPicker(ctx, surface.NewHeadless(10, 10), nil)
	ev := p.Handle(surface.PointerEvent{Kind: surface.PointerDown, ClientX: 5, ClientY: 5})
	assert.Empty(t, ev.Intersections)
	assert.True(t, ctx.PointerDown())
}
