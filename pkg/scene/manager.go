// Package scene ties the engine together: it owns a scene graph, a default
// camera and a renderer, wires pointer picking and orbit controls to the
// window, and drives the per-frame render loop.
package scene

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taigrr/diorama/pkg/controls"
	"github.com/taigrr/diorama/pkg/fetch"
	"github.com/taigrr/diorama/pkg/math3d"
	"github.com/taigrr/diorama/pkg/models"
	"github.com/taigrr/diorama/pkg/overlay"
	"github.com/taigrr/diorama/pkg/render"
	"github.com/taigrr/diorama/pkg/surface"
	"github.com/taigrr/diorama/pkg/tween"
)

// ErrNotInitialized is returned by StartFrameAnimate before Render has
// created the renderer.
var ErrNotInitialized = errors.New("scene: renderer, scene or camera not initialized")

var (
	cutoutMainClear = render.MustParseColor("#000")
	cutoutSubClear  = render.MustParseColor("#ccc")
)

const cutoutFraction = 3

// Rect is a viewport rectangle in pixels with the origin at the bottom left.
type Rect struct {
	X, Y, Width, Height int
}

// Manager owns one scene graph, its default camera and, after Render, the
// renderer presenting it.
type Manager struct {
	cfg    Config
	window surface.Window
	ctx    *Context
	bus    *Bus
	tweens *tween.Group
	loader *models.Loader
	logger *slog.Logger

	scene        *render.Scene
	camera       *render.Camera
	ambientLight *render.AmbientLight
	cutoutCamera *render.Camera
	cutoutArea   Rect
	renderer     *render.Renderer
	overlay      *overlay.Renderer
	controls     *controls.Orbit
	picker       *Picker

	resizeID surface.ListenerID
	bgReady  chan struct{}
	dirty    atomic.Bool

	lifetime context.Context
	shutdown context.CancelFunc
	mu       sync.Mutex
	stopLoop context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithWindow sets the host window. The default is a 1280×720 headless
// window.
func WithWindow(w surface.Window) Option {
	return func(m *Manager) { m.window = w }
}

// WithContext shares a Context between managers.
func WithContext(c *Context) Option {
	return func(m *Manager) { m.ctx = c }
}

// WithBus sets the bus lifecycle signals are emitted on.
func WithBus(b *Bus) Option {
	return func(m *Manager) { m.bus = b }
}

// WithLogger sets the logger for background and render loop events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithTweens sets the tween group advanced every frame.
func WithTweens(g *tween.Group) Option {
	return func(m *Manager) { m.tweens = g }
}

// WithFetcher sets how background images are fetched.
func WithFetcher(f *fetch.Fetcher) Option {
	return func(m *Manager) { m.loader = models.NewLoader(models.WithFetcher(f)) }
}

// New builds a scene graph with a default camera, and optionally an ambient
// light, an overlay renderer, a cutout camera and a background, as cfg
// asks. cfg is copied; later changes to it have no effect.
func New(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg, err := cfg.clone()
	if err != nil {
		return nil, err
	}
	m := &Manager{cfg: cfg, bgReady: make(chan struct{})}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.window == nil {
		m.window = surface.NewHeadless(1280, 720)
	}
	if m.ctx == nil {
		m.ctx = NewContext()
	}
	if m.bus == nil {
		m.bus = NewBus()
	}
	if m.tweens == nil {
		m.tweens = tween.NewGroup()
	}
	if m.loader == nil {
		m.loader = models.NewLoader(models.WithLogger(m.logger))
	}
	if m.cfg.FPS == 0 {
		m.cfg.FPS = 60
	}
	m.lifetime, m.shutdown = context.WithCancel(context.Background())

	m.scene = render.NewScene()
	m.ctx.SetScene(m.scene)

	m.camera = m.newCamera()
	m.ctx.SetCamera(m.camera)
	m.scene.Add(m.camera)

	switch {
	case cfg.Overlay3D:
		m.overlay = overlay.New(overlay.Mode3D)
	case cfg.Overlay2D:
		m.overlay = overlay.New(overlay.Mode2D)
	}
	if m.overlay != nil {
		m.overlay.SetSize(m.window.InnerSize())
	}

	if cfg.AmbientLight {
		m.ambientLight = m.newAmbientLight()
		m.scene.Add(m.ambientLight)
	}

	if cfg.Cutout {
		m.cutoutCamera = m.newCamera()
		m.cutoutCamera.Position = math3d.V3(0, 50, 0)
		m.cutoutCamera.LookAt(math3d.Zero3())
		m.SetCutoutArea(Rect{Width: 500, Height: 500})
	}

	m.picker = NewPicker(m.ctx, m.window, m.logger)
	m.picker.Recursive = orDefault(cfg.DefRaycasterOps.Recursive, false)

	m.loadBackground(m.lifetime)
	return m, nil
}

func (m *Manager) newCamera() *render.Camera {
	ops := m.cfg.DefCameraOps
	w, h := m.window.InnerSize()
	aspect := orNonZero(ops.Aspect, float64(max(w, 1))/float64(max(h, 1)))
	cam := render.NewPerspectiveCamera(
		orNonZero(ops.FOV, 90),
		aspect,
		orNonZero(ops.Near, 0.1),
		orNonZero(ops.Far, 5000),
	)
	cam.Position = orDefault(ops.Position, math3d.V3(0, 10, 10))
	return cam
}

func (m *Manager) newAmbientLight() *render.AmbientLight {
	ops := m.cfg.DefAmbientLightOps
	c := render.ColorWhite
	if ops.Color != nil {
		c = ops.Color.Value()
	}
	light := render.NewAmbientLight(c, orNonZero(ops.Intensity, 1))
	light.Position = orDefault(ops.Position, math3d.V3(0, 3, 10))
	return light
}

// Render creates the renderer, draws a first frame and attaches the output
// to target: the overlay element (absolute, at the top) first, then the
// canvas. Pointer input on the overlay, or the canvas without one, drives
// picking and orbit controls. Window resizes resize the renderer.
//
// Calling Render again replaces the renderer and rebinds the listeners.
func (m *Manager) Render(target *surface.Element) error {
	m.bus.Emit(EventBeforeRender)
	m.unbind()
	if m.renderer != nil {
		m.renderer.Dispose()
	}

	m.renderer = m.newRenderer()
	m.renderMain()
	if m.cutoutCamera != nil {
		m.renderCutout()
	}

	dom := m.renderer.DomElement()
	if m.overlay != nil {
		el := m.overlay.Element()
		el.Style = surface.Style{Position: surface.Absolute, Top: 0}
		target.AppendChild(el)
		m.overlay.SetDepthSource(m.renderer)
		dom = el
	}
	target.AppendChild(m.renderer.DomElement())

	if m.cfg.OrbitControls {
		m.controls = controls.NewOrbit(m.camera, dom, controls.WithFPS(m.cfg.FPS))
		m.controls.OnChange = m.Invalidate
		m.controls.Update()
		m.ctx.SetOrbitControls(m.controls)
	}
	m.ctx.SetDomElement(dom)

	m.picker.Bind(dom)
	m.resizeID = m.window.AddEventListener(surface.Resize, m.onResize)
	m.dirty.Store(true)

	m.bus.Emit(EventAfterRender)
	return nil
}

func (m *Manager) newRenderer() *render.Renderer {
	r := render.NewRenderer(m.cfg.RendererOps.resolve())
	r.SetPixelRatio(m.window.DevicePixelRatio())
	w, h := m.window.InnerSize()
	if s := m.cfg.RendererOps.Size; s != nil {
		w, h = s.Width, s.Height
	}
	r.SetSize(w, h)
	r.SetClearColor(cutoutMainClear)
	return r
}

// renderMain draws the main camera's view over the whole canvas.
func (m *Manager) renderMain() {
	r := m.renderer
	w, h := r.Size()
	r.SetViewport(0, 0, w, h)
	if m.cutoutCamera != nil {
		r.SetScissorTest(true)
		r.SetScissor(0, 0, w, h)
	}
	r.SetClearColor(cutoutMainClear)
	r.Render(m.scene, m.camera)
}

// renderCutout draws the cutout camera's view into the cutout area.
func (m *Manager) renderCutout() {
	r := m.renderer
	a := m.CutoutViewport()
	r.SetClearColor(cutoutSubClear)
	r.SetScissor(a.X, a.Y, a.Width, a.Height)
	r.SetViewport(a.X, a.Y, a.Width, a.Height)
	r.Render(m.scene, m.cutoutCamera)
}

func (m *Manager) onResize(ev surface.Event) {
	re := ev.(surface.ResizeEvent)
	if re.Height > 0 {
		m.camera.SetAspect(float64(re.Width) / float64(re.Height))
	}
	if m.renderer != nil {
		m.renderer.SetPixelRatio(m.window.DevicePixelRatio())
		m.renderer.SetSize(re.Width, re.Height)
	}
	if m.overlay != nil {
		m.overlay.SetSize(re.Width, re.Height)
	}
	m.Invalidate()
}

// StartFrameAnimate runs the render loop on the calling goroutine until ctx
// is canceled, the window closes or Destroy is called. Each frame runs, in
// order: onFrame, the Context's frame callbacks, its updaters, the tween
// group, the main render, the overlay render, the cutout render and the
// orbit controls, then waits for the window's next frame.
//
// It returns ErrNotInitialized before Render, ctx's error on cancellation,
// the window's error when it closes and nil after Destroy.
func (m *Manager) StartFrameAnimate(ctx context.Context, onFrame func(*render.Renderer)) error {
	if m.renderer == nil || m.scene == nil || m.camera == nil {
		return ErrNotInitialized
	}
	if m.lifetime.Err() != nil {
		// destroyed
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.mu.Lock()
	m.stopLoop = cancel
	m.mu.Unlock()
	stop := context.AfterFunc(m.lifetime, cancel)
	defer stop()

	last := time.Now()
	for frame := 0; ; frame++ {
		now := time.Now()
		dt := now.Sub(last)
		last = now

		if onFrame != nil {
			onFrame(m.renderer)
		}
		m.ctx.RunFrameCallbacks()
		m.ctx.RunUpdaters(dt)
		animating := m.tweens.Update(dt)

		if !m.cfg.OnDemand || m.dirty.Swap(false) || animating {
			m.renderMain()
			if m.overlay != nil {
				m.overlay.Render(m.scene, m.camera)
			}
			if m.cutoutCamera != nil {
				m.renderCutout()
			}
		}
		if m.controls != nil {
			m.controls.Update()
		}

		if err := m.window.NextFrame(loopCtx); err != nil {
			if loopCtx.Err() != nil && ctx.Err() == nil {
				m.logger.Debug("render loop stopped", "frame", frame)
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// Invalidate asks an on-demand manager to render the next frame. It is safe
// to call from any goroutine.
func (m *Manager) Invalidate() {
	m.dirty.Store(true)
}

// Add appends obj to the scene graph. Adding the same object twice lists it
// twice.
func (m *Manager) Add(obj render.Object) {
	m.scene.Add(obj)
	m.Invalidate()
}

// Destroy removes the window and pointer listeners, disposes the orbit
// controls, cancels background loads and stops a running loop. The scene
// graph is left as is.
func (m *Manager) Destroy() {
	m.unbind()
	m.shutdown()
	m.mu.Lock()
	if m.stopLoop != nil {
		m.stopLoop()
	}
	m.mu.Unlock()
}

func (m *Manager) unbind() {
	if m.resizeID != 0 {
		m.window.RemoveEventListener(m.resizeID)
		m.resizeID = 0
	}
	m.picker.Unbind()
	if m.controls != nil {
		m.controls.Dispose()
		if m.ctx.OrbitControls() == m.controls {
			m.ctx.SetOrbitControls(nil)
		}
		m.controls = nil
	}
}

// SetCutoutArea moves the cutout viewport and matches the cutout camera's
// aspect ratio to it.
func (m *Manager) SetCutoutArea(r Rect) {
	m.cutoutArea = r
	if m.cutoutCamera != nil && r.Height > 0 {
		m.cutoutCamera.SetAspect(float64(r.Width) / float64(r.Height))
	}
	m.Invalidate()
}

// CutoutArea returns the area set by SetCutoutArea.
func (m *Manager) CutoutArea() Rect { return m.cutoutArea }

// CutoutViewport returns where the cutout is drawn: CutoutArea shrunk, with
// its aspect kept, to at most a third of the canvas in each direction.
func (m *Manager) CutoutViewport() Rect {
	a := m.cutoutArea
	if m.renderer == nil || a.Width <= 0 || a.Height <= 0 {
		return a
	}
	w, h := m.renderer.Size()
	s := min(1,
		float64(w/cutoutFraction)/float64(a.Width),
		float64(h/cutoutFraction)/float64(a.Height))
	a.Width = int(float64(a.Width) * s)
	a.Height = int(float64(a.Height) * s)
	return a
}

// Scene returns the root of the scene graph.
func (m *Manager) Scene() *render.Scene { return m.scene }

// Camera returns the main camera.
func (m *Manager) Camera() *render.Camera { return m.camera }

// CutoutCamera returns the top-down cutout camera, or nil without cutout.
func (m *Manager) CutoutCamera() *render.Camera { return m.cutoutCamera }

// AmbientLight returns the default ambient light, or nil when disabled.
func (m *Manager) AmbientLight() *render.AmbientLight { return m.ambientLight }

// Renderer returns nil before Render.
func (m *Manager) Renderer() *render.Renderer { return m.renderer }

// Overlay returns the label renderer, or nil when no overlay is configured.
func (m *Manager) Overlay() *overlay.Renderer { return m.overlay }

// Controls returns the orbit controls after Render, if enabled.
func (m *Manager) Controls() *controls.Orbit { return m.controls }

// Context returns the shared state registry.
func (m *Manager) Context() *Context { return m.ctx }

// Bus returns the bus lifecycle signals are emitted on.
func (m *Manager) Bus() *Bus { return m.bus }

// Picker returns the pointer picker bound by Render.
func (m *Manager) Picker() *Picker { return m.picker }

// Tweens returns the tween group advanced every frame.
func (m *Manager) Tweens() *tween.Group { return m.tweens }

// Window returns the window the manager renders into.
func (m *Manager) Window() surface.Window { return m.window }

// Loader returns the model loader backgrounds are fetched with.
func (m *Manager) Loader() *models.Loader { return m.loader }

// Config returns a copy of the configuration in effect.
func (m *Manager) Config() Config {
	cfg, err := m.cfg.clone()
	if err != nil {
		return m.cfg
	}
	return cfg
}

// OnPick subscribes fn to pick results; see Picker.OnPick.
func (m *Manager) OnPick(fn func(PickEvent)) (cancel func()) {
	return m.picker.OnPick(fn)
}
