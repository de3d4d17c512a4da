package scene

import (
	"slices"
	"sync"
	"time"

	"github.com/taigrr/diorama/pkg/controls"
	"github.com/taigrr/diorama/pkg/render"
	"github.com/taigrr/diorama/pkg/surface"
)

// CallbackID identifies a registered frame callback, updater or transform
// control.
type CallbackID uint64

// Updater is external animation or control state advanced once per frame.
type Updater interface {
	Update(dt time.Duration)
}

// UpdaterFunc adapts a function to Updater.
type UpdaterFunc func(dt time.Duration)

func (f UpdaterFunc) Update(dt time.Duration) { f(dt) }

type frameCallback struct {
	id CallbackID
	fn func()
}

type updaterEntry struct {
	id CallbackID
	u  Updater
}

type transformEntry struct {
	id CallbackID
	d  controls.Detacher
}

// Context is the state components share without being wired to each
// other: the active scene, camera, input element, controls and per-frame
// hooks. It holds references only and never tears anything down.
//
// Setters do not validate. The zero value is ready to use.
type Context struct {
	mu sync.Mutex

	scene       *render.Scene
	camera      *render.Camera
	dom         *surface.Element
	orbit       *controls.Orbit
	pointerDown bool
	transforms  []transformEntry

	nextID    CallbackID
	callbacks []frameCallback
	updaters  []updaterEntry
}

func NewContext() *Context {
	return &Context{}
}

// SetScene adds or replaces the active scene.
func (c *Context) SetScene(s *render.Scene) {
	c.mu.Lock()
	c.scene = s
	c.mu.Unlock()
}

func (c *Context) Scene() *render.Scene {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scene
}

func (c *Context) SetCamera(cam *render.Camera) {
	c.mu.Lock()
	c.camera = cam
	c.mu.Unlock()
}

func (c *Context) Camera() *render.Camera {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.camera
}

// SetDomElement records the element receiving pointer input.
func (c *Context) SetDomElement(el *surface.Element) {
	c.mu.Lock()
	c.dom = el
	c.mu.Unlock()
}

func (c *Context) DomElement() *surface.Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dom
}

func (c *Context) SetOrbitControls(o *controls.Orbit) {
	c.mu.Lock()
	c.orbit = o
	c.mu.Unlock()
}

func (c *Context) OrbitControls() *controls.Orbit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orbit
}

// SetPointerDown records whether a click or drag is in progress.
func (c *Context) SetPointerDown(down bool) {
	c.mu.Lock()
	c.pointerDown = down
	c.mu.Unlock()
}

func (c *Context) PointerDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pointerDown
}

// AddTransformControl registers controls to detach when the pointer is
// released. The same controls may be registered more than once.
func (c *Context) AddTransformControl(d controls.Detacher) CallbackID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.transforms = append(c.transforms, transformEntry{id: c.nextID, d: d})
	return c.nextID
}

// RemoveTransformControl unregisters the controls added under id and
// reports whether they were registered.
func (c *Context) RemoveTransformControl(id CallbackID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.transforms {
		if e.id == id {
			c.transforms = slices.Delete(c.transforms, i, i+1)
			return true
		}
	}
	return false
}

// TransformControls returns the registered transform controls in
// registration order.
func (c *Context) TransformControls() []controls.Detacher {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]controls.Detacher, len(c.transforms))
	for i, e := range c.transforms {
		out[i] = e.d
	}
	return out
}

// AddFrameCallback registers fn to run once per frame, after the frame hook
// passed to StartFrameAnimate and before rendering.
func (c *Context) AddFrameCallback(fn func()) CallbackID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.callbacks = append(c.callbacks, frameCallback{id: c.nextID, fn: fn})
	return c.nextID
}

// RemoveFrameCallback unregisters a frame callback and reports whether it
// was registered.
func (c *Context) RemoveFrameCallback(id CallbackID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cb := range c.callbacks {
		if cb.id == id {
			c.callbacks = slices.Delete(c.callbacks, i, i+1)
			return true
		}
	}
	return false
}

// RunFrameCallbacks calls every frame callback in registration order.
// Callbacks may register or remove callbacks; changes apply next frame.
func (c *Context) RunFrameCallbacks() {
	c.mu.Lock()
	cbs := slices.Clone(c.callbacks)
	c.mu.Unlock()
	for _, cb := range cbs {
		cb.fn()
	}
}

// AddUpdater registers u to advance once per frame, after the frame
// callbacks.
func (c *Context) AddUpdater(u Updater) CallbackID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.updaters = append(c.updaters, updaterEntry{id: c.nextID, u: u})
	return c.nextID
}

// RemoveUpdater unregisters an updater and reports whether it was
// registered.
func (c *Context) RemoveUpdater(id CallbackID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.updaters {
		if e.id == id {
			c.updaters = slices.Delete(c.updaters, i, i+1)
			return true
		}
	}
	return false
}

// RunUpdaters advances every updater by dt in registration order.
func (c *Context) RunUpdaters(dt time.Duration) {
	c.mu.Lock()
	us := slices.Clone(c.updaters)
	c.mu.Unlock()
	for _, e := range us {
		e.u.Update(dt)
	}
}
