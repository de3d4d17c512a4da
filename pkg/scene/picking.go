package scene

import (
	"log/slog"
	"sync"

	"github.com/taigrr/diorama/pkg/math3d"
	"github.com/taigrr/diorama/pkg/render"
	"github.com/taigrr/diorama/pkg/surface"
)

// PointerToNDC maps client coordinates in a width × height viewport to
// normalized device coordinates: the top-left corner is (-1, 1) and the
// bottom-right corner (1, -1). Results are clamped to [-1, 1].
func PointerToNDC(clientX, clientY float64, width, height int) math3d.Vec2 {
	w, h := float64(max(width, 1)), float64(max(height, 1))
	return math3d.V2(clientX/w*2-1, -(clientY/h)*2+1).Clamp(-1, 1)
}

// PickEvent is delivered to OnPick subscribers after every pointer event.
type PickEvent struct {
	Type          surface.EventType
	Pointer       math3d.Vec2
	Intersections []render.Intersection
}

// Hit returns the nearest intersection, if any.
func (e PickEvent) Hit() (render.Intersection, bool) {
	if len(e.Intersections) == 0 {
		return render.Intersection{}, false
	}
	return e.Intersections[0], true
}

// Picker casts a ray from the active camera through the pointer on every
// pointer event and intersects it with the active scene's pickable
// objects.
//
// Only direct children of the scene are candidates; members of groups are
// not individually pickable. Recursive extends each candidate's test to its
// own descendants.
type Picker struct {
	Recursive bool

	ctx       *Context
	window    surface.Window
	raycaster *render.Raycaster
	logger    *slog.Logger

	element   *surface.Element
	listeners []surface.ListenerID

	mu     sync.Mutex
	last   PickEvent
	nextID uint64
	subs   []pickSub
}

type pickSub struct {
	id uint64
	fn func(PickEvent)
}

// NewPicker creates a picker reading the scene and camera from ctx and the
// viewport size from window.
func NewPicker(ctx *Context, window surface.Window, logger *slog.Logger) *Picker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Picker{
		ctx:       ctx,
		window:    window,
		raycaster: render.NewRaycaster(),
		logger:    logger,
	}
}

// Raycaster returns the raycaster, whose Near and Far may be adjusted.
func (p *Picker) Raycaster() *render.Raycaster { return p.raycaster }

// Bind listens for pointer down, up, move and leave on el. A previous
// binding is removed first.
func (p *Picker) Bind(el *surface.Element) {
	p.Unbind()
	handle := func(ev surface.Event) { p.Handle(ev.(surface.PointerEvent)) }
	p.element = el
	p.listeners = []surface.ListenerID{
		el.AddEventListener(surface.PointerDown, handle),
		el.AddEventListener(surface.PointerUp, handle),
		el.AddEventListener(surface.PointerMove, handle),
		el.AddEventListener(surface.PointerLeave, handle),
	}
}

// Unbind removes the listeners added by Bind.
func (p *Picker) Unbind() {
	if p.element == nil {
		return
	}
	for _, id := range p.listeners {
		p.element.RemoveEventListener(id)
	}
	p.element, p.listeners = nil, nil
}

// Handle updates the shared pointer state for ev and picks. Releasing the
// pointer detaches every registered transform control first.
func (p *Picker) Handle(ev surface.PointerEvent) PickEvent {
	switch ev.Kind {
	case surface.PointerDown:
		p.ctx.SetPointerDown(true)
	case surface.PointerUp:
		p.ctx.SetPointerDown(false)
		for _, tc := range p.ctx.TransformControls() {
			tc.Detach()
		}
	}
	return p.Pick(ev.Kind, ev.ClientX, ev.ClientY)
}

// Pick intersects the ray through the client point and notifies
// subscribers.
func (p *Picker) Pick(typ surface.EventType, clientX, clientY float64) PickEvent {
	w, h := p.window.InnerSize()
	ev := PickEvent{Type: typ, Pointer: PointerToNDC(clientX, clientY, w, h)}

	scene, cam := p.ctx.Scene(), p.ctx.Camera()
	if scene != nil && cam != nil {
		p.raycaster.SetFromCamera(ev.Pointer, cam)
		ev.Intersections = p.raycaster.IntersectObjects(pickable(scene), p.Recursive)
	} else {
		p.logger.Debug("pick without scene or camera", "type", typ)
	}

	p.mu.Lock()
	p.last = ev
	subs := append([]pickSub(nil), p.subs...)
	p.mu.Unlock()
	for _, s := range subs {
		s.fn(ev)
	}
	return ev
}

// pickable returns the scene's direct children that can be raycast.
func pickable(scene *render.Scene) []render.Object {
	var out []render.Object
	for _, child := range scene.Children() {
		if _, ok := child.(render.Raycastable); ok {
			out = append(out, child)
		}
	}
	return out
}

// Last returns the result of the most recent pick.
func (p *Picker) Last() PickEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// OnPick subscribes fn to pick results. The returned function unsubscribes.
func (p *Picker) OnPick(fn func(PickEvent)) (cancel func()) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs = append(p.subs, pickSub{id: id, fn: fn})
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, s := range p.subs {
			if s.id == id {
				p.subs = append(p.subs[:i], p.subs[i+1:]...)
				return
			}
		}
	}
}
