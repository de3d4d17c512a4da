package controls

import (
	"github.com/taigrr/diorama/pkg/math3d"
	"github.com/taigrr/diorama/pkg/render"
	"github.com/taigrr/diorama/pkg/surface"
)

// Detacher is implemented by controls that can let go of the object they
// manipulate.
type Detacher interface {
	Detach()
}

// Transform drags an attached object across the horizontal plane through
// the point where it was grabbed.
type Transform struct {
	Camera  *render.Camera
	Enabled bool

	// OnDraggingChanged runs when a drag starts or ends, so other controls
	// on the same element can stand down.
	OnDraggingChanged func(dragging bool)
	// OnChange runs after the object moved.
	OnChange func()

	element   *surface.Element
	listeners []surface.ListenerID
	object    render.Object
	raycaster *render.Raycaster

	dragging bool
	plane    math3d.Vec3 // a point on the drag plane
	offset   math3d.Vec3 // object origin minus grab point, world space
}

// NewTransform binds transform controls for cam to element. Nothing is
// attached yet.
func NewTransform(cam *render.Camera, element *surface.Element) *Transform {
	t := &Transform{
		Camera:    cam,
		Enabled:   true,
		element:   element,
		raycaster: render.NewRaycaster(),
	}
	t.listeners = []surface.ListenerID{
		element.AddEventListener(surface.PointerDown, t.onPointerDown),
		element.AddEventListener(surface.PointerMove, t.onPointerMove),
		element.AddEventListener(surface.PointerUp, t.onPointerUp),
	}
	return t
}

// Attach makes obj the object being manipulated.
func (t *Transform) Attach(obj render.Object) {
	t.setDragging(false)
	t.object = obj
}

// Detach lets go of the object and ends any drag.
func (t *Transform) Detach() {
	t.setDragging(false)
	t.object = nil
}

// Object returns the attached object or nil.
func (t *Transform) Object() render.Object { return t.object }

// Dragging reports whether a drag is in progress.
func (t *Transform) Dragging() bool { return t.dragging }

// Dispose detaches and removes the element listeners.
func (t *Transform) Dispose() {
	t.Detach()
	for _, id := range t.listeners {
		t.element.RemoveEventListener(id)
	}
	t.listeners = nil
}

func (t *Transform) setDragging(on bool) {
	if t.dragging == on {
		return
	}
	t.dragging = on
	if t.OnDraggingChanged != nil {
		t.OnDraggingChanged(on)
	}
}

func (t *Transform) aim(x, y float64) {
	t.raycaster.SetFromCamera(elementNDC(t.element, x, y), t.Camera)
}

func (t *Transform) onPointerDown(ev surface.Event) {
	pe := ev.(surface.PointerEvent)
	if !t.Enabled || t.object == nil || pe.Button != surface.ButtonLeft {
		return
	}
	t.aim(pe.ClientX, pe.ClientY)
	hits := t.raycaster.IntersectObject(t.object, true)
	if len(hits) == 0 {
		return
	}
	t.plane = hits[0].Point
	t.offset = t.object.Object3D().WorldPosition().Sub(hits[0].Point)
	t.setDragging(true)
}

func (t *Transform) onPointerMove(ev surface.Event) {
	pe := ev.(surface.PointerEvent)
	if !t.dragging || t.object == nil {
		return
	}
	t.aim(pe.ClientX, pe.ClientY)
	d, ok := t.raycaster.Ray.IntersectPlane(t.plane, math3d.Up())
	if !ok {
		return
	}
	world := t.raycaster.Ray.At(d).Add(t.offset)
	n := t.object.Object3D()
	if p := n.Parent(); p != nil {
		world = p.WorldMatrix().Inverse().MulVec3(world)
	}
	n.Position = world
	if t.OnChange != nil {
		t.OnChange()
	}
}

func (t *Transform) onPointerUp(surface.Event) {
	t.setDragging(false)
}

// elementNDC maps client coordinates to normalized device coordinates of the
// element's box.
func elementNDC(el *surface.Element, x, y float64) math3d.Vec2 {
	r := el.Rect()
	w, h := max(1, r.Dx()), max(1, r.Dy())
	return math3d.V2(
		(x-float64(r.Min.X))/float64(w)*2-1,
		-(y-float64(r.Min.Y))/float64(h)*2+1,
	)
}
