package controls

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taigrr/diorama/pkg/math3d"
	"github.com/taigrr/diorama/pkg/models"
	"github.com/taigrr/diorama/pkg/render"
	"github.com/taigrr/diorama/pkg/surface"
)

func newRig(t *testing.T) (*render.Camera, *surface.Element) {
	t.Helper()
	cam := render.NewPerspectiveCamera(60, 1, 0.1, 100)
	cam.Position = math3d.V3(0, 10, 10)
	cam.LookAt(math3d.Zero3())

	el := surface.NewElement("div")
	el.SetSize(100, 100)
	el.Layout(image.Pt(0, 0), 100, 100)
	return cam, el
}

func pointer(kind surface.EventType, x, y float64) surface.PointerEvent {
	return surface.PointerEvent{Kind: kind, ClientX: x, ClientY: y}
}

func drag(el *surface.Element, x0, y0, x1, y1 float64) {
	el.Dispatch(pointer(surface.PointerDown, x0, y0))
	el.Dispatch(pointer(surface.PointerMove, x1, y1))
	el.Dispatch(pointer(surface.PointerUp, x1, y1))
}

func TestOrbitReadsCamera(t *testing.T) {
	cam, el := newRig(t)
	o := NewOrbit(cam, el)

	assert.InDelta(t, math.Sqrt(200), o.Distance(), 1e-9)
	assert.InDelta(t, math.Pi/4, o.PolarAngle(), 1e-9)
	assert.InDelta(t, 0, o.AzimuthalAngle(), 1e-9)
	assert.False(t, o.Update(), "a camera already on the sphere does not move")
}

func TestOrbitDragRotates(t *testing.T) {
	cam, el := newRig(t)
	o := NewOrbit(cam, el)
	o.EnableDamping = false
	changes := 0
	o.OnChange = func() { changes++ }

	drag(el, 10, 50, 35, 50)
	assert.False(t, o.Dragging())
	require.True(t, o.Update())
	assert.Equal(t, 1, changes)
	assert.True(t, cam.Position.ApproxEqual(math3d.V3(-10, 10, 0), 1e-6), "camera at %v", cam.Position)
	assert.True(t, cam.Forward().ApproxEqual(math3d.V3(1, -1, 0).Normalize(), 1e-6))
}

func TestOrbitPolarClamp(t *testing.T) {
	cam, el := newRig(t)
	o := NewOrbit(cam, el)
	o.EnableDamping = false
	o.MaxPolarAngle = math.Pi / 2

	drag(el, 50, 90, 50, 10)
	o.Update()
	assert.InDelta(t, math.Pi/2, o.PolarAngle(), 1e-9)
	assert.InDelta(t, 0, cam.Position.Y, 1e-6)

	drag(el, 50, 10, 50, 90)
	drag(el, 50, 10, 50, 90)
	o.Update()
	assert.Greater(t, o.PolarAngle(), 0.0, "the camera never flips over the pole")
	assert.False(t, math.IsNaN(cam.Rotation.W))
}

func TestOrbitZoomIsDamped(t *testing.T) {
	cam, el := newRig(t)
	o := NewOrbit(cam, el)
	o.MinDistance = 12

	for range 10 {
		el.Dispatch(surface.WheelEvent{ClientX: 50, ClientY: 50, DeltaY: -1})
	}
	o.Update()
	assert.Greater(t, o.Distance(), 12.1, "the first frame only starts moving")
	assert.False(t, o.Settled())

	for range 600 {
		o.Update()
	}
	assert.True(t, o.Settled())
	assert.InDelta(t, 12, o.Distance(), 1e-3)
	assert.InDelta(t, 12, cam.Position.Len(), 1e-3)

	el.Dispatch(surface.WheelEvent{DeltaY: 1})
	for range 600 {
		o.Update()
	}
	assert.InDelta(t, 12/0.95, o.Distance(), 1e-3)
}

func TestOrbitPanAndReset(t *testing.T) {
	cam, el := newRig(t)
	o := NewOrbit(cam, el)
	o.EnableDamping = false

	el.Dispatch(surface.PointerEvent{Kind: surface.PointerDown, ClientX: 50, ClientY: 50, Shift: true})
	el.Dispatch(pointer(surface.PointerMove, 60, 50))
	el.Dispatch(pointer(surface.PointerLeave, 60, 50))
	assert.False(t, o.Dragging(), "leaving the element ends the gesture")
	assert.Less(t, o.Target.X, 0.0, "dragging right pulls the scene right")
	assert.InDelta(t, 0, o.Target.Y, 1e-9)

	o.Update()
	assert.InDelta(t, o.Target.X, cam.Position.X, 1e-9)

	o.Reset()
	assert.Equal(t, math3d.Zero3(), o.Target)
	assert.True(t, cam.Position.ApproxEqual(math3d.V3(0, 10, 10), 1e-6))
}

func TestOrbitDisabledAndDispose(t *testing.T) {
	cam, el := newRig(t)
	o := NewOrbit(cam, el)
	o.EnableDamping = false
	o.Enabled = false

	drag(el, 10, 50, 60, 50)
	el.Dispatch(surface.WheelEvent{DeltaY: 1})
	assert.False(t, o.Update())

	o.Dispose()
	for _, typ := range []surface.EventType{surface.PointerDown, surface.PointerMove, surface.PointerUp, surface.PointerLeave, surface.Wheel} {
		assert.Zero(t, el.ListenerCount(typ), typ)
	}
}

func TestTransformDrag(t *testing.T) {
	cam, el := newRig(t)
	box := render.NewMesh(models.NewBox(2, 1, 2), nil)
	tc := NewTransform(cam, el)

	var states []bool
	tc.OnDraggingChanged = func(on bool) { states = append(states, on) }

	// nothing attached: nothing happens
	el.Dispatch(pointer(surface.PointerDown, 50, 50))
	assert.False(t, tc.Dragging())

	tc.Attach(box)
	assert.Same(t, box, tc.Object())

	// grabbing empty space does not start a drag
	el.Dispatch(pointer(surface.PointerDown, 2, 2))
	assert.False(t, tc.Dragging())

	el.Dispatch(pointer(surface.PointerDown, 50, 50))
	require.True(t, tc.Dragging())
	el.Dispatch(pointer(surface.PointerMove, 75, 50))
	assert.Greater(t, box.Position.X, 0.0)
	assert.InDelta(t, 0, box.Position.Y, 1e-6, "drags stay on the grab plane")
	assert.InDelta(t, 0, box.Position.Z, 1e-6)

	el.Dispatch(pointer(surface.PointerUp, 75, 50))
	assert.False(t, tc.Dragging())
	assert.Equal(t, []bool{true, false}, states)
}

func TestTransformDetach(t *testing.T) {
	cam, el := newRig(t)
	parent := render.NewGroup()
	parent.Position = math3d.V3(0, 0, -1)
	box := render.NewMesh(models.NewBox(2, 1, 2), nil)
	box.Position = math3d.V3(0, 0, 1)
	parent.Add(box)

	tc := NewTransform(cam, el)
	var d Detacher = tc
	tc.Attach(box)
	el.Dispatch(pointer(surface.PointerDown, 50, 50))
	require.True(t, tc.Dragging())
	el.Dispatch(pointer(surface.PointerMove, 50, 50))
	assert.True(t, box.Position.ApproxEqual(math3d.V3(0, 0, 1), 1e-6), "local position accounts for the parent, got %v", box.Position)

	d.Detach()
	assert.False(t, tc.Dragging())
	assert.Nil(t, tc.Object())

	tc.Dispose()
	assert.Zero(t, el.ListenerCount(surface.PointerDown))
}
