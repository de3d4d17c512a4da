// Package controls moves cameras and objects in response to pointer input on
// a surface element.
package controls

import (
	"math"

	"github.com/taigrr/diorama/pkg/math3d"
	"github.com/taigrr/diorama/pkg/render"
	"github.com/taigrr/diorama/pkg/surface"
	"github.com/taigrr/diorama/pkg/tween"
)

const polarEpsilon = 1e-6

// Orbit keeps a camera on a sphere around Target. Dragging rotates, wheel
// scrolling zooms and dragging with the right button (or shift held) pans.
//
// With damping on, the camera follows the input through critically damped
// springs, so Update has to be called every frame while it settles.
type Orbit struct {
	Camera *render.Camera
	Target math3d.Vec3

	Enabled       bool
	EnableDamping bool
	EnableZoom    bool
	EnablePan     bool

	RotateSpeed float64
	ZoomSpeed   float64
	PanSpeed    float64

	MinDistance   float64
	MaxDistance   float64
	MinPolarAngle float64
	MaxPolarAngle float64

	// OnChange runs after Update moved the camera.
	OnChange func()

	element   *surface.Element
	listeners []surface.ListenerID

	theta  *tween.Spring
	phi    *tween.Spring
	radius *tween.Spring

	rotating bool
	panning  bool
	lastX    float64
	lastY    float64

	saved orbitState
}

type orbitState struct {
	target             math3d.Vec3
	theta, phi, radius float64
}

// OrbitOption configures an Orbit.
type OrbitOption func(*Orbit)

// WithFPS sets the frame rate the damping springs step at. The default is 60.
func WithFPS(fps int) OrbitOption {
	return func(o *Orbit) {
		o.theta = tween.NewSpring(fps, 4.0, 1.0)
		o.phi = tween.NewSpring(fps, 4.0, 1.0)
		o.radius = tween.NewSpring(fps, 4.0, 1.0)
	}
}

// WithTarget sets the point the camera orbits. The default is the origin.
func WithTarget(target math3d.Vec3) OrbitOption {
	return func(o *Orbit) { o.Target = target }
}

// NewOrbit binds orbit controls for cam to element. The starting sphere is
// read from the camera's current position.
func NewOrbit(cam *render.Camera, element *surface.Element, opts ...OrbitOption) *Orbit {
	o := &Orbit{
		Camera:        cam,
		Enabled:       true,
		EnableDamping: true,
		EnableZoom:    true,
		EnablePan:     true,
		RotateSpeed:   1,
		ZoomSpeed:     1,
		PanSpeed:      1,
		MaxDistance:   math.Inf(1),
		MaxPolarAngle: math.Pi,
		element:       element,
	}
	WithFPS(60)(o)
	for _, opt := range opts {
		opt(o)
	}
	o.sync()
	o.SaveState()

	o.listeners = []surface.ListenerID{
		element.AddEventListener(surface.PointerDown, o.onPointerDown),
		element.AddEventListener(surface.PointerMove, o.onPointerMove),
		element.AddEventListener(surface.PointerUp, o.onPointerEnd),
		element.AddEventListener(surface.PointerLeave, o.onPointerEnd),
		element.AddEventListener(surface.Wheel, o.onWheel),
	}
	return o
}

// sync reads the sphere from the camera and snaps the springs to it.
func (o *Orbit) sync() {
	offset := o.Camera.Position.Sub(o.Target)
	r := offset.Len()
	phi, theta := 0.0, 0.0
	if r > 0 {
		phi = math.Acos(math.Max(-1, math.Min(1, offset.Y/r)))
		theta = math.Atan2(offset.X, offset.Z)
	}
	o.theta.Snap(theta)
	o.phi.Snap(phi)
	o.radius.Snap(r)
}

// Element returns the element the controls listen on.
func (o *Orbit) Element() *surface.Element { return o.element }

// Distance returns the current camera distance from Target.
func (o *Orbit) Distance() float64 { return o.radius.Value }

// AzimuthalAngle returns the angle around +Y, measured from +Z toward +X.
func (o *Orbit) AzimuthalAngle() float64 { return o.theta.Value }

// PolarAngle returns the angle from +Y.
func (o *Orbit) PolarAngle() float64 { return o.phi.Value }

// Dragging reports whether a rotate or pan gesture is in progress.
func (o *Orbit) Dragging() bool { return o.rotating || o.panning }

// Rotate adds to the orbit angles, as a drag would.
func (o *Orbit) Rotate(dTheta, dPhi float64) {
	o.theta.Target += dTheta
	o.phi.Target = o.clampPolar(o.phi.Target + dPhi)
}

// Dolly multiplies the target distance by scale, as the wheel would.
func (o *Orbit) Dolly(scale float64) {
	if scale <= 0 {
		return
	}
	o.radius.Target = o.clampDistance(o.radius.Target * scale)
}

// Pan moves Target by a screen-space offset measured in element pixels.
func (o *Orbit) Pan(dx, dy float64) {
	_, h := o.elementSize()
	fov := o.Camera.FOV * math.Pi / 180
	// world units per pixel at the target depth
	unit := 2 * o.radius.Value * math.Tan(fov/2) / h * o.PanSpeed

	m := o.Camera.WorldMatrix()
	right := m.MulVec3Dir(math3d.V3(1, 0, 0)).Normalize()
	up := m.MulVec3Dir(math3d.V3(0, 1, 0)).Normalize()
	o.Target = o.Target.Add(right.Scale(-dx * unit)).Add(up.Scale(dy * unit))
}

// Update steps the springs and moves the camera. It reports whether the
// camera changed.
func (o *Orbit) Update() bool {
	if o.EnableDamping {
		o.theta.Update()
		o.phi.Update()
		o.radius.Update()
	} else {
		o.theta.Snap(o.theta.Target)
		o.phi.Snap(o.phi.Target)
		o.radius.Snap(o.radius.Target)
	}

	const eps = 1e-6
	pos := o.Target.Add(math3d.FromSpherical(o.radius.Value, o.phi.Value, o.theta.Value))
	if pos.ApproxEqual(o.Camera.Position, eps) && o.Camera.Forward().ApproxEqual(o.Target.Sub(pos).Normalize(), eps) {
		return false
	}
	o.Camera.Position = pos
	o.Camera.LookAt(o.Target)
	if o.OnChange != nil {
		o.OnChange()
	}
	return true
}

// Settled reports whether the damping springs are at rest.
func (o *Orbit) Settled() bool {
	const eps = 1e-4
	return o.theta.Settled(eps) && o.phi.Settled(eps) && o.radius.Settled(eps)
}

// SaveState records the current target and sphere for Reset.
func (o *Orbit) SaveState() {
	o.saved = orbitState{
		target: o.Target,
		theta:  o.theta.Target,
		phi:    o.phi.Target,
		radius: o.radius.Target,
	}
}

// Reset returns to the last saved state immediately.
func (o *Orbit) Reset() {
	o.Target = o.saved.target
	o.theta.Snap(o.saved.theta)
	o.phi.Snap(o.saved.phi)
	o.radius.Snap(o.saved.radius)
	o.rotating, o.panning = false, false
	o.Update()
}

// Dispose removes the element listeners.
func (o *Orbit) Dispose() {
	for _, id := range o.listeners {
		o.element.RemoveEventListener(id)
	}
	o.listeners = nil
	o.rotating, o.panning = false, false
}

func (o *Orbit) clampPolar(phi float64) float64 {
	lo := math.Max(o.MinPolarAngle, polarEpsilon)
	hi := math.Min(o.MaxPolarAngle, math.Pi-polarEpsilon)
	return math.Max(lo, math.Min(hi, phi))
}

func (o *Orbit) clampDistance(r float64) float64 {
	return math.Max(o.MinDistance, math.Min(o.MaxDistance, r))
}

func (o *Orbit) elementSize() (w, h float64) {
	r := o.element.Rect()
	return math.Max(1, float64(r.Dx())), math.Max(1, float64(r.Dy()))
}

func (o *Orbit) onPointerDown(ev surface.Event) {
	pe := ev.(surface.PointerEvent)
	if !o.Enabled {
		return
	}
	o.lastX, o.lastY = pe.ClientX, pe.ClientY
	if o.EnablePan && (pe.Button == surface.ButtonRight || pe.Shift) {
		o.panning = true
		return
	}
	if pe.Button == surface.ButtonLeft {
		o.rotating = true
	}
}

func (o *Orbit) onPointerMove(ev surface.Event) {
	pe := ev.(surface.PointerEvent)
	if !o.Enabled || !o.Dragging() {
		return
	}
	dx, dy := pe.ClientX-o.lastX, pe.ClientY-o.lastY
	o.lastX, o.lastY = pe.ClientX, pe.ClientY

	if o.panning {
		o.Pan(dx, dy)
		return
	}
	_, h := o.elementSize()
	o.Rotate(-2*math.Pi*dx/h*o.RotateSpeed, -2*math.Pi*dy/h*o.RotateSpeed)
}

func (o *Orbit) onPointerEnd(surface.Event) {
	o.rotating, o.panning = false, false
}

func (o *Orbit) onWheel(ev surface.Event) {
	we := ev.(surface.WheelEvent)
	if !o.Enabled || !o.EnableZoom || we.DeltaY == 0 {
		return
	}
	scale := math.Pow(0.95, o.ZoomSpeed)
	if we.DeltaY > 0 {
		o.Dolly(1 / scale)
	} else {
		o.Dolly(scale)
	}
}
