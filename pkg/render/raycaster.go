package render

import (
	"math"
	"sort"

	"github.com/taigrr/diorama/pkg/math3d"
)

// Intersection is one ray hit.
type Intersection struct {
	Distance  float64 // from the ray origin, in world units
	Point     math3d.Vec3
	FaceIndex int
	Object    Object
}

// Raycastable objects can be hit by a Raycaster.
type Raycastable interface {
	Raycast(rc *Raycaster, hits []Intersection) []Intersection
}

// Raycaster casts a world-space ray into objects. Hits closer than Near or
// farther than Far are dropped.
type Raycaster struct {
	Ray  math3d.Ray
	Near float64
	Far  float64
}

func NewRaycaster() *Raycaster {
	return &Raycaster{Far: math.Inf(1)}
}

// SetFromCamera aims the ray from the camera through ndc, where both axes run
// from -1 to 1 and +Y is up.
func (r *Raycaster) SetFromCamera(ndc math3d.Vec2, cam *Camera) {
	origin := cam.WorldPosition()
	target := cam.Unproject(math3d.V3(ndc.X, ndc.Y, 0.5))
	r.Ray = math3d.Ray{Origin: origin, Direction: target.Sub(origin).Normalize()}
}

// IntersectObject tests obj, and its descendants when recursive is set.
// Hits are sorted nearest first.
func (r *Raycaster) IntersectObject(obj Object, recursive bool) []Intersection {
	hits := r.intersect(obj, recursive, nil)
	sortHits(hits)
	return hits
}

// IntersectObjects tests every object in objs. Hits are sorted nearest first.
func (r *Raycaster) IntersectObjects(objs []Object, recursive bool) []Intersection {
	var hits []Intersection
	for _, obj := range objs {
		hits = r.intersect(obj, recursive, hits)
	}
	sortHits(hits)
	return hits
}

func (r *Raycaster) intersect(obj Object, recursive bool, hits []Intersection) []Intersection {
	if !obj.Object3D().Visible {
		return hits
	}
	if rc, ok := obj.(Raycastable); ok {
		hits = rc.Raycast(r, hits)
	}
	if recursive {
		for _, child := range obj.Object3D().children {
			hits = r.intersect(child, true, hits)
		}
	}
	return hits
}

func sortHits(hits []Intersection) {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
}
