// Package render is diorama's software 3D engine: a small scene graph, a
// perspective camera, a raycaster and a rasterizer that draws into an RGBA
// framebuffer presented as half-block terminal cells.
package render

import (
	"github.com/taigrr/diorama/pkg/math3d"
)

// Object is anything that can live in the scene graph.
type Object interface {
	Object3D() *Node
}

// Node carries the transform and hierarchy shared by every scene object.
// Embed it and call Init with the outer value so traversal hands back the
// concrete type.
//
// The graph is not safe for concurrent mutation; change it from the render
// goroutine or between frames.
type Node struct {
	Name     string
	Position math3d.Vec3
	Rotation math3d.Quat
	Scale    math3d.Vec3
	Visible  bool
	UserData map[string]any

	self     Object
	parent   *Node
	children []Object
}

// Init resets n to the identity transform and records self as the object
// that owns it.
func (n *Node) Init(self Object) {
	n.Position = math3d.Zero3()
	n.Rotation = math3d.IdentityQuat()
	n.Scale = math3d.V3(1, 1, 1)
	n.Visible = true
	n.self = self
}

func (n *Node) Object3D() *Node { return n }

// Self returns the object that embeds n.
func (n *Node) Self() Object {
	if n.self == nil {
		return n
	}
	return n.self
}

// Add appends objs to n's children. An object attached to a different parent
// is detached from it first. Adding an object n already holds appends it
// again.
func (n *Node) Add(objs ...Object) {
	for _, obj := range objs {
		c := obj.Object3D()
		if c == n {
			continue
		}
		if c.parent != nil && c.parent != n {
			c.parent.Remove(obj)
		}
		c.parent = n
		n.children = append(n.children, obj)
	}
}

// Remove drops the first occurrence of obj and reports whether it was found.
func (n *Node) Remove(obj Object) bool {
	c := obj.Object3D()
	for i, child := range n.children {
		if child.Object3D() != c {
			continue
		}
		n.children = append(n.children[:i], n.children[i+1:]...)
		if !n.holds(c) {
			c.parent = nil
		}
		return true
	}
	return false
}

func (n *Node) holds(c *Node) bool {
	for _, child := range n.children {
		if child.Object3D() == c {
			return true
		}
	}
	return false
}

// Clear detaches every child.
func (n *Node) Clear() {
	for _, child := range n.children {
		child.Object3D().parent = nil
	}
	n.children = nil
}

// Children returns a copy of the child list.
func (n *Node) Children() []Object {
	return append([]Object(nil), n.children...)
}

// Parent returns the parent node, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// SetRotationFromEuler sets the rotation from XYZ Euler angles in radians.
func (n *Node) SetRotationFromEuler(x, y, z float64) {
	n.Rotation = math3d.QuatFromEuler(x, y, z)
}

// LocalMatrix returns translation × rotation × scale.
func (n *Node) LocalMatrix() math3d.Mat4 {
	return math3d.Compose(n.Position, n.Rotation, n.Scale)
}

// WorldMatrix returns the transform from n's local space to world space.
func (n *Node) WorldMatrix() math3d.Mat4 {
	m := n.LocalMatrix()
	for p := n.parent; p != nil; p = p.parent {
		m = p.LocalMatrix().Mul(m)
	}
	return m
}

// WorldPosition returns n's origin in world space.
func (n *Node) WorldPosition() math3d.Vec3 {
	return n.WorldMatrix().Translation()
}

// Traverse calls fn for n's owner and then every descendant, depth first.
// Returning false from fn skips that object's subtree.
func (n *Node) Traverse(fn func(Object) bool) {
	if !fn(n.Self()) {
		return
	}
	for _, child := range n.children {
		child.Object3D().Traverse(fn)
	}
}

// TraverseVisible is Traverse restricted to visible subtrees.
func (n *Node) TraverseVisible(fn func(Object)) {
	n.Traverse(func(o Object) bool {
		if !o.Object3D().Visible {
			return false
		}
		fn(o)
		return true
	})
}

// Group is an empty node used to move several objects together.
type Group struct {
	Node
}

// NewGroup creates an empty group.
func NewGroup() *Group {
	g := &Group{}
	g.Init(g)
	return g
}
