// Package overlay draws text labels anchored to scene-graph positions on top
// of a rendered canvas.
package overlay

import (
	"image"
	"sort"
	"strings"

	"charm.land/lipgloss/v2"
	uv "github.com/charmbracelet/ultraviolet"
	"github.com/taigrr/diorama/pkg/math3d"
	"github.com/taigrr/diorama/pkg/render"
	"github.com/taigrr/diorama/pkg/surface"
)

// Mode selects how labels relate to the 3D scene.
type Mode int

const (
	// Mode2D always draws labels in front of the scene.
	Mode2D Mode = iota
	// Mode3D hides labels that scene geometry occludes.
	Mode3D
)

func (m Mode) String() string {
	if m == Mode3D {
		return "3d"
	}
	return "2d"
}

// DefaultStyle is the style new labels start with.
var DefaultStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#f0f0f0")).
	Background(lipgloss.Color("#1e1e28")).
	Padding(0, 1)

// Label is a scene-graph node that shows text at its world position.
type Label struct {
	render.Node

	Text  string
	Style lipgloss.Style
}

// NewLabel creates a label with DefaultStyle.
func NewLabel(text string) *Label {
	l := &Label{Text: text, Style: DefaultStyle}
	l.Init(l)
	return l
}

// DepthSource answers whether a world point is in front of what has been
// drawn. *render.Renderer implements it.
type DepthSource interface {
	Visible(cam *render.Camera, world math3d.Vec3) bool
}

type placed struct {
	label *Label
	text  string
	col   int
	row   int
	depth float64
}

// Renderer lays labels out over an element. Call Render after the main
// renderer has drawn the frame; the element paints the result.
type Renderer struct {
	mode    Mode
	element *surface.Element
	depth   DepthSource

	width  int
	height int
	items  []placed
}

// New creates an overlay renderer and its element.
func New(mode Mode) *Renderer {
	r := &Renderer{mode: mode, element: surface.NewElement("overlay")}
	r.element.SetContent(uv.DrawableFunc(r.draw))
	return r
}

func (r *Renderer) Mode() Mode { return r.mode }

// Element is the overlay's output element.
func (r *Renderer) Element() *surface.Element { return r.element }

// SetSize sets the overlay size in pixels.
func (r *Renderer) SetSize(width, height int) {
	r.width, r.height = max(width, 0), max(height, 0)
	r.element.SetSize(width, height)
}

// Size returns the size set by SetSize.
func (r *Renderer) Size() (width, height int) { return r.width, r.height }

// SetDepthSource sets what Mode3D tests label positions against. Without
// one, Mode3D behaves like Mode2D.
func (r *Renderer) SetDepthSource(src DepthSource) { r.depth = src }

// Render places every visible label in scene as seen by cam.
func (r *Renderer) Render(scene *render.Scene, cam *render.Camera) {
	r.items = r.items[:0]
	if r.width == 0 || r.height == 0 {
		return
	}
	scene.TraverseVisible(func(o render.Object) {
		l, ok := o.(*Label)
		if !ok || l.Text == "" {
			return
		}
		world := l.WorldPosition()
		x, y, z, visible := cam.WorldToScreen(world, r.width, r.height)
		if !visible {
			return
		}
		if r.mode == Mode3D && r.depth != nil && !r.depth.Visible(cam, world) {
			return
		}
		col, row := surface.PixelToCell(int(x), int(y))
		r.items = append(r.items, placed{
			label: l,
			text:  l.Style.Render(l.Text),
			col:   col,
			row:   row,
			depth: z,
		})
	})
	// farthest first so nearer labels paint over them
	sort.SliceStable(r.items, func(i, j int) bool { return r.items[i].depth > r.items[j].depth })
}

// Rendered returns the labels placed by the last Render, farthest first.
func (r *Renderer) Rendered() []*Label {
	out := make([]*Label, len(r.items))
	for i, it := range r.items {
		out[i] = it.label
	}
	return out
}

// draw paints each placed label centered on its anchor cell. Cells no label
// covers are left alone so the canvas underneath shows through.
func (r *Renderer) draw(scr uv.Screen, area uv.Rectangle) {
	for _, it := range r.items {
		w, h := lipgloss.Width(it.text), lipgloss.Height(it.text)
		if w == 0 {
			continue
		}
		x := area.Min.X + it.col - w/2
		y := area.Min.Y + it.row - (h-1)/2
		// keep labels near the edges fully on the overlay
		x = max(area.Min.X, min(x, area.Max.X-w))
		y = max(area.Min.Y, min(y, area.Max.Y-h))
		rect := image.Rect(x, y, x+w, y+h).Intersect(area)
		if rect.Empty() {
			continue
		}
		uv.NewStyledString(strings.TrimRight(it.text, "\n")).Draw(scr, rect)
	}
}
