package surface

import (
	"image"

	uv "github.com/charmbracelet/ultraviolet"
)

// Position selects how an element is laid out inside its parent.
type Position int

const (
	// Static elements stack top to bottom in their parent.
	Static Position = iota
	// Absolute elements sit at (Left, Top) of their parent, out of flow, and
	// paint above static siblings.
	Absolute
)

// Style is the subset of CSS layout diorama uses.
type Style struct {
	Position Position
	Top      int
	Left     int
}

// Element is a box in the element tree. Sizes and offsets are in pixels;
// a terminal cell covers one pixel horizontally and two vertically.
//
// The tree is not safe for concurrent mutation; change it from the goroutine
// driving the window.
type Element struct {
	EventTarget

	Tag   string
	Style Style

	content  uv.Drawable
	parent   *Element
	children []*Element

	width, height int
	rect          image.Rectangle
}

// NewElement creates a detached element.
func NewElement(tag string) *Element {
	return &Element{Tag: tag}
}

// SetSize sets the element's pixel size. A zero dimension fills the parent.
func (e *Element) SetSize(width, height int) {
	e.width, e.height = width, height
}

// Size returns the configured pixel size.
func (e *Element) Size() (width, height int) {
	return e.width, e.height
}

// SetContent sets what the element paints inside its box.
func (e *Element) SetContent(d uv.Drawable) {
	e.content = d
}

// AppendChild moves c to the end of e's children.
func (e *Element) AppendChild(c *Element) {
	if c.parent != nil {
		c.parent.RemoveChild(c)
	}
	c.parent = e
	e.children = append(e.children, c)
}

// RemoveChild detaches c from e. It reports whether c was a child.
func (e *Element) RemoveChild(c *Element) bool {
	for i, child := range e.children {
		if child == c {
			e.children = append(e.children[:i], e.children[i+1:]...)
			c.parent = nil
			return true
		}
	}
	return false
}

// Remove detaches e from its parent, if any.
func (e *Element) Remove() {
	if e.parent != nil {
		e.parent.RemoveChild(e)
	}
}

// Parent returns the parent element or nil.
func (e *Element) Parent() *Element { return e.parent }

// Children returns a copy of the child list.
func (e *Element) Children() []*Element {
	return append([]*Element(nil), e.children...)
}

// Rect returns the pixel rectangle computed by the last layout.
func (e *Element) Rect() image.Rectangle { return e.rect }

// Layout positions e and its subtree with e's top-left corner at origin.
// parentW and parentH fill in unset dimensions.
func (e *Element) Layout(origin image.Point, parentW, parentH int) {
	w, h := e.width, e.height
	if w == 0 {
		w = parentW
	}
	if h == 0 {
		h = parentH
	}
	e.rect = image.Rectangle{Min: origin, Max: origin.Add(image.Pt(w, h))}

	flowY := origin.Y
	for _, c := range e.children {
		if c.Style.Position == Absolute {
			c.Layout(origin.Add(image.Pt(c.Style.Left, c.Style.Top)), w, h)
			continue
		}
		c.Layout(image.Pt(origin.X, flowY), w, h)
		flowY = c.rect.Max.Y
	}
}

// Draw lays out the tree inside area and paints it. It implements
// [uv.Drawable], so a body element can be handed straight to a screen.
func (e *Element) Draw(scr uv.Screen, area uv.Rectangle) {
	e.Layout(image.Pt(area.Min.X, area.Min.Y*2), area.Dx(), area.Dy()*2)
	e.paint(scr)
}

func (e *Element) paint(scr uv.Screen) {
	if e.content != nil {
		e.content.Draw(scr, cellRect(e.rect))
	}
	for _, c := range e.children {
		if c.Style.Position == Static {
			c.paint(scr)
		}
	}
	for _, c := range e.children {
		if c.Style.Position == Absolute {
			c.paint(scr)
		}
	}
}

// HitTest returns the topmost element of the subtree containing the pixel
// point, or nil.
func (e *Element) HitTest(x, y float64) *Element {
	pt := image.Pt(int(x), int(y))
	if !pt.In(e.rect) {
		return nil
	}
	for i := len(e.children) - 1; i >= 0; i-- {
		if c := e.children[i]; c.Style.Position == Absolute {
			if hit := c.HitTest(x, y); hit != nil {
				return hit
			}
		}
	}
	for i := len(e.children) - 1; i >= 0; i-- {
		if c := e.children[i]; c.Style.Position == Static {
			if hit := c.HitTest(x, y); hit != nil {
				return hit
			}
		}
	}
	return e
}

// Dispatch delivers ev to e and then to each ancestor.
func (e *Element) Dispatch(ev Event) {
	for n := e; n != nil; n = n.parent {
		n.DispatchEvent(ev)
	}
}

// cellRect converts a pixel rectangle to the terminal cells covering it.
func cellRect(r image.Rectangle) uv.Rectangle {
	return image.Rect(r.Min.X, r.Min.Y/2, r.Max.X, (r.Max.Y+1)/2)
}

// PixelToCell converts a pixel row to the terminal row displaying it.
func PixelToCell(x, y int) (col, row int) {
	return x, y / 2
}

// CellCenter returns the client coordinates of the middle of a cell.
func CellCenter(col, row int) (x, y float64) {
	return float64(col) + 0.5, float64(row*2) + 1
}
