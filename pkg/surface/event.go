// Package surface is the window and element layer diorama renders into.
//
// It models the small part of a document that a scene needs: a window with a
// size and pixel ratio, a tree of elements that paint into terminal cells, and
// DOM-style event targets for pointer, wheel, keyboard and resize input. Input
// is queued by the window and dispatched on the goroutine that calls
// [Window.NextFrame], so listeners never race the render loop.
package surface

// EventType names an event the way the DOM does.
type EventType string

const (
	PointerDown  EventType = "pointerdown"
	PointerUp    EventType = "pointerup"
	PointerMove  EventType = "pointermove"
	PointerLeave EventType = "pointerleave"
	Wheel        EventType = "wheel"
	Resize       EventType = "resize"
	KeyDown      EventType = "keydown"
)

// Event is anything that can be dispatched to an [EventTarget].
type Event interface {
	Type() EventType
}

// Button identifies a pointer button using DOM numbering.
type Button int

const (
	ButtonLeft Button = iota
	ButtonMiddle
	ButtonRight
)

// PointerEvent reports pointer input in client (window pixel) coordinates.
type PointerEvent struct {
	Kind    EventType
	ClientX float64
	ClientY float64
	Button  Button
	Shift   bool
	Ctrl    bool
	Alt     bool
}

func (e PointerEvent) Type() EventType { return e.Kind }

// WheelEvent reports scrolling. Positive DeltaY scrolls down (zooms out).
type WheelEvent struct {
	ClientX float64
	ClientY float64
	DeltaY  float64
}

func (WheelEvent) Type() EventType { return Wheel }

// ResizeEvent is dispatched on the window after its inner size changed.
type ResizeEvent struct {
	Width  int
	Height int
}

func (ResizeEvent) Type() EventType { return Resize }

// KeyboardEvent reports a key press. Key uses the terminal's keystroke
// spelling ("q", "ctrl+c", "esc").
type KeyboardEvent struct {
	Key string
}

func (KeyboardEvent) Type() EventType { return KeyDown }
