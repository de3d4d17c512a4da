package surface

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by NextFrame once a window has been closed.
var ErrClosed = errors.New("surface: window closed")

// Window is the top-level host a scene renders into.
type Window interface {
	// InnerSize returns the drawable area in pixels.
	InnerSize() (width, height int)
	DevicePixelRatio() float64
	Body() *Element
	AddEventListener(typ EventType, fn Listener) ListenerID
	RemoveEventListener(id ListenerID) bool
	// NextFrame presents the current element tree, waits for the next
	// display refresh and dispatches queued input on the calling goroutine.
	NextFrame(ctx context.Context) error
}

// windowBase holds the state shared by every window implementation: size,
// body element, window-level listeners and the pending input queue.
type windowBase struct {
	EventTarget

	qmu    sync.Mutex
	width  int
	height int
	ratio  float64
	queue  []Event
	body   *Element
	hover  *Element
	onSize func(width, height int)
}

func (w *windowBase) init(width, height int, ratio float64) {
	w.width, w.height, w.ratio = width, height, ratio
	w.body = NewElement("body")
	w.body.SetSize(width, height)
}

func (w *windowBase) InnerSize() (width, height int) {
	w.qmu.Lock()
	defer w.qmu.Unlock()
	return w.width, w.height
}

func (w *windowBase) DevicePixelRatio() float64 {
	return w.ratio
}

func (w *windowBase) Body() *Element {
	return w.body
}

func (w *windowBase) enqueue(ev Event) {
	w.qmu.Lock()
	w.queue = append(w.queue, ev)
	w.qmu.Unlock()
}

// flush routes every queued event. It must run on the frame goroutine.
func (w *windowBase) flush() {
	w.qmu.Lock()
	pending := w.queue
	w.queue = nil
	w.qmu.Unlock()

	for _, ev := range pending {
		w.route(ev)
	}
}

func (w *windowBase) route(ev Event) {
	switch ev := ev.(type) {
	case ResizeEvent:
		w.qmu.Lock()
		w.width, w.height = ev.Width, ev.Height
		w.qmu.Unlock()
		w.body.SetSize(ev.Width, ev.Height)
		if w.onSize != nil {
			w.onSize(ev.Width, ev.Height)
		}
		w.DispatchEvent(ev)
	case PointerEvent:
		target := w.hover
		if ev.Kind != PointerLeave {
			target = w.target(ev.ClientX, ev.ClientY)
			if w.hover != nil && w.hover != target {
				w.hover.Dispatch(PointerEvent{Kind: PointerLeave, ClientX: ev.ClientX, ClientY: ev.ClientY})
			}
			w.hover = target
		} else {
			w.hover = nil
		}
		if target != nil {
			target.Dispatch(ev)
		}
		w.DispatchEvent(ev)
	case WheelEvent:
		w.target(ev.ClientX, ev.ClientY).Dispatch(ev)
		w.DispatchEvent(ev)
	default:
		w.body.Dispatch(ev)
		w.DispatchEvent(ev)
	}
}

// target lays the tree out at the current size and hit-tests it.
func (w *windowBase) target(x, y float64) *Element {
	width, height := w.InnerSize()
	w.body.Layout(w.body.rect.Min, width, height)
	if hit := w.body.HitTest(x, y); hit != nil {
		return hit
	}
	return w.body
}
