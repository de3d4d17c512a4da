package surface

import (
	"context"
	"errors"
	"image"
	"testing"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTargetAddRemove(t *testing.T) {
	var target EventTarget
	var got []string

	a := target.AddEventListener(PointerDown, func(Event) { got = append(got, "a") })
	target.AddEventListener(PointerDown, func(Event) { got = append(got, "b") })
	target.AddEventListener(PointerUp, func(Event) { got = append(got, "up") })

	target.DispatchEvent(PointerEvent{Kind: PointerDown})
	assert.Equal(t, []string{"a", "b"}, got)

	assert.True(t, target.RemoveEventListener(a))
	assert.False(t, target.RemoveEventListener(a), "second removal is a no-op")
	assert.Equal(t, 1, target.ListenerCount(PointerDown))

	got = nil
	target.DispatchEvent(PointerEvent{Kind: PointerDown})
	assert.Equal(t, []string{"b"}, got)
}

func TestEventTargetRemoveDuringDispatch(t *testing.T) {
	var target EventTarget
	calls := 0
	var id ListenerID
	id = target.AddEventListener(KeyDown, func(Event) {
		calls++
		target.RemoveEventListener(id)
	})

	target.DispatchEvent(KeyboardEvent{Key: "q"})
	target.DispatchEvent(KeyboardEvent{Key: "q"})
	assert.Equal(t, 1, calls)
}

func TestLayoutAndHitTest(t *testing.T) {
	body := NewElement("body")
	body.SetSize(100, 60)

	container := NewElement("div")
	body.AppendChild(container)

	overlay := NewElement("overlay")
	overlay.Style = Style{Position: Absolute, Top: 0}
	canvas := NewElement("canvas")
	canvas.SetSize(100, 60)
	container.AppendChild(overlay)
	container.AppendChild(canvas)

	body.Layout(image.Point{}, 100, 60)

	assert.Equal(t, 0, canvas.Rect().Min.Y, "absolute siblings take no flow space")
	assert.Same(t, overlay, body.HitTest(10, 10), "positioned elements sit above static ones")

	overlay.Remove()
	body.Layout(image.Point{}, 100, 60)
	assert.Same(t, canvas, body.HitTest(10, 10))
	assert.Nil(t, body.HitTest(150, 10))
}

func TestDispatchBubbles(t *testing.T) {
	body := NewElement("body")
	child := NewElement("div")
	body.AppendChild(child)

	var order []string
	child.AddEventListener(PointerMove, func(Event) { order = append(order, "child") })
	body.AddEventListener(PointerMove, func(Event) { order = append(order, "body") })

	child.Dispatch(PointerEvent{Kind: PointerMove})
	assert.Equal(t, []string{"child", "body"}, order)
}

func TestAppendChildReparents(t *testing.T) {
	a, b, c := NewElement("a"), NewElement("b"), NewElement("c")
	a.AppendChild(c)
	b.AppendChild(c)

	assert.Empty(t, a.Children())
	assert.Equal(t, []*Element{c}, b.Children())
	assert.Same(t, b, c.Parent())
}

func TestHeadlessFrameLimit(t *testing.T) {
	h := NewHeadless(20, 10, WithFrameLimit(3))
	ctx := context.Background()

	require.NoError(t, h.NextFrame(ctx))
	require.NoError(t, h.NextFrame(ctx))
	err := h.NextFrame(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 3, h.Frames())
	assert.ErrorIs(t, h.NextFrame(ctx), ErrClosed)
}

func TestHeadlessCanceled(t *testing.T) {
	h := NewHeadless(20, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.NextFrame(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, h.Frames())
}

func TestHeadlessRoutesInputOnFrame(t *testing.T) {
	h := NewHeadless(40, 20)
	canvas := NewElement("canvas")
	h.Body().AppendChild(canvas)

	var downs []PointerEvent
	canvas.AddEventListener(PointerDown, func(ev Event) { downs = append(downs, ev.(PointerEvent)) })
	var sizes []ResizeEvent
	h.AddEventListener(Resize, func(ev Event) { sizes = append(sizes, ev.(ResizeEvent)) })

	h.Send(PointerEvent{Kind: PointerDown, ClientX: 5, ClientY: 6})
	h.Resize(80, 40)
	assert.Empty(t, downs, "input waits for the next frame")

	require.NoError(t, h.NextFrame(context.Background()))
	require.Len(t, downs, 1)
	assert.Equal(t, 5.0, downs[0].ClientX)
	assert.Equal(t, []ResizeEvent{{Width: 80, Height: 40}}, sizes)

	w, hgt := h.InnerSize()
	assert.Equal(t, 80, w)
	assert.Equal(t, 40, hgt)
}

func TestHeadlessPresentsContent(t *testing.T) {
	h := NewHeadless(10, 4)
	el := NewElement("text")
	el.SetContent(uv.NewStyledString("hi"))
	h.Body().AppendChild(el)

	h.Present()
	scr := h.Screen()
	require.NotNil(t, scr)
	assert.Equal(t, "h", scr.CellAt(0, 0).Content)
	assert.Equal(t, "i", scr.CellAt(1, 0).Content)
}

func TestCellCenter(t *testing.T) {
	x, y := CellCenter(3, 2)
	assert.Equal(t, 3.5, x)
	assert.Equal(t, 5.0, y)

	col, row := PixelToCell(int(x), int(y))
	assert.Equal(t, 3, col)
	assert.Equal(t, 2, row)
}
