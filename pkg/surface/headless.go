package surface

import (
	"context"
	"sync"
	"time"

	uv "github.com/charmbracelet/ultraviolet"
)

// Headless is an offscreen window. It presents into an in-memory cell buffer
// and takes input through Send, which makes it the host for tests, snapshots
// and batch rendering.
type Headless struct {
	windowBase

	mu       sync.Mutex
	interval time.Duration
	limit    int
	frames   int
	closed   bool
	screen   *uv.Buffer
}

// HeadlessOption configures a Headless window.
type HeadlessOption func(*Headless)

// WithFrameLimit closes the window after n presented frames.
func WithFrameLimit(n int) HeadlessOption {
	return func(h *Headless) { h.limit = n }
}

// WithFrameInterval paces NextFrame to one frame per d.
func WithFrameInterval(d time.Duration) HeadlessOption {
	return func(h *Headless) { h.interval = d }
}

// WithPixelRatio sets the reported device pixel ratio.
func WithPixelRatio(r float64) HeadlessOption {
	return func(h *Headless) { h.ratio = r }
}

// NewHeadless creates an offscreen window of the given pixel size.
func NewHeadless(width, height int, opts ...HeadlessOption) *Headless {
	h := &Headless{}
	h.init(width, height, 1)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Send queues an input event for dispatch at the next frame.
func (h *Headless) Send(ev Event) {
	h.enqueue(ev)
}

// Resize queues a resize to the given pixel size.
func (h *Headless) Resize(width, height int) {
	h.enqueue(ResizeEvent{Width: width, Height: height})
}

// Close makes the next NextFrame call return ErrClosed.
func (h *Headless) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

// Frames returns how many frames have been presented.
func (h *Headless) Frames() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames
}

// Screen returns the cells of the last presented frame, or nil before the
// first one.
func (h *Headless) Screen() *uv.Buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.screen
}

// Present paints the element tree into the screen buffer without advancing
// the frame counter.
func (h *Headless) Present() {
	width, height := h.InnerSize()
	scr := uv.NewScreenBuffer(width, (height+1)/2)
	h.body.Draw(scr, scr.Bounds())
	h.mu.Lock()
	h.screen = scr.Buffer
	h.mu.Unlock()
}

func (h *Headless) NextFrame(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrClosed
	}

	h.Present()

	if h.interval > 0 {
		timer := time.NewTimer(h.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	h.flush()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames++
	if h.limit > 0 && h.frames >= h.limit {
		h.closed = true
		return ErrClosed
	}
	return nil
}
