package surface

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/charmbracelet/harmonica"
	uv "github.com/charmbracelet/ultraviolet"
)

const (
	mouseOn  = "\x1b[?1003h\x1b[?1006h" // any-event tracking, SGR coordinates
	mouseOff = "\x1b[?1003l\x1b[?1006l"

	wheelStep = 100.0
)

// Terminal is a window backed by the controlling terminal. Each cell shows two
// vertically stacked pixels, so the inner size is columns × rows*2.
type Terminal struct {
	windowBase

	term     *uv.Terminal
	logger   *slog.Logger
	interval time.Duration
	last     time.Time
	done     chan struct{}
	once     sync.Once
	pressed  Button
}

// NewTerminal takes over the terminal: alternate screen, hidden cursor and
// mouse tracking. Frames are paced to fps. Call Close to restore it.
func NewTerminal(fps int, logger *slog.Logger) (*Terminal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if fps <= 0 {
		fps = 60
	}

	term := uv.DefaultTerminal()
	cols, rows, err := term.GetSize()
	if err != nil {
		return nil, fmt.Errorf("get terminal size: %w", err)
	}
	if err := term.Start(); err != nil {
		return nil, fmt.Errorf("start terminal: %w", err)
	}
	term.EnterAltScreen()
	term.HideCursor()
	if err := term.Resize(cols, rows); err != nil {
		return nil, fmt.Errorf("resize terminal: %w", err)
	}
	_, _ = term.WriteString(mouseOn)

	t := &Terminal{
		term:     term,
		logger:   logger,
		interval: time.Duration(harmonica.FPS(fps) * float64(time.Second)),
		done:     make(chan struct{}),
	}
	t.init(cols, rows*2, 1)
	t.onSize = func(width, height int) {
		cols, rows := width, height/2
		t.term.Erase()
		if err := t.term.Resize(cols, rows); err != nil {
			t.logger.Debug("resize terminal", "err", err)
		}
	}
	go t.readEvents()
	return t, nil
}

func (t *Terminal) readEvents() {
	for {
		select {
		case <-t.done:
			return
		case ev, ok := <-t.term.Events():
			if !ok {
				return
			}
			if tev := t.translate(ev); tev != nil {
				t.enqueue(tev)
			}
		}
	}
}

// translate maps terminal input to window events. Cell positions become the
// client coordinates of the cell centre.
func (t *Terminal) translate(ev uv.Event) Event {
	switch ev := ev.(type) {
	case uv.WindowSizeEvent:
		return ResizeEvent{Width: ev.Width, Height: ev.Height * 2}
	case uv.MouseClickEvent:
		t.pressed = buttonOf(ev.Button)
		return pointer(PointerDown, uv.Mouse(ev), t.pressed)
	case uv.MouseReleaseEvent:
		return pointer(PointerUp, uv.Mouse(ev), t.pressed)
	case uv.MouseMotionEvent:
		return pointer(PointerMove, uv.Mouse(ev), t.pressed)
	case uv.MouseWheelEvent:
		x, y := CellCenter(ev.X, ev.Y)
		delta := wheelStep
		if ev.Button == uv.MouseWheelUp {
			delta = -wheelStep
		}
		return WheelEvent{ClientX: x, ClientY: y, DeltaY: delta}
	case uv.BlurEvent:
		return PointerEvent{Kind: PointerLeave}
	case uv.KeyPressEvent:
		return KeyboardEvent{Key: ev.String()}
	}
	return nil
}

func pointer(kind EventType, m uv.Mouse, b Button) PointerEvent {
	x, y := CellCenter(m.X, m.Y)
	return PointerEvent{
		Kind:    kind,
		ClientX: x,
		ClientY: y,
		Button:  b,
		Shift:   m.Mod.Contains(uv.ModShift),
		Ctrl:    m.Mod.Contains(uv.ModCtrl),
		Alt:     m.Mod.Contains(uv.ModAlt),
	}
}

func buttonOf(b uv.MouseButton) Button {
	switch b {
	case uv.MouseMiddle:
		return ButtonMiddle
	case uv.MouseRight:
		return ButtonRight
	default:
		return ButtonLeft
	}
}

// NextFrame draws the element tree to the terminal, sleeps until the next
// frame slot and dispatches the input that arrived meanwhile.
func (t *Terminal) NextFrame(ctx context.Context) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	t.term.Draw(uv.DrawableFunc(t.body.Draw))
	if err := t.term.Display(); err != nil {
		return fmt.Errorf("display: %w", err)
	}

	if wait := time.Until(t.last.Add(t.interval)); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-t.done:
			timer.Stop()
			return ErrClosed
		case <-timer.C:
		}
	}
	t.last = time.Now()

	t.flush()
	return nil
}

// Close restores the terminal. It is safe to call more than once.
func (t *Terminal) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		_, _ = t.term.WriteString(mouseOff)
		t.term.ExitAltScreen()
		t.term.ShowCursor()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err = t.term.Shutdown(ctx)
	})
	return err
}
