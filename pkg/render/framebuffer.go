package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
)

// Framebuffer is an RGBA pixel grid. On a terminal each cell shows two
// vertically stacked pixels, so a framebuffer twice as tall as the cell area
// fills it.
type Framebuffer struct {
	Width  int
	Height int
	img    *image.RGBA
}

// NewFramebuffer creates a transparent framebuffer.
func NewFramebuffer(width, height int) *Framebuffer {
	width, height = max(width, 0), max(height, 0)
	return &Framebuffer{
		Width:  width,
		Height: height,
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// Clear fills the whole framebuffer.
func (fb *Framebuffer) Clear(c color.RGBA) {
	fb.Fill(fb.img.Rect, c)
}

// Fill paints r, clipped to the framebuffer, with c.
func (fb *Framebuffer) Fill(r image.Rectangle, c color.RGBA) {
	r = r.Intersect(fb.img.Rect)
	if r.Empty() {
		return
	}
	// fill the first row, then copy it down
	first := fb.img.PixOffset(r.Min.X, r.Min.Y)
	n := r.Dx() * 4
	row := fb.img.Pix[first : first+n]
	for i := 0; i < n; i += 4 {
		row[i], row[i+1], row[i+2], row[i+3] = c.R, c.G, c.B, c.A
	}
	for y := r.Min.Y + 1; y < r.Max.Y; y++ {
		off := fb.img.PixOffset(r.Min.X, y)
		copy(fb.img.Pix[off:off+n], row)
	}
}

// SetPixel sets (x, y); points outside the buffer are ignored.
func (fb *Framebuffer) SetPixel(x, y int, c color.RGBA) {
	if x < 0 || x >= fb.Width || y < 0 || y >= fb.Height {
		return
	}
	off := fb.img.PixOffset(x, y)
	p := fb.img.Pix[off : off+4 : off+4]
	p[0], p[1], p[2], p[3] = c.R, c.G, c.B, c.A
}

// GetPixel returns (x, y), or transparent black outside the buffer.
func (fb *Framebuffer) GetPixel(x, y int) color.RGBA {
	if x < 0 || x >= fb.Width || y < 0 || y >= fb.Height {
		return color.RGBA{}
	}
	return fb.img.RGBAAt(x, y)
}

// DrawLine draws a 2D line with Bresenham's algorithm.
func (fb *Framebuffer) DrawLine(x0, y0, x1, y1 int, c color.RGBA) {
	bresenham(x0, y0, x1, y1, func(x, y int, _ float64) {
		fb.SetPixel(x, y, c)
	})
}

// bresenham visits every pixel on the line, passing the fraction of the way
// from the first endpoint.
func bresenham(x0, y0, x1, y1 int, plot func(x, y int, t float64)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	steps := max(dx, -dy)
	err := dx + dy
	for i := 0; ; i++ {
		t := 0.0
		if steps > 0 {
			t = float64(i) / float64(steps)
		}
		plot(x0, y0, t)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Image returns the backing image. It aliases the framebuffer.
func (fb *Framebuffer) Image() *image.RGBA {
	return fb.img
}

// ToImage returns a copy of the pixels.
func (fb *Framebuffer) ToImage() *image.RGBA {
	img := image.NewRGBA(fb.img.Rect)
	copy(img.Pix, fb.img.Pix)
	return img
}

// EncodePNG writes the pixels as a PNG.
func (fb *Framebuffer) EncodePNG(w io.Writer) error {
	return png.Encode(w, fb.img)
}

// SavePNG writes the pixels to a PNG file.
func (fb *Framebuffer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := fb.EncodePNG(f); err != nil {
		f.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return f.Close()
}
