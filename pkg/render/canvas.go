package render

import (
	"image/color"

	uv "github.com/charmbracelet/ultraviolet"
)

// Draw paints the framebuffer into area as upper-half-block cells: the
// foreground is the top pixel and the background the one below it. A
// framebuffer of a different size is sampled to fit area × 2 rows.
func (fb *Framebuffer) Draw(scr uv.Screen, area uv.Rectangle) {
	cols, rows := area.Dx(), area.Dy()
	if cols <= 0 || rows <= 0 || fb.Width == 0 || fb.Height == 0 {
		return
	}
	pxH := rows * 2

	for row := range rows {
		topY := row * 2 * fb.Height / pxH
		botY := (row*2 + 1) * fb.Height / pxH
		for col := range cols {
			x := col * fb.Width / cols
			scr.SetCell(area.Min.X+col, area.Min.Y+row, &uv.Cell{
				Content: "▀",
				Width:   1,
				Style: uv.Style{
					Fg: cellColor(fb.GetPixel(x, topY)),
					Bg: cellColor(fb.GetPixel(x, botY)),
				},
			})
		}
	}
}

// cellColor leaves fully transparent pixels unset so the terminal's own
// background shows through.
func cellColor(c color.RGBA) color.Color {
	if c.A == 0 {
		return nil
	}
	return c
}
