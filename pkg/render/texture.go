package render

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	"github.com/anthonynsimon/bild/transform"
	"github.com/taigrr/diorama/pkg/math3d"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// MaxTextureSize caps the longest side of decoded textures. A terminal shows
// a few hundred pixels across, so larger images only cost memory.
const MaxTextureSize = 512

// WrapMode determines how texture coordinates outside [0,1] are handled.
type WrapMode int

const (
	WrapRepeat WrapMode = iota
	WrapClamp
)

// FilterMode selects nearest or bilinear sampling.
type FilterMode int

const (
	FilterNearest FilterMode = iota
	FilterBilinear
)

// Texture holds a 2D image for texture mapping.
type Texture struct {
	Width      int
	Height     int
	Pixels     []Color // row-major
	WrapU      WrapMode
	WrapV      WrapMode
	FilterMode FilterMode
}

// NewTexture creates an empty texture with the given dimensions.
func NewTexture(width, height int) *Texture {
	return &Texture{
		Width:  width,
		Height: height,
		Pixels: make([]Color, width*height),
	}
}

// DecodeTexture reads a PNG, JPEG, GIF, BMP or WebP image.
func DecodeTexture(r io.Reader) (*Texture, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode texture: %w", err)
	}
	return TextureFromImage(img), nil
}

// TextureFromImage copies img into a texture, downscaling it so neither side
// exceeds MaxTextureSize.
func TextureFromImage(img image.Image) *Texture {
	b := img.Bounds()
	if w, h := b.Dx(), b.Dy(); w > MaxTextureSize || h > MaxTextureSize {
		scale := float64(MaxTextureSize) / float64(max(w, h))
		img = transform.Resize(img, max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale)), transform.Linear)
		b = img.Bounds()
	}

	tex := NewTexture(b.Dx(), b.Dy())
	for y := range tex.Height {
		for x := range tex.Width {
			r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			tex.Pixels[y*tex.Width+x] = Color{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8), A: uint8(a >> 8)}
		}
	}
	return tex
}

// NewCheckerTexture creates a procedural checkerboard texture.
func NewCheckerTexture(width, height, checkSize int, c1, c2 Color) *Texture {
	tex := NewTexture(width, height)
	for y := range height {
		for x := range width {
			if (x/checkSize+y/checkSize)%2 == 0 {
				tex.SetPixel(x, y, c1)
			} else {
				tex.SetPixel(x, y, c2)
			}
		}
	}
	return tex
}

func (t *Texture) SetPixel(x, y int, c Color) {
	if x < 0 || x >= t.Width || y < 0 || y >= t.Height {
		return
	}
	t.Pixels[y*t.Width+x] = c
}

func (t *Texture) GetPixel(x, y int) Color {
	if x < 0 || x >= t.Width || y < 0 || y >= t.Height {
		return Color{}
	}
	return t.Pixels[y*t.Width+x]
}

// Sample samples the texture at UV coordinates. V runs bottom to top.
func (t *Texture) Sample(u, v float64) Color {
	if t.Width == 0 || t.Height == 0 {
		return ColorWhite
	}
	u = wrapCoord(u, t.WrapU)
	v = 1 - wrapCoord(v, t.WrapV)

	if t.FilterMode == FilterBilinear {
		return t.sampleBilinear(u, v)
	}
	x := min(int(u*float64(t.Width)), t.Width-1)
	y := min(int(v*float64(t.Height)), t.Height-1)
	return t.GetPixel(x, y)
}

func wrapCoord(coord float64, mode WrapMode) float64 {
	if mode == WrapClamp {
		return math.Max(0, math.Min(1, coord))
	}
	return coord - math.Floor(coord)
}

func (t *Texture) sampleBilinear(u, v float64) Color {
	fx := u*float64(t.Width) - 0.5
	fy := v*float64(t.Height) - 0.5
	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	tx, ty := fx-float64(x0), fy-float64(y0)

	px := func(x, y int) Color {
		return t.GetPixel(wrapPixel(x, t.Width, t.WrapU), wrapPixel(y, t.Height, t.WrapV))
	}
	top := lerpColor(px(x0, y0), px(x0+1, y0), tx)
	bot := lerpColor(px(x0, y0+1), px(x0+1, y0+1), tx)
	return lerpColor(top, bot, ty)
}

func wrapPixel(x, size int, mode WrapMode) int {
	if mode == WrapClamp {
		return max(0, min(size-1, x))
	}
	x %= size
	if x < 0 {
		x += size
	}
	return x
}

// Cube face order: +X, -X, +Y, -Y, +Z, -Z.
const (
	CubePosX = iota
	CubeNegX
	CubePosY
	CubeNegY
	CubePosZ
	CubeNegZ
)

// CubeTexture is a six-face environment used as a skybox background.
type CubeTexture struct {
	Faces [6]*Texture
}

// Sample returns the texel seen along dir.
func (c *CubeTexture) Sample(dir math3d.Vec3) Color {
	ax, ay, az := math.Abs(dir.X), math.Abs(dir.Y), math.Abs(dir.Z)
	var face int
	var sc, tc, ma float64
	switch {
	case ax >= ay && ax >= az:
		ma = ax
		if dir.X > 0 {
			face, sc, tc = CubePosX, -dir.Z, -dir.Y
		} else {
			face, sc, tc = CubeNegX, dir.Z, -dir.Y
		}
	case ay >= az:
		ma = ay
		if dir.Y > 0 {
			face, sc, tc = CubePosY, dir.X, dir.Z
		} else {
			face, sc, tc = CubeNegY, dir.X, -dir.Z
		}
	default:
		ma = az
		if dir.Z > 0 {
			face, sc, tc = CubePosZ, dir.X, -dir.Y
		} else {
			face, sc, tc = CubeNegZ, -dir.X, -dir.Y
		}
	}
	tex := c.Faces[face]
	if tex == nil || ma == 0 {
		return ColorBlack
	}
	s := (sc/ma + 1) / 2
	t := (tc/ma + 1) / 2
	// t grows downward in image space; Sample expects V upward.
	return tex.Sample(s, 1-t)
}

// EquirectTexture wraps a 2:1 latitude/longitude panorama around the scene.
type EquirectTexture struct {
	Texture *Texture
}

func (e *EquirectTexture) Sample(dir math3d.Vec3) Color {
	if e.Texture == nil {
		return ColorBlack
	}
	d := dir.Normalize()
	u := math.Atan2(d.Z, d.X)/(2*math.Pi) + 0.5
	v := math.Asin(math.Max(-1, math.Min(1, d.Y)))/math.Pi + 0.5
	return e.Texture.Sample(u, v)
}
