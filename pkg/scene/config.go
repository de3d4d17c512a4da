package scene

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jinzhu/copier"
	"github.com/taigrr/diorama/pkg/math3d"
	"github.com/taigrr/diorama/pkg/render"
	"gopkg.in/yaml.v3"
)

// Config drives a Manager's one-time setup. The zero value is valid: every
// field falls back to a default. Pointer fields distinguish "unset" from an
// explicit false or zero.
type Config struct {
	RendererOps        RendererOptions `yaml:"rendererOps"`
	DefCameraOps       CameraOptions   `yaml:"defCameraOps"`
	DefAmbientLightOps LightOptions    `yaml:"defAmbientLightOps"`
	DefRaycasterOps    RaycasterOps    `yaml:"defRaycasterOps"`

	OrbitControls bool `yaml:"orbitControls"`
	AmbientLight  bool `yaml:"ambientLight"`
	// OnDemand renders only after Invalidate, a controls change, a running
	// tween or a resize.
	OnDemand  bool `yaml:"onDemand"`
	Overlay2D bool `yaml:"overlay2D"`
	// Overlay3D hides labels behind scene geometry. It wins over Overlay2D.
	Overlay3D bool `yaml:"overlay3D"`
	Cutout    bool `yaml:"cutout"`

	Background Background `yaml:"background"`

	// FPS is the rate control springs are tuned for. Zero means 60.
	FPS int `yaml:"fps"`
}

// RendererOptions configure the main renderer.
type RendererOptions struct {
	Antialias              *bool               `yaml:"antialias"`
	LogarithmicDepthBuffer *bool               `yaml:"logarithmicDepthBuffer"`
	Alpha                  *bool               `yaml:"alpha"`
	ShadowMap              *bool               `yaml:"shadowMap"`
	ToneMapping            *render.ToneMapping `yaml:"toneMapping"`
	ToneMappingExposure    *float64            `yaml:"toneMappingExposure"`
	// Size fixes the renderer size in pixels instead of following the window.
	Size *Size `yaml:"size"`
}

type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// CameraOptions configure the default camera. Zero numbers mean default.
type CameraOptions struct {
	Position *math3d.Vec3 `yaml:"position"`
	FOV      float64      `yaml:"fov"`
	Aspect   float64      `yaml:"aspect"`
	Near     float64      `yaml:"near"`
	Far      float64      `yaml:"far"`
}

// LightOptions configure the default ambient light.
type LightOptions struct {
	Position  *math3d.Vec3 `yaml:"position"`
	Color     *Color       `yaml:"color"`
	Intensity float64      `yaml:"intensity"`
}

type RaycasterOps struct {
	// Recursive also tests the descendants of pickable objects.
	Recursive *bool `yaml:"recursive"`
}

// Background selects a cube map, a panorama or a solid color. Images and
// Panorama load in the background.
type Background struct {
	// Images are the six cube faces in +X, -X, +Y, -Y, +Z, -Z order.
	Images   []string `yaml:"images"`
	Color    *Color   `yaml:"color"`
	Panorama string   `yaml:"panorama"`
}

// Color is a render color that reads from text such as "#ccc" or "white".
type Color render.Color

func (c Color) MarshalText() ([]byte, error) {
	return fmt.Appendf(nil, "#%02x%02x%02x", c.R, c.G, c.B), nil
}

func (c *Color) UnmarshalText(b []byte) error {
	parsed, err := render.ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = Color(parsed)
	return nil
}

func (c Color) Value() render.Color { return render.Color(c) }

// Bool returns a pointer to v, for the tri-state fields.
func Bool(v bool) *bool { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Validate checks the parts of a config that cannot be defaulted.
func (c *Config) Validate() error {
	if n := len(c.Background.Images); n != 0 && n != 6 {
		return fmt.Errorf("background.images: want 6 cube faces, got %d", n)
	}
	if s := c.RendererOps.Size; s != nil && (s.Width <= 0 || s.Height <= 0) {
		return fmt.Errorf("rendererOps.size: %dx%d is not a valid size", s.Width, s.Height)
	}
	if c.FPS < 0 {
		return errors.New("fps must not be negative")
	}
	return nil
}

// ParseConfig decodes YAML. Unknown keys are an error.
func ParseConfig(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(bytes.NewReader(data))
}

// clone deep-copies cfg so later changes by the caller do not leak in.
func (c Config) clone() (Config, error) {
	var out Config
	if err := copier.CopyWithOption(&out, &c, copier.Option{DeepCopy: true}); err != nil {
		return Config{}, fmt.Errorf("copy config: %w", err)
	}
	return out, nil
}

// resolve fills renderer defaults: antialias, logarithmic depth and shadow
// maps on, alpha off, ACES filmic tone mapping at exposure 0.3.
func (o RendererOptions) resolve() render.Options {
	opts := render.Options{
		Antialias:              orDefault(o.Antialias, true),
		LogarithmicDepthBuffer: orDefault(o.LogarithmicDepthBuffer, true),
		Alpha:                  orDefault(o.Alpha, false),
		ShadowMap:              orDefault(o.ShadowMap, true),
		ToneMapping:            orDefault(o.ToneMapping, render.ACESFilmicToneMapping),
		Exposure:               orDefault(o.ToneMappingExposure, 0.3),
	}
	return opts
}

func orDefault[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func orNonZero(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
