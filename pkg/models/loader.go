package models

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/taigrr/diorama/pkg/fetch"
	"github.com/taigrr/diorama/pkg/render"
)

// ErrUnsupportedFormat is returned for resources no loader understands.
var ErrUnsupportedFormat = errors.New("models: unsupported format")

// LoadError wraps every failure to fetch or parse a model.
type LoadError struct {
	URL string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.URL, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func loadError(url string, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	return &LoadError{URL: url, Err: err}
}

// Progress reports how much of a model has been downloaded.
type Progress = fetch.Progress

// Callbacks are optional hooks around a load. OnLoad may replace the result
// before it is returned; OnError sees the error before it is returned.
type Callbacks[T any] struct {
	OnLoad     func(T) T
	OnProgress func(Progress)
	OnError    func(error)
}

func (cb *Callbacks[T]) progress() func(Progress) {
	if cb == nil {
		return nil
	}
	return cb.OnProgress
}

// settle applies the callbacks to a finished load.
func settle[T any](url string, v T, err error, cb *Callbacks[T]) (T, error) {
	if err != nil {
		err = loadError(url, err)
		if cb != nil && cb.OnError != nil {
			cb.OnError(err)
		}
		var zero T
		return zero, err
	}
	if cb != nil && cb.OnLoad != nil {
		v = cb.OnLoad(v)
	}
	return v, nil
}

// Loader fetches and parses models.
type Loader struct {
	fetcher *fetch.Fetcher
	logger  *slog.Logger

	// SmoothNormals controls how normals missing from a file are filled in.
	SmoothNormals bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithFetcher sets the fetcher models, textures and material libraries are
// read with.
func WithFetcher(f *fetch.Fetcher) Option {
	return func(l *Loader) { l.fetcher = f }
}

// WithLogger sets the logger for skipped side files and background loads.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a loader with smooth normals, the default fetcher and
// the default logger.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		fetcher:       fetch.Default,
		logger:        slog.Default(),
		SmoothNormals: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Fetcher returns the fetcher used for models and their side files.
func (l *Loader) Fetcher() *fetch.Fetcher {
	return l.fetcher
}

func (l *Loader) fillNormals(m *Mesh) {
	if l.SmoothNormals {
		m.CalculateSmoothNormals()
	} else {
		m.CalculateNormals()
	}
}

// LoadGLTF loads a .gltf or .glb file.
func (l *Loader) LoadGLTF(ctx context.Context, url string, cb *Callbacks[*GLTF]) (*GLTF, error) {
	data, err := l.fetcher.Get(ctx, url, cb.progress())
	var g *GLTF
	if err == nil {
		g, err = l.parseGLTF(ctx, data, url)
	}
	return settle(url, g, err, cb)
}

// LoadOBJ loads a Wavefront OBJ file and the material libraries it names.
func (l *Loader) LoadOBJ(ctx context.Context, url string, cb *Callbacks[*render.Group]) (*render.Group, error) {
	data, err := l.fetcher.Get(ctx, url, cb.progress())
	var g *render.Group
	if err == nil {
		g, err = l.ParseOBJ(ctx, bytes.NewReader(data), url)
	}
	return settle(url, g, err, cb)
}

// Load sniffs the resource and dispatches to the matching loader. glTF
// files yield their default scene.
func (l *Loader) Load(ctx context.Context, url string) (render.Object, error) {
	data, err := l.fetcher.Get(ctx, url, nil)
	if err != nil {
		return nil, loadError(url, err)
	}
	switch format := DetectFormat(data, url); format {
	case FormatGLB, FormatGLTF:
		g, err := l.parseGLTF(ctx, data, url)
		if err != nil {
			return nil, loadError(url, err)
		}
		return g.Scene, nil
	case FormatOBJ:
		g, err := l.ParseOBJ(ctx, bytes.NewReader(data), url)
		if err != nil {
			return nil, loadError(url, err)
		}
		return g, nil
	default:
		l.logger.Debug("unrecognized model", "url", url, "ext", path.Ext(url))
		return nil, loadError(url, ErrUnsupportedFormat)
	}
}

// LoadTexture loads an image file as a texture.
func (l *Loader) LoadTexture(ctx context.Context, url string) (*render.Texture, error) {
	data, err := l.fetcher.Get(ctx, url, nil)
	if err != nil {
		return nil, loadError(url, err)
	}
	if !IsImage(data) {
		return nil, loadError(url, ErrUnsupportedFormat)
	}
	tex, err := render.DecodeTexture(bytes.NewReader(data))
	if err != nil {
		return nil, loadError(url, err)
	}
	return tex, nil
}

// LoadGLTFAsync starts LoadGLTF on its own goroutine.
func (l *Loader) LoadGLTFAsync(ctx context.Context, url string, cb *Callbacks[*GLTF]) *Future[*GLTF] {
	return Go(ctx, func(ctx context.Context) (*GLTF, error) {
		return l.LoadGLTF(ctx, url, cb)
	})
}

// LoadOBJAsync starts LoadOBJ on its own goroutine.
func (l *Loader) LoadOBJAsync(ctx context.Context, url string, cb *Callbacks[*render.Group]) *Future[*render.Group] {
	return Go(ctx, func(ctx context.Context) (*render.Group, error) {
		return l.LoadOBJ(ctx, url, cb)
	})
}

var defaultLoader = NewLoader()

// LoadGLTF loads a glTF file with the default loader.
func LoadGLTF(ctx context.Context, url string, cb *Callbacks[*GLTF]) (*GLTF, error) {
	return defaultLoader.LoadGLTF(ctx, url, cb)
}

// LoadOBJ loads an OBJ file with the default loader.
func LoadOBJ(ctx context.Context, url string, cb *Callbacks[*render.Group]) (*render.Group, error) {
	return defaultLoader.LoadOBJ(ctx, url, cb)
}

// LoadGLTFAsync loads a glTF file with the default loader in the background.
func LoadGLTFAsync(ctx context.Context, url string, cb *Callbacks[*GLTF]) *Future[*GLTF] {
	return defaultLoader.LoadGLTFAsync(ctx, url, cb)
}

// LoadOBJAsync loads an OBJ file with the default loader in the background.
func LoadOBJAsync(ctx context.Context, url string, cb *Callbacks[*render.Group]) *Future[*render.Group] {
	return defaultLoader.LoadOBJAsync(ctx, url, cb)
}
