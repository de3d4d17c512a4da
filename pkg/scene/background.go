package scene

import (
	"context"
	"fmt"

	"github.com/taigrr/diorama/pkg/render"
	"golang.org/x/sync/errgroup"
)

// loadBackground applies a solid color immediately and starts loading a
// cube map or panorama. Load failures are logged and otherwise ignored; the
// scene stays usable without a background. ready is closed once the load
// settles.
func (m *Manager) loadBackground(ctx context.Context) {
	bg := m.cfg.Background
	if bg.Color != nil {
		m.scene.SetBackground(render.SolidBackground{Color: bg.Color.Value()})
	}

	var load func(context.Context) (render.Background, error)
	switch {
	case len(bg.Images) == 6:
		load = m.loadCube
	case bg.Panorama != "":
		load = m.loadPanorama
	default:
		close(m.bgReady)
		return
	}

	go func() {
		defer close(m.bgReady)
		b, err := load(ctx)
		if err != nil {
			m.logger.Debug("background not loaded", "err", err)
			return
		}
		m.scene.SetBackground(b)
		m.Invalidate()
	}()
}

func (m *Manager) loadCube(ctx context.Context) (render.Background, error) {
	var cube render.CubeTexture
	g, ctx := errgroup.WithContext(ctx)
	for i, url := range m.cfg.Background.Images {
		g.Go(func() error {
			tex, err := m.loader.LoadTexture(ctx, url)
			if err != nil {
				return fmt.Errorf("cube face %d: %w", i, err)
			}
			cube.Faces[i] = tex
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &cube, nil
}

func (m *Manager) loadPanorama(ctx context.Context) (render.Background, error) {
	tex, err := m.loader.LoadTexture(ctx, m.cfg.Background.Panorama)
	if err != nil {
		return nil, fmt.Errorf("panorama: %w", err)
	}
	return &render.EquirectTexture{Texture: tex}, nil
}

// BackgroundReady is closed when the background load has settled, whether
// it succeeded or not. Without an image background it is already closed.
func (m *Manager) BackgroundReady() <-chan struct{} {
	return m.bgReady
}
