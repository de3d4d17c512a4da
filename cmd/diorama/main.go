// diorama - terminal 3D scene viewer
//
// Loads OBJ, glTF and GLB models into a lit scene with a grid and renders
// it in the terminal with orbit controls.
//
// Controls:
//
//	Left drag   - Orbit
//	Right drag  - Pan (or Shift + drag)
//	Scroll      - Zoom in/out
//	R           - Reset view
//	Q/Esc       - Quit
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/taigrr/diorama/pkg/math3d"
	"github.com/taigrr/diorama/pkg/models"
	"github.com/taigrr/diorama/pkg/overlay"
	"github.com/taigrr/diorama/pkg/render"
	"github.com/taigrr/diorama/pkg/scene"
	"github.com/taigrr/diorama/pkg/surface"
)

var version = "dev"

type options struct {
	config   string
	fps      int
	bg       string
	snapshot string
	width    int
	height   int
	logFile  string
	labels   bool
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:   "diorama [model...]",
		Short: "View 3D models in your terminal",
		Long: "diorama renders OBJ, glTF and GLB models in the terminal.\n\n" +
			"Drag to orbit, right-drag or shift-drag to pan, scroll to zoom,\n" +
			"r to reset the view and q or esc to quit.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.config, "config", "c", "", "scene configuration file (YAML)")
	f.IntVar(&opts.fps, "fps", 60, "target frames per second")
	f.StringVar(&opts.bg, "bg", "", "background color, e.g. #1e1e28")
	f.StringVar(&opts.snapshot, "snapshot", "", "render one frame offscreen and save it as PNG")
	f.IntVar(&opts.width, "width", 640, "snapshot width in pixels")
	f.IntVar(&opts.height, "height", 360, "snapshot height in pixels")
	f.StringVar(&opts.logFile, "log", "", "write debug logs to this file")
	f.BoolVar(&opts.labels, "labels", true, "label loaded models")

	if err := fang.Execute(
		context.Background(),
		cmd,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}

func newLogger(file string) (*slog.Logger, func(), error) {
	if file == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { f.Close() }, nil
}

func loadConfig(opts options) (scene.Config, error) {
	cfg := scene.Config{
		OrbitControls: true,
		AmbientLight:  true,
		Overlay3D:     opts.labels,
	}
	if opts.config != "" {
		var err error
		if cfg, err = scene.LoadConfig(opts.config); err != nil {
			return cfg, err
		}
	}
	if opts.bg != "" {
		var c scene.Color
		if err := c.UnmarshalText([]byte(opts.bg)); err != nil {
			return cfg, fmt.Errorf("--bg: %w", err)
		}
		cfg.Background.Color = &c
	}
	if cfg.Background.Color == nil && len(cfg.Background.Images) == 0 && cfg.Background.Panorama == "" {
		c := scene.Color(render.RGB(30, 30, 40))
		cfg.Background.Color = &c
	}
	cfg.FPS = opts.fps
	if cfg.DefAmbientLightOps.Intensity == 0 {
		cfg.DefAmbientLightOps.Intensity = 0.4
	}
	return cfg, nil
}

func run(ctx context.Context, opts options, args []string) error {
	logger, closeLog, err := newLogger(opts.logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	var win surface.Window
	if opts.snapshot != "" {
		win = surface.NewHeadless(opts.width, opts.height, surface.WithFrameLimit(1))
	} else {
		term, err := surface.NewTerminal(opts.fps, logger)
		if err != nil {
			return err
		}
		defer term.Close()
		win = term
	}

	mgr, err := scene.New(cfg, scene.WithWindow(win), scene.WithLogger(logger))
	if err != nil {
		return err
	}
	defer mgr.Destroy()

	populate(mgr)
	if err := loadModels(ctx, mgr, args, opts.labels, logger); err != nil {
		return err
	}

	if err := mgr.Render(win.Body()); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	win.AddEventListener(surface.KeyDown, func(ev surface.Event) {
		switch ev.(surface.KeyboardEvent).Key {
		case "q", "esc", "ctrl+c":
			cancel()
		case "r":
			if c := mgr.Controls(); c != nil {
				c.Reset()
			}
		}
	})
	mgr.OnPick(func(ev scene.PickEvent) {
		if ev.Type != surface.PointerDown {
			return
		}
		if hit, ok := ev.Hit(); ok {
			logger.Info("picked", "name", hit.Object.Object3D().Name, "point", hit.Point, "distance", hit.Distance)
		}
	})

	err = mgr.StartFrameAnimate(ctx, nil)
	switch {
	case errors.Is(err, context.Canceled), err == nil:
		return nil
	case errors.Is(err, surface.ErrClosed) && opts.snapshot != "":
		if err := mgr.Renderer().Framebuffer().SavePNG(opts.snapshot); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		return nil
	default:
		return err
	}
}

// populate adds the ground grid, axes and a shadow-casting key light.
func populate(mgr *scene.Manager) {
	mgr.Add(render.NewGridHelper(20, 20, render.RGB(90, 90, 100), render.RGB(55, 55, 65)))
	mgr.Add(render.NewAxesHelper(1.5))

	sun := render.NewDirectionalLight(render.ColorWhite, 1)
	sun.Position = math3d.V3(5, 10, 7)
	sun.CastShadow = true
	mgr.Add(sun)
}

// loadModels loads every model concurrently, scales each to fit a 4-unit
// cube resting on the grid and lays them out side by side along X.
func loadModels(ctx context.Context, mgr *scene.Manager, urls []string, labels bool, logger *slog.Logger) error {
	if len(urls) == 0 {
		box := render.NewMesh(models.NewBox(2, 2, 2), render.NewMaterial(render.RGB(200, 120, 60)))
		box.Name = "box"
		box.Position.Y = 1
		box.CastShadow = true
		mgr.Add(box)
		return nil
	}

	pool := models.NewPool(mgr.Loader(), 4)
	results := make([]<-chan models.Result[render.Object], len(urls))
	for i, url := range urls {
		results[i] = pool.Load(ctx, url)
	}

	const spacing = 5.0
	offset := -spacing * float64(len(urls)-1) / 2
	for i, ch := range results {
		res := <-ch
		if res.Err != nil {
			return res.Err
		}
		obj := res.Value
		fit(obj, 4)
		node := obj.Object3D()
		node.Position.X += offset + spacing*float64(i)
		if node.Name == "" {
			node.Name = path.Base(urls[i])
		}
		mgr.Add(obj)
		logger.Debug("model loaded", "url", urls[i])

		if labels {
			label := overlay.NewLabel(path.Base(urls[i]))
			label.Position = math3d.V3(node.Position.X, 4.5, 0)
			mgr.Add(label)
		}
	}
	return nil
}

// fit scales obj uniformly so its largest side is size, centers it on X and
// Z and rests it on y = 0.
func fit(obj render.Object, size float64) {
	var box render.AABB
	found := false
	obj.Object3D().Traverse(func(o render.Object) bool {
		m, ok := o.(*render.Mesh)
		if !ok || m.Geometry == nil {
			return true
		}
		m.CastShadow = true
		if b := m.WorldBounds(); found {
			box = box.Union(b)
		} else {
			box, found = b, true
		}
		return true
	})
	if !found {
		return
	}

	dims := box.Size()
	largest := math.Max(dims.X, math.Max(dims.Y, dims.Z))
	if largest <= 0 {
		return
	}
	s := size / largest
	node := obj.Object3D()
	node.Scale = node.Scale.Scale(s)
	c := box.Center()
	node.Position = node.Position.Sub(math3d.V3(c.X, box.Min.Y, c.Z)).Scale(s)
}
