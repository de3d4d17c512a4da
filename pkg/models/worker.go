package models

import (
	"context"
	"sync"

	"github.com/taigrr/diorama/pkg/render"
	"golang.org/x/sync/semaphore"
)

// Result is the single message a Pool delivers per load.
type Result[T any] struct {
	Value T
	Err   error
}

// Pool runs loads in the background with at most n in flight. Every
// submitted load delivers exactly one Result, including failures and
// cancellation. No progress is reported across the pool boundary.
type Pool struct {
	loader *Loader
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
}

// NewPool creates a pool around loader. A non-positive size means 1.
func NewPool(loader *Loader, size int) *Pool {
	if loader == nil {
		loader = defaultLoader
	}
	return &Pool{loader: loader, sem: semaphore.NewWeighted(int64(max(1, size)))}
}

// LoadGLTF queues a glTF load. Cancel ctx to abandon it and free the slot.
func (p *Pool) LoadGLTF(ctx context.Context, url string) <-chan Result[*GLTF] {
	return submit(p, ctx, url, func(ctx context.Context) (*GLTF, error) {
		return p.loader.LoadGLTF(ctx, url, nil)
	})
}

// LoadOBJ queues an OBJ load.
func (p *Pool) LoadOBJ(ctx context.Context, url string) <-chan Result[*render.Group] {
	return submit(p, ctx, url, func(ctx context.Context) (*render.Group, error) {
		return p.loader.LoadOBJ(ctx, url, nil)
	})
}

// Load queues a load of any supported model format; see Loader.Load.
func (p *Pool) Load(ctx context.Context, url string) <-chan Result[render.Object] {
	return submit(p, ctx, url, func(ctx context.Context) (render.Object, error) {
		return p.loader.Load(ctx, url)
	})
}

// Wait blocks until every queued load has delivered its result.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func submit[T any](p *Pool, ctx context.Context, url string, fn func(context.Context) (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			out <- Result[T]{Err: loadError(url, err)}
			return
		}
		defer p.sem.Release(1)

		v, err := fn(ctx)
		if err == nil && ctx.Err() != nil {
			// finished after the caller gave up
			err = loadError(url, ctx.Err())
		}
		if err != nil {
			p.loader.logger.Debug("background load failed", "url", url, "err", err)
			var zero T
			v = zero
		}
		out <- Result[T]{Value: v, Err: err}
	}()
	return out
}
