// Package tween animates values over time. A Group owns running tweens and
// advances them once per frame.
package tween

import (
	"sync"
	"time"

	"github.com/taigrr/diorama/pkg/math3d"
)

// Tween eases a value from its start to its end over a duration. Builder
// methods return the tween so calls can be chained before Start.
type Tween struct {
	duration time.Duration
	delay    time.Duration
	easing   Easing
	begin    func()
	apply    func(t float64)

	onComplete func()
	repeat     int // extra runs; -1 repeats forever
	yoyo       bool

	elapsed  time.Duration
	started  bool
	reversed bool
	done     bool
}

// New creates a tween calling apply with eased progress in [0, 1].
func New(d time.Duration, apply func(t float64)) *Tween {
	return &Tween{duration: d, easing: Linear, apply: apply}
}

// Float tweens *v to target. The start value is read when the tween starts
// running, after any delay.
func Float(v *float64, target float64, d time.Duration) *Tween {
	var from float64
	tw := New(d, func(t float64) { *v = from + (target-from)*t })
	tw.begin = func() { from = *v }
	return tw
}

// Vec3 tweens *v to target.
func Vec3(v *math3d.Vec3, target math3d.Vec3, d time.Duration) *Tween {
	var from math3d.Vec3
	tw := New(d, func(t float64) { *v = from.Lerp(target, t) })
	tw.begin = func() { from = *v }
	return tw
}

func (tw *Tween) Delay(d time.Duration) *Tween {
	tw.delay = d
	return tw
}

func (tw *Tween) Easing(e Easing) *Tween {
	if e != nil {
		tw.easing = e
	}
	return tw
}

func (tw *Tween) OnComplete(fn func()) *Tween {
	tw.onComplete = fn
	return tw
}

// Repeat runs the tween n more times; -1 repeats until stopped.
func (tw *Tween) Repeat(n int) *Tween {
	tw.repeat = n
	return tw
}

// Yoyo reverses direction on every repeat.
func (tw *Tween) Yoyo(on bool) *Tween {
	tw.yoyo = on
	return tw
}

// Done reports whether the tween has finished.
func (tw *Tween) Done() bool {
	return tw.done
}

// advance moves the tween forward by dt and reports whether it is still
// running.
func (tw *Tween) advance(dt time.Duration) bool {
	if tw.done {
		return false
	}
	tw.elapsed += dt
	if tw.elapsed < tw.delay {
		return true
	}
	if !tw.started {
		tw.started = true
		if tw.begin != nil {
			tw.begin()
		}
	}

	run := tw.elapsed - tw.delay
	p := 1.0
	if tw.duration > 0 {
		p = min(1, float64(run)/float64(tw.duration))
	}
	if tw.reversed {
		tw.apply(tw.easing(1 - p))
	} else {
		tw.apply(tw.easing(p))
	}
	if p < 1 {
		return true
	}

	if tw.repeat != 0 {
		if tw.repeat > 0 {
			tw.repeat--
		}
		if tw.yoyo {
			tw.reversed = !tw.reversed
		}
		// carry the overshoot into the next run
		tw.elapsed = tw.delay + run - tw.duration
		return true
	}
	tw.done = true
	if tw.onComplete != nil {
		tw.onComplete()
	}
	return false
}

// Group runs tweens. It is safe to add tweens from other goroutines and
// from tween callbacks.
type Group struct {
	mu     sync.Mutex
	tweens []*Tween
}

func NewGroup() *Group {
	return &Group{}
}

// Start adds tw to the group.
func (g *Group) Start(tw *Tween) *Tween {
	g.mu.Lock()
	g.tweens = append(g.tweens, tw)
	g.mu.Unlock()
	return tw
}

// Stop removes tw without completing it.
func (g *Group) Stop(tw *Tween) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, t := range g.tweens {
		if t == tw {
			g.tweens = append(g.tweens[:i], g.tweens[i+1:]...)
			return
		}
	}
}

// StopAll removes every tween.
func (g *Group) StopAll() {
	g.mu.Lock()
	g.tweens = nil
	g.mu.Unlock()
}

// Len returns the number of running tweens.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tweens)
}

// Update advances every tween by dt in start order and drops finished ones.
// It reports whether any tween ran.
func (g *Group) Update(dt time.Duration) bool {
	g.mu.Lock()
	running := append([]*Tween(nil), g.tweens...)
	g.mu.Unlock()
	if len(running) == 0 {
		return false
	}

	finished := make(map[*Tween]bool)
	for _, tw := range running {
		if !tw.advance(dt) {
			finished[tw] = true
		}
	}
	if len(finished) > 0 {
		g.mu.Lock()
		kept := g.tweens[:0]
		for _, tw := range g.tweens {
			if !finished[tw] {
				kept = append(kept, tw)
			}
		}
		g.tweens = kept
		g.mu.Unlock()
	}
	return true
}
