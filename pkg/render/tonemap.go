package render

import (
	"fmt"
	"math"
	"strings"
)

// ToneMapping maps lit linear colors into displayable range.
type ToneMapping int

const (
	NoToneMapping ToneMapping = iota
	LinearToneMapping
	ReinhardToneMapping
	CineonToneMapping
	ACESFilmicToneMapping
)

var toneMappingNames = map[ToneMapping]string{
	NoToneMapping:         "none",
	LinearToneMapping:     "linear",
	ReinhardToneMapping:   "reinhard",
	CineonToneMapping:     "cineon",
	ACESFilmicToneMapping: "aces",
}

func (t ToneMapping) String() string {
	if s, ok := toneMappingNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ToneMapping(%d)", int(t))
}

func (t ToneMapping) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts the names printed by String.
func (t *ToneMapping) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	for k, v := range toneMappingNames {
		if v == name {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown tone mapping %q", name)
}

// apply maps a linear color. NoToneMapping passes it through untouched.
func (t ToneMapping) apply(c rgb, exposure float64) rgb {
	switch t {
	case LinearToneMapping:
		return c.scale(exposure)
	case ReinhardToneMapping:
		c = c.scale(exposure)
		return rgb{c.R / (1 + c.R), c.G / (1 + c.G), c.B / (1 + c.B)}
	case CineonToneMapping:
		c = c.scale(exposure)
		return rgb{cineon(c.R), cineon(c.G), cineon(c.B)}
	case ACESFilmicToneMapping:
		return acesFilmic(c.scale(exposure / 0.6))
	}
	return c
}

// cineon is the optimized filmic curve by Jim Hejl and Richard Burgess-Dawson;
// the result is already gamma encoded, so it is decoded back to linear.
func cineon(x float64) float64 {
	x = math.Max(0, x-0.004)
	v := (x * (6.2*x + 0.5)) / (x*(6.2*x+1.7) + 0.06)
	return math.Pow(v, 2.2)
}

// acesFilmic fits the ACES RRT+ODT (Stephen Hill).
func acesFilmic(c rgb) rgb {
	in := rgb{
		0.59719*c.R + 0.35458*c.G + 0.04823*c.B,
		0.07600*c.R + 0.90834*c.G + 0.01566*c.B,
		0.02840*c.R + 0.13383*c.G + 0.83777*c.B,
	}
	fit := func(v float64) float64 {
		a := v*(v+0.0245786) - 0.000090537
		b := v*(0.983729*v+0.4329510) + 0.238081
		return a / b
	}
	in = rgb{fit(in.R), fit(in.G), fit(in.B)}
	return rgb{
		clamp01(1.60475*in.R - 0.53108*in.G - 0.07367*in.B),
		clamp01(-0.10208*in.R + 1.10813*in.G - 0.00605*in.B),
		clamp01(-0.00327*in.R - 0.07276*in.G + 1.07602*in.B),
	}
}
