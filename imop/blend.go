// Package imop implements the Porter-Duff composition operations and the
// separable blend modes a canvas uses to mix a drawn image with its backdrop.
// The image/draw core package implements only source-over and source, this
// package covers the remaining operations accepted by a canvas
// globalCompositeOperation.
package imop

import (
	"github.com/esimov/svgif/utils"
)

const (
	Darken   = "darken"
	Lighten  = "lighten"
	Multiply = "multiply"
	Screen   = "screen"
	Overlay  = "overlay"
)

// BlendModes lists the supported separable blend modes.
var BlendModes = []string{Darken, Lighten, Multiply, Screen, Overlay}

// Blend holds the currently active blend mode.
type Blend struct {
	OpType string
}

// NewBlend initializes a new Blend.
func NewBlend() *Blend {
	return &Blend{}
}

// Set activates one of the supported blend modes. Unknown modes are ignored.
func (o *Blend) Set(opType string) {
	if utils.Contains(BlendModes, opType) {
		o.OpType = opType
	}
}

// Get returns the currently active blend mode.
func (o *Blend) Get() string {
	return o.OpType
}

// mix applies the blend function to a single normalized channel,
// cb being the backdrop and cs the source value.
func (o *Blend) mix(cb, cs float64) float64 {
	switch o.OpType {
	case Darken:
		return utils.Min(cb, cs)
	case Lighten:
		return utils.Max(cb, cs)
	case Multiply:
		return cb * cs
	case Screen:
		return cb + cs - cb*cs
	case Overlay:
		// Overlay is hard-light with the layers swapped.
		if cb <= 0.5 {
			return 2 * cb * cs
		}
		return 1 - 2*(1-cb)*(1-cs)
	}
	return cs
}
