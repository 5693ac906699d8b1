// Package sampler drives the redraw loop which renders an animated image on a
// drawing surface and captures it, either as discrete still frames or as a
// live stream of the surface content.
package sampler

import (
	"context"
	"fmt"

	"github.com/esimov/svgif/event"
	"github.com/esimov/svgif/surface"
	"github.com/hashicorp/go-hclog"
)

// Strategy names.
const (
	Still = "still"
	Live  = "live"
)

// Strategy captures the frames of a drawable over the requested time window.
type Strategy interface {
	Capture(ctx context.Context, d surface.Drawable, surf *surface.Surface, req Request) (*RawCapture, error)
}

// New returns the capture strategy registered under name.
// Frame progress of still captures is published on frames, which may be nil.
func New(name string, sched Scheduler, frames *event.Bus[event.Frame], logger hclog.Logger) (Strategy, error) {
	switch name {
	case Still, "":
		return &StillFrames{Scheduler: sched, Frames: frames, Logger: logger}, nil
	case Live:
		return &LiveStream{Scheduler: sched, Logger: logger}, nil
	}
	return nil, fmt.Errorf("unknown capture strategy %q", name)
}

func loggerOrNull(l hclog.Logger) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	return l
}
