package sampler

import (
	"time"

	"github.com/esimov/svgif/surface"
)

// Frame is a single captured, PNG encoded frame.
type Frame struct {
	Index     int
	Timestamp time.Duration
	Data      []byte
	Width     int
	Height    int
}

// RawCapture is the output of a capture strategy: either an ordered list of
// still frames, or a live stream which keeps producing chunks until stopped.
type RawCapture struct {
	Frames   []Frame
	Stream   *surface.Stream
	FPS      int
	Duration time.Duration

	loopDone chan struct{}
	loopErr  error
}

// Live reports whether the capture holds a live stream.
func (c *RawCapture) Live() bool { return c.Stream != nil }

// Wait blocks until the redraw loop driving a live stream has ended and
// returns its error. It returns immediately for still captures.
func (c *RawCapture) Wait() error {
	if c.loopDone == nil {
		return nil
	}
	<-c.loopDone
	return c.loopErr
}
