package sampler

import (
	"context"
	"time"

	"github.com/esimov/svgif/surface"
	"github.com/hashicorp/go-hclog"
)

// LiveStream opens a capture stream on the surface and keeps redrawing the
// animation on it for the requested wall clock duration. The stream samples
// the surface on its own, independently of the redraw rate.
type LiveStream struct {
	// Scheduler delivers the redraw opportunities.
	// A 60 Hz wall clock scheduler is used when nil.
	Scheduler Scheduler
	Logger    hclog.Logger
}

// Capture implements Strategy. It returns as soon as the stream is open; the
// redraw loop keeps running in the background until the duration elapses or
// the stream is stopped. Use RawCapture.Wait to join it.
func (l *LiveStream) Capture(ctx context.Context, d surface.Drawable, surf *surface.Surface, req Request) (*RawCapture, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	logger := loggerOrNull(l.Logger)
	sched := l.Scheduler
	if sched == nil {
		sched = NewTickerScheduler(DefaultRefreshRate)
	}

	// Draw the first frame before the stream takes its first sample.
	if err := surf.Redraw(d, 0); err != nil {
		return nil, err
	}

	stream, err := surf.CaptureStream(ctx, req.FPS)
	if err != nil {
		return nil, err
	}

	capture := &RawCapture{
		Stream:   stream,
		FPS:      req.FPS,
		Duration: req.Duration(),
		loopDone: make(chan struct{}),
	}
	duration := req.Duration()

	go func() {
		defer close(capture.loopDone)

		var (
			pending ID
			stopped bool
			redraw  Callback
		)
		finished := func() {
			if !stopped {
				stopped = true
				sched.Cancel(pending)
			}
		}
		redraw = func(now time.Duration) {
			select {
			case <-stream.Done():
				finished()
				return
			default:
			}
			if now >= duration {
				finished()
				return
			}
			pending = sched.Request(redraw)

			if err := surf.Redraw(d, now); err != nil {
				capture.loopErr = err
				finished()
			}
		}
		pending = sched.Request(redraw)

		if err := sched.Run(ctx); err != nil {
			finished()
			capture.loopErr = err
		}
		logger.Debug("live redraw loop ended", "error", capture.loopErr)
	}()

	return capture, nil
}
