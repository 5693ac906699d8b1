package sampler

import (
	"context"
	"fmt"
	"time"

	"github.com/esimov/svgif/event"
	"github.com/esimov/svgif/surface"
	"github.com/hashicorp/go-hclog"
)

// StillFrames captures a fixed number of PNG frames, one per frame interval
// of the animation time.
type StillFrames struct {
	// Scheduler delivers the redraw opportunities. A virtual scheduler
	// stepping by the frame interval is used when nil.
	Scheduler Scheduler
	// Frames receives a progress event after each captured frame.
	Frames *event.Bus[event.Frame]
	Logger hclog.Logger
}

// Capture implements Strategy.
func (s *StillFrames) Capture(ctx context.Context, d surface.Drawable, surf *surface.Surface, req Request) (*RawCapture, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var (
		logger   = loggerOrNull(s.Logger)
		total    = req.TotalFrames()
		interval = req.Interval()
		sched    = s.Scheduler
	)
	if sched == nil {
		sched = NewVirtualScheduler(interval)
	}

	var (
		frames   = make([]Frame, 0, total)
		last     time.Duration
		pending  ID
		stopped  bool
		drawErr  error
		redraw   Callback
		finished = func() {
			if !stopped {
				stopped = true
				sched.Cancel(pending)
			}
		}
	)

	redraw = func(now time.Duration) {
		pending = sched.Request(redraw)

		if err := surf.Redraw(d, now); err != nil {
			drawErr = err
			finished()
			return
		}
		if len(frames) > 0 && now-last < interval {
			return
		}

		data, err := surf.PNG()
		if err != nil {
			drawErr = err
			finished()
			return
		}
		frames = append(frames, Frame{
			Index:     len(frames),
			Timestamp: now,
			Data:      data,
			Width:     surf.Width(),
			Height:    surf.Height(),
		})
		last = now
		logger.Trace("frame captured", "index", len(frames)-1, "at", now)
		if s.Frames != nil {
			s.Frames.Publish(event.Frame{Current: len(frames), Total: total})
		}

		if len(frames) >= total {
			finished()
		}
	}
	pending = sched.Request(redraw)

	if err := sched.Run(ctx); err != nil {
		finished()
		return nil, fmt.Errorf("capture interrupted after %d of %d frames: %w", len(frames), total, err)
	}
	if drawErr != nil {
		return nil, drawErr
	}
	logger.Debug("still capture done", "frames", len(frames))

	return &RawCapture{
		Frames:   frames,
		FPS:      req.FPS,
		Duration: req.Duration(),
	}, nil
}
