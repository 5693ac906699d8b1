package sampler

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/esimov/svgif/event"
	"github.com/esimov/svgif/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type solid struct{}

func (solid) Width() float64  { return 10 }
func (solid) Height() float64 { return 10 }

func (solid) Render(w, h int, t time.Duration) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	// Vary the color with time so every frame differs.
	c := color.RGBA{R: uint8(t / time.Millisecond), A: 255}
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img, nil
}

type broken struct{ solid }

// slow takes a while to render, like a full size vector rasterization.
type slow struct{ solid }

func (slow) Render(w, h int, t time.Duration) (*image.RGBA, error) {
	time.Sleep(15 * time.Millisecond)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{R: 255, A: 255}}, image.Point{}, draw.Src)
	return img, nil
}

func (broken) Render(int, int, time.Duration) (*image.RGBA, error) {
	return nil, errors.New("boom")
}

// countingScheduler records the calls made on the wrapped scheduler.
type countingScheduler struct {
	Scheduler

	mu       sync.Mutex
	requests int
	cancels  int
	onCancel func()
}

func (s *countingScheduler) Request(fn Callback) ID {
	s.mu.Lock()
	s.requests++
	s.mu.Unlock()
	return s.Scheduler.Request(fn)
}

func (s *countingScheduler) Cancel(id ID) {
	s.mu.Lock()
	s.cancels++
	s.mu.Unlock()
	if s.onCancel != nil {
		s.onCancel()
	}
	s.Scheduler.Cancel(id)
}

func newSurface(t *testing.T) *surface.Surface {
	t.Helper()
	surf, err := surface.New(8, 8, surface.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { surf.Close() })
	return surf
}

func TestRequest_Validate(t *testing.T) {
	valid := Request{DurationSeconds: 5, FPS: 10, Width: 1920, Height: 1080}
	assert.NoError(t, valid.Validate())
	assert.Equal(t, 50, valid.TotalFrames())
	assert.Equal(t, 100*time.Millisecond, valid.Interval())
	assert.Equal(t, 5*time.Second, valid.Duration())

	testCases := []struct {
		name  string
		req   Request
		field string
	}{
		{"zero fps", Request{DurationSeconds: 1, FPS: 0, Width: 1, Height: 1}, "fps"},
		{"negative fps", Request{DurationSeconds: 1, FPS: -5, Width: 1, Height: 1}, "fps"},
		{"zero duration", Request{DurationSeconds: 0, FPS: 10, Width: 1, Height: 1}, "duration"},
		{"nan duration", Request{DurationSeconds: math.NaN(), FPS: 10, Width: 1, Height: 1}, "duration"},
		{"infinite duration", Request{DurationSeconds: math.Inf(1), FPS: 10, Width: 1, Height: 1}, "duration"},
		{"less than a frame", Request{DurationSeconds: 0.04, FPS: 10, Width: 1, Height: 1}, "duration"},
		{"zero width", Request{DurationSeconds: 1, FPS: 10, Width: 0, Height: 1}, "width"},
		{"huge height", Request{DurationSeconds: 1, FPS: 10, Width: 1, Height: MaxDimension + 1}, "height"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestRequest_TotalFramesRounds(t *testing.T) {
	assert.Equal(t, 3, Request{DurationSeconds: 0.25, FPS: 10}.TotalFrames())
	assert.Equal(t, 20, Request{DurationSeconds: 2, FPS: 10}.TotalFrames())
	assert.Equal(t, 1, Request{DurationSeconds: 0.05, FPS: 10}.TotalFrames())
}

func TestStillFrames_ExactFrameCount(t *testing.T) {
	for _, tc := range []struct {
		duration float64
		fps      int
	}{
		{2, 10},
		{1, 30},
		{0.5, 60},
		{1.25, 4},
	} {
		req := Request{DurationSeconds: tc.duration, FPS: tc.fps, Width: 8, Height: 8}
		sched := &countingScheduler{Scheduler: NewVirtualScheduler(req.Interval())}
		bus := event.NewBus[event.Frame]()

		var progress []event.Frame
		bus.Subscribe(func(f event.Frame) { progress = append(progress, f) })

		strategy := &StillFrames{Scheduler: sched, Frames: bus}
		capture, err := strategy.Capture(context.Background(), solid{}, newSurface(t), req)
		require.NoError(t, err)

		total := req.TotalFrames()
		require.Len(t, capture.Frames, total)
		assert.False(t, capture.Live())
		assert.Equal(t, tc.fps, capture.FPS)
		assert.Len(t, progress, total)
		assert.Equal(t, event.Frame{Current: total, Total: total}, progress[total-1])

		for i, f := range capture.Frames {
			assert.Equal(t, i, f.Index)
			assert.Equal(t, time.Duration(i)*req.Interval(), f.Timestamp)
			assert.NotEmpty(t, f.Data)
			assert.Equal(t, 8, f.Width)
		}
		assert.Equal(t, 1, sched.cancels)
	}
}

func TestStillFrames_RespectsInterval(t *testing.T) {
	req := Request{DurationSeconds: 1, FPS: 10, Width: 8, Height: 8}
	// Redraw opportunities do not line up with the frame interval.
	sched := NewVirtualScheduler(30 * time.Millisecond)

	capture, err := (&StillFrames{Scheduler: sched}).Capture(context.Background(), solid{}, newSurface(t), req)
	require.NoError(t, err)
	require.Len(t, capture.Frames, 10)

	for i, f := range capture.Frames {
		assert.GreaterOrEqual(t, f.Timestamp, time.Duration(i)*req.Interval())
		if i > 0 {
			assert.Greater(t, f.Timestamp, capture.Frames[i-1].Timestamp)
		}
	}
	last := capture.Frames[len(capture.Frames)-1].Timestamp
	assert.InDelta(t, req.Duration().Seconds(), last.Seconds(), req.Interval().Seconds()+0.05)
}

func TestStillFrames_FrameSpacing(t *testing.T) {
	req := Request{DurationSeconds: 1, FPS: 10, Width: 8, Height: 8}

	for _, step := range []time.Duration{
		30 * time.Millisecond,
		45 * time.Millisecond,
		70 * time.Millisecond,
		100 * time.Millisecond,
	} {
		capture, err := (&StillFrames{Scheduler: NewVirtualScheduler(step)}).Capture(context.Background(), solid{}, newSurface(t), req)
		require.NoError(t, err)
		require.Len(t, capture.Frames, 10)

		for i := 1; i < len(capture.Frames); i++ {
			gap := capture.Frames[i].Timestamp - capture.Frames[i-1].Timestamp
			assert.GreaterOrEqual(t, gap, req.Interval(), "step %v, frame %d", step, i)
		}
	}
}

func TestStillFrames_CancelsAfterLastFrame(t *testing.T) {
	req := Request{DurationSeconds: 1, FPS: 5, Width: 8, Height: 8}
	bus := event.NewBus[event.Frame]()

	var captured int
	bus.Subscribe(func(event.Frame) { captured++ })

	var atCancel []int
	sched := &countingScheduler{Scheduler: NewVirtualScheduler(req.Interval())}
	sched.onCancel = func() { atCancel = append(atCancel, captured) }

	_, err := (&StillFrames{Scheduler: sched, Frames: bus}).Capture(context.Background(), solid{}, newSurface(t), req)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, atCancel)
}

func TestStillFrames_ValidationFailsFast(t *testing.T) {
	sched := &countingScheduler{Scheduler: NewVirtualScheduler(time.Millisecond)}
	strategy := &StillFrames{Scheduler: sched}

	for _, req := range []Request{
		{DurationSeconds: 0, FPS: 10, Width: 8, Height: 8},
		{DurationSeconds: 2, FPS: 0, Width: 8, Height: 8},
	} {
		_, err := strategy.Capture(context.Background(), solid{}, newSurface(t), req)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	}
	assert.Zero(t, sched.requests)
	assert.Zero(t, sched.cancels)
}

func TestStillFrames_DrawErrorStopsLoop(t *testing.T) {
	req := Request{DurationSeconds: 1, FPS: 10, Width: 8, Height: 8}
	sched := &countingScheduler{Scheduler: NewVirtualScheduler(req.Interval())}

	_, err := (&StillFrames{Scheduler: sched}).Capture(context.Background(), broken{}, newSurface(t), req)
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, 1, sched.cancels)
}

func TestStillFrames_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := Request{DurationSeconds: 1, FPS: 10, Width: 8, Height: 8}
	sched := &countingScheduler{Scheduler: NewVirtualScheduler(req.Interval())}

	_, err := (&StillFrames{Scheduler: sched}).Capture(ctx, solid{}, newSurface(t), req)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sched.cancels)
}

func TestLiveStream_RunsForDuration(t *testing.T) {
	req := Request{DurationSeconds: 0.2, FPS: 20, Width: 8, Height: 8}
	sched := &countingScheduler{Scheduler: NewTickerScheduler(100)}

	start := time.Now()
	capture, err := (&LiveStream{Scheduler: sched}).Capture(context.Background(), solid{}, newSurface(t), req)
	require.NoError(t, err)
	require.True(t, capture.Live())

	var chunks int
	timeout := time.After(req.Duration())
loop:
	for {
		select {
		case c := <-capture.Stream.Chunks():
			assert.NotEmpty(t, c.Data)
			chunks++
		case <-timeout:
			break loop
		}
	}
	capture.Stream.Stop()

	require.NoError(t, capture.Wait())
	require.NoError(t, capture.Wait())
	assert.GreaterOrEqual(t, time.Since(start), req.Duration())
	assert.Positive(t, chunks)
	assert.Equal(t, 1, sched.cancels)
}

func TestLiveStream_NeverSamplesClearedSurface(t *testing.T) {
	req := Request{DurationSeconds: 0.5, FPS: 30, Width: 8, Height: 8}

	capture, err := (&LiveStream{Scheduler: NewTickerScheduler(60)}).Capture(context.Background(), slow{}, newSurface(t), req)
	require.NoError(t, err)

	var chunks, blank int
	timeout := time.After(req.Duration())
loop:
	for {
		select {
		case c := <-capture.Stream.Chunks():
			img, err := png.Decode(bytes.NewReader(c.Data))
			require.NoError(t, err)
			chunks++
			if _, _, _, a := img.At(4, 4).RGBA(); a == 0 {
				blank++
			}
		case <-timeout:
			break loop
		}
	}
	capture.Stream.Stop()
	require.NoError(t, capture.Wait())

	assert.Positive(t, chunks)
	assert.Zero(t, blank)
}

func TestNew_Strategies(t *testing.T) {
	s, err := New(Still, nil, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &StillFrames{}, s)

	s, err = New(Live, nil, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &LiveStream{}, s)

	_, err = New("webm", nil, nil, nil)
	assert.Error(t, err)
}
