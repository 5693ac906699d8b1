package surface

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Chunk is a single encoded frame produced by a capture stream.
type Chunk struct {
	Data      []byte
	Timestamp time.Duration
}

// Stream continuously samples a surface at a fixed frame rate.
// Chunks are delivered on C, which is closed once the stream stops.
type Stream struct {
	C <-chan Chunk

	fps  int
	stop chan struct{}
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	err error
}

// CaptureStream starts sampling the surface at fps frames per second.
// The first frame is taken immediately. The stream runs until Stop is called
// or ctx is done; a slow consumer delays sampling rather than dropping frames.
func (s *Surface) CaptureStream(ctx context.Context, fps int) (*Stream, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("invalid capture frame rate %d", fps)
	}
	c := make(chan Chunk, fps)
	st := &Stream{
		C:    c,
		fps:  fps,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	s.logger.Debug("capture stream started", "fps", fps)

	go func() {
		defer close(st.done)
		defer close(c)

		ticker := time.NewTicker(time.Second / time.Duration(fps))
		defer ticker.Stop()

		start := time.Now()
		for {
			data, err := s.PNG()
			if err != nil {
				st.setErr(err)
				return
			}
			select {
			case c <- Chunk{Data: data, Timestamp: time.Since(start)}:
			case <-st.stop:
				return
			case <-ctx.Done():
				return
			}

			select {
			case <-ticker.C:
			case <-st.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return st, nil
}

// FrameRate returns the sampling rate of the stream.
func (st *Stream) FrameRate() int { return st.fps }

// Stop ends the stream and waits for the sampler to exit.
// It is safe to call Stop more than once.
func (st *Stream) Stop() {
	st.once.Do(func() { close(st.stop) })
	<-st.done
}

// Done is closed once the stream has stopped sampling.
func (st *Stream) Done() <-chan struct{} { return st.done }

// Err returns the error which terminated the stream, if any.
func (st *Stream) Err() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	return st.err
}

func (st *Stream) setErr(err error) {
	st.mu.Lock()
	st.err = err
	st.mu.Unlock()
}

// Chunks returns the channel the encoded frames are delivered on.
func (st *Stream) Chunks() <-chan Chunk { return st.C }
