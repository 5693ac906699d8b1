// Package recorder buffers the encoded frames of a capture and finalizes them
// into a single container blob the transcoder can demux.
//
// The container is a PNG image pipe: the PNG encoded frames concatenated in
// order. It is read back with the image2pipe demuxer and the png decoder.
package recorder

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/esimov/svgif/sampler"
	"github.com/esimov/svgif/surface"
	"github.com/hashicorp/go-hclog"
)

// Container description of the blobs produced by the recorder.
const (
	MIMEType = "video/x-png-pipe"
	Format   = "image2pipe"
	Codec    = "png"
)

// Blob is a finalized recording.
type Blob struct {
	Data      []byte
	MIME      string
	Format    string
	Codec     string
	FrameRate int
	Frames    int
	Duration  time.Duration
}

// Size returns the payload size in bytes.
func (b *Blob) Size() int { return len(b.Data) }

// EmptyError is returned when a recording is finalized without any data.
type EmptyError struct {
	Chunks int // number of chunks received, all of them empty
}

func (e *EmptyError) Error() string {
	return fmt.Sprintf("recording is empty: no data received (%d empty chunks)", e.Chunks)
}

// Stream is a live source of encoded chunks.
type Stream interface {
	Chunks() <-chan surface.Chunk
	FrameRate() int
	Stop()
}

// Recorder is a single recording session. It finalizes exactly once;
// every later call returns the blob (or error) of the first finalize.
type Recorder struct {
	// Realtime paces replayed frames at their scheduled offsets.
	Realtime bool
	Logger   hclog.Logger

	mu       sync.Mutex
	buf      bytes.Buffer
	frames   int
	empty    int
	fps      int
	duration time.Duration

	once sync.Once
	blob *Blob
	err  error
}

// New returns a recorder session.
func New(logger hclog.Logger) *Recorder {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Recorder{Logger: logger}
}

func (r *Recorder) logger() hclog.Logger {
	if r.Logger == nil {
		return hclog.NewNullLogger()
	}
	return r.Logger
}

// write appends a chunk to the recording. Zero sized chunks are ignored.
func (r *Recorder) write(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(data) == 0 {
		r.empty++
		return
	}
	r.buf.Write(data)
	r.frames++
}

// Record buffers chunks from a live stream, stops it once duration elapsed
// (or ctx is done) and finalizes the recording.
func (r *Recorder) Record(ctx context.Context, st Stream, duration time.Duration) (*Blob, error) {
	r.mu.Lock()
	r.fps, r.duration = st.FrameRate(), duration
	r.mu.Unlock()

	timer := time.NewTimer(duration)
	defer timer.Stop()

	chunks := st.Chunks()
	stopped := false
	for !stopped {
		select {
		case c, ok := <-chunks:
			if !ok {
				stopped = true
				continue
			}
			r.write(c.Data)
		case <-timer.C:
			stopped = true
		case <-ctx.Done():
			stopped = true
		}
	}
	st.Stop()
	// Flush what the stream buffered before it stopped.
	for c := range chunks {
		r.write(c.Data)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("recording interrupted: %w", err)
	}
	return r.Finalize()
}

// Replay feeds discrete frames into the recording at offsets of
// index*1000/fps milliseconds and finalizes it.
func (r *Recorder) Replay(ctx context.Context, frames []sampler.Frame, fps int) (*Blob, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("invalid replay frame rate %d", fps)
	}
	r.mu.Lock()
	r.fps = fps
	r.duration = time.Duration(len(frames)) * time.Second / time.Duration(fps)
	r.mu.Unlock()

	start := time.Now()
	for i, f := range frames {
		offset := time.Duration(i*1000/fps) * time.Millisecond
		if r.Realtime {
			if wait := offset - time.Since(start); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, fmt.Errorf("replay interrupted: %w", ctx.Err())
				}
			}
		} else if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("replay interrupted: %w", err)
		}
		r.write(f.Data)
	}
	return r.Finalize()
}

// Finalize closes the recording and returns its blob.
func (r *Recorder) Finalize() (*Blob, error) {
	r.once.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.buf.Len() == 0 {
			r.err = &EmptyError{Chunks: r.empty}
			r.logger().Warn("recording finalized without data", "empty_chunks", r.empty)
			return
		}
		r.blob = &Blob{
			Data:      bytes.Clone(r.buf.Bytes()),
			MIME:      MIMEType,
			Format:    Format,
			Codec:     Codec,
			FrameRate: r.fps,
			Frames:    r.frames,
			Duration:  r.duration,
		}
		r.logger().Debug("recording finalized",
			"frames", r.frames,
			"size", humanize.Bytes(uint64(r.buf.Len())),
			"fps", r.fps,
		)
	})
	return r.blob, r.err
}
