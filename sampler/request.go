package sampler

import (
	"fmt"
	"math"
	"time"
)

// MaxDimension is the largest accepted output width or height.
const MaxDimension = 8192

// Request describes what to capture.
type Request struct {
	DurationSeconds float64
	FPS             int
	Width           int
	Height          int
}

// ValidationError reports a frame request which cannot be captured.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Validate checks the request before any rendering starts.
func (r Request) Validate() error {
	switch {
	case r.FPS <= 0:
		return &ValidationError{Field: "fps", Value: r.FPS, Reason: "must be positive"}
	case math.IsNaN(r.DurationSeconds) || math.IsInf(r.DurationSeconds, 0):
		return &ValidationError{Field: "duration", Value: r.DurationSeconds, Reason: "must be a finite number"}
	case r.DurationSeconds <= 0:
		return &ValidationError{Field: "duration", Value: r.DurationSeconds, Reason: "must be positive"}
	case r.TotalFrames() < 1:
		return &ValidationError{
			Field:  "duration",
			Value:  r.DurationSeconds,
			Reason: fmt.Sprintf("too short to hold a single frame at %d fps", r.FPS),
		}
	case r.Width <= 0 || r.Width > MaxDimension:
		return &ValidationError{Field: "width", Value: r.Width, Reason: fmt.Sprintf("must be between 1 and %d", MaxDimension)}
	case r.Height <= 0 || r.Height > MaxDimension:
		return &ValidationError{Field: "height", Value: r.Height, Reason: fmt.Sprintf("must be between 1 and %d", MaxDimension)}
	}
	return nil
}

// TotalFrames returns the number of frames a still-frame capture produces.
func (r Request) TotalFrames() int {
	return int(math.Round(r.DurationSeconds * float64(r.FPS)))
}

// Interval returns the time between two consecutive frames.
func (r Request) Interval() time.Duration {
	if r.FPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(r.FPS)
}

// Duration returns the capture window.
func (r Request) Duration() time.Duration {
	return time.Duration(r.DurationSeconds * float64(time.Second))
}
