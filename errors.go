package svgif

import (
	"fmt"
	"time"

	"github.com/esimov/svgif/loader"
	"github.com/esimov/svgif/recorder"
	"github.com/esimov/svgif/sampler"
	"github.com/esimov/svgif/transcode"
)

// Conversion stages, as reported by TimeoutError.
const (
	StageValidate  = "validate"
	StageLoad      = "load"
	StageCapture   = "capture"
	StageRecord    = "record"
	StageTranscode = "transcode"
)

type (
	// LoadError is returned when the source image cannot be fetched or decoded.
	LoadError = loader.Error
	// ValidationError is returned for a request which cannot be captured.
	ValidationError = sampler.ValidationError
	// EmptyRecordingError is returned when the capture produced no data.
	EmptyRecordingError = recorder.EmptyError
	// TranscodeError is returned when a transcode pass fails. It holds the engine log.
	TranscodeError = transcode.Error
)

// TimeoutError is returned when the conversion deadline passes.
type TimeoutError struct {
	Stage string
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("conversion timed out after %v during %s", e.After, e.Stage)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
