package event

import "time"

// Log is a single line emitted by the transcoding engine.
type Log struct {
	Type    string
	Message string
}

// Progress reports the advance of an engine pass.
// Progress is a ratio in the [0, 1] range, Time the media time reached so far.
type Progress struct {
	Pass     string
	Time     time.Duration
	Progress float64
}

// Frame reports the number of frames captured so far.
type Frame struct {
	Current int
	Total   int
}
