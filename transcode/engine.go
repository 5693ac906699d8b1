// Package transcode turns a recorded frame container into a palette optimized
// looping GIF with a two-pass encode: the first pass computes the optimal
// palette of the whole animation, the second one maps every frame onto it.
//
// The passes run on an Engine, an ffmpeg compatible command interpreter with
// its own addressable file storage. Two engines are provided: one driving the
// ffmpeg binary, and a pure Go one which understands the subset of arguments
// the job builder produces.
package transcode

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/esimov/svgif/event"
	"github.com/hashicorp/go-hclog"
)

// Engine kinds accepted by NewEngine.
const (
	EngineAuto   = "auto"
	EngineFFmpeg = "ffmpeg"
	EngineNative = "native"
)

// Engine executes ffmpeg style commands over its own file storage.
type Engine interface {
	// StageFile writes data under name.
	StageFile(ctx context.Context, name string, data []byte) error
	// ReadFile returns the content stored under name.
	ReadFile(ctx context.Context, name string) ([]byte, error)
	// DeleteFile removes name from the storage.
	DeleteFile(ctx context.Context, name string) error
	// CreateDir creates a directory.
	CreateDir(ctx context.Context, name string) error
	// ListDir returns the names of the entries of a directory; "." is the root.
	ListDir(ctx context.Context, name string) ([]string, error)
	// Exec runs a command and returns its exit code. A non-nil error means
	// the command could not run to completion.
	Exec(ctx context.Context, args []string) (int, error)
	// OnLog subscribes to the engine log lines.
	OnLog(fn func(event.Log)) (unsubscribe func())
	// OnProgress subscribes to the engine progress reports.
	OnProgress(fn func(event.Progress)) (unsubscribe func())
	// Close releases the engine storage.
	Close() error
}

// NewEngine creates an engine of the given kind. The auto kind selects the
// ffmpeg engine when the binary is found in the PATH, the native one otherwise.
func NewEngine(kind string, logger hclog.Logger) (Engine, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	switch kind {
	case EngineAuto, "":
		if _, err := exec.LookPath(DefaultFFmpegBinary); err == nil {
			return NewFFmpegEngine(DefaultFFmpegBinary, logger)
		}
		logger.Debug("ffmpeg not found in PATH, using the native engine")
		return NewNativeEngine(logger), nil
	case EngineFFmpeg:
		return NewFFmpegEngine(DefaultFFmpegBinary, logger)
	case EngineNative:
		return NewNativeEngine(logger), nil
	}
	return nil, fmt.Errorf("unknown transcode engine %q", kind)
}
