package transcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/esimov/svgif/event"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

// DefaultFFmpegBinary is the name of the ffmpeg executable looked up in the PATH.
const DefaultFFmpegBinary = "ffmpeg"

// FFmpegEngine runs commands with the ffmpeg binary inside a private
// working directory, which acts as the engine storage.
type FFmpegEngine struct {
	binary   string
	dir      string
	logger   hclog.Logger
	logs     *event.Bus[event.Log]
	progress *event.Bus[event.Progress]
}

// NewFFmpegEngine locates the binary and creates the working directory.
func NewFFmpegEngine(binary string, logger hclog.Logger) (*FFmpegEngine, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg binary not available: %w", err)
	}
	dir := filepath.Join(os.TempDir(), "svgif-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("unable to create engine directory: %w", err)
	}
	logger.Debug("ffmpeg engine ready", "binary", path, "dir", dir)

	return &FFmpegEngine{
		binary:   path,
		dir:      dir,
		logger:   logger,
		logs:     event.NewBus[event.Log](),
		progress: event.NewBus[event.Progress](),
	}, nil
}

// Dir returns the working directory of the engine.
func (e *FFmpegEngine) Dir() string { return e.dir }

// path resolves name inside the working directory.
func (e *FFmpegEngine) path(name string) string {
	return filepath.Join(e.dir, filepath.Clean("/"+name))
}

// StageFile implements Engine.
func (e *FFmpegEngine) StageFile(_ context.Context, name string, data []byte) error {
	return os.WriteFile(e.path(name), data, 0o600)
}

// ReadFile implements Engine.
func (e *FFmpegEngine) ReadFile(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(e.path(name))
}

// DeleteFile implements Engine.
func (e *FFmpegEngine) DeleteFile(_ context.Context, name string) error {
	return os.Remove(e.path(name))
}

// CreateDir implements Engine.
func (e *FFmpegEngine) CreateDir(_ context.Context, name string) error {
	return os.MkdirAll(e.path(name), 0o700)
}

// ListDir implements Engine.
func (e *FFmpegEngine) ListDir(_ context.Context, name string) ([]string, error) {
	entries, err := os.ReadDir(e.path(name))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// OnLog implements Engine.
func (e *FFmpegEngine) OnLog(fn func(event.Log)) func() { return e.logs.Subscribe(fn) }

// OnProgress implements Engine.
func (e *FFmpegEngine) OnProgress(fn func(event.Progress)) func() { return e.progress.Subscribe(fn) }

// Exec implements Engine. The standard error lines of ffmpeg are published as
// log events, the machine readable progress report as progress events.
func (e *FFmpegEngine) Exec(ctx context.Context, args []string) (int, error) {
	argv := append([]string{"-hide_banner", "-nostdin", "-progress", "pipe:1"}, args...)
	cmd := exec.CommandContext(ctx, e.binary, argv...)
	cmd.Dir = e.dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, err
	}
	e.logger.Debug("exec", "cmd", e.binary+" "+strings.Join(argv, " "))
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("unable to start ffmpeg: %w", err)
	}

	var g errgroup.Group
	g.Go(func() error {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				e.logs.Publish(event.Log{Type: "stderr", Message: line})
			}
		}
		return scanner.Err()
	})
	g.Go(func() error {
		return parseProgress(stdout, e.progress.Publish)
	})
	readErr := g.Wait()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return exitErr.ExitCode(), nil
		}
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		return -1, err
	}
	if readErr != nil {
		e.logger.Warn("incomplete ffmpeg output", "error", readErr)
	}
	return 0, nil
}

// Close removes the working directory.
func (e *FFmpegEngine) Close() error {
	return os.RemoveAll(e.dir)
}
