package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/gif"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/esimov/svgif/event"
	"github.com/esimov/svgif/recorder"
	"github.com/esimov/svgif/utils"
	"github.com/hashicorp/go-hclog"
)

// maxLogLines bounds the engine output kept for error reports.
const maxLogLines = 200

// errMissingPalette is the cause reported when the encoding pass runs first.
var errMissingPalette = errors.New("palette not found, the palette generation pass must run first")

// Result is the transcoded animation.
type Result struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Transcoder runs two-pass transcode jobs on an engine.
// Jobs use fixed file names, so a transcoder runs one job at a time.
type Transcoder struct {
	mu       sync.Mutex
	engine   Engine
	logger   hclog.Logger
	logs     *event.Bus[event.Log]
	progress *event.Bus[event.Progress]
}

// New returns a transcoder running on engine.
func New(engine Engine, logger hclog.Logger) *Transcoder {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Transcoder{
		engine:   engine,
		logger:   logger,
		logs:     event.NewBus[event.Log](),
		progress: event.NewBus[event.Progress](),
	}
}

// Engine returns the engine the transcoder runs on.
func (t *Transcoder) Engine() Engine { return t.engine }

// OnLog subscribes to the engine log lines of the running passes.
func (t *Transcoder) OnLog(fn func(event.Log)) (unsubscribe func()) {
	return t.logs.Subscribe(fn)
}

// OnProgress subscribes to the progress of the running passes.
func (t *Transcoder) OnProgress(fn func(event.Progress)) (unsubscribe func()) {
	return t.progress.Subscribe(fn)
}

// Transcode stages the blob, runs both passes and returns the encoded GIF.
func (t *Transcoder) Transcode(ctx context.Context, blob *recorder.Blob, params Params) (*Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if blob == nil || len(blob.Data) == 0 {
		return nil, &Error{Pass: PassStage, Err: errors.New("nothing to transcode")}
	}
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, &Error{Pass: PassStage, Err: err}
	}
	job := NewJob(Input{Format: blob.Format, Codec: blob.Codec, FrameRate: blob.FrameRate}, params)
	logger := t.logger.With("frames", blob.Frames, "fps", params.FPS, "size", fmt.Sprintf("%dx%d", params.Width, params.Height))

	start := time.Now()
	if err := t.engine.StageFile(ctx, job.InputName, blob.Data); err != nil {
		return nil, &Error{Pass: PassStage, Err: err}
	}
	defer t.cleanup(job)
	logger.Debug("input staged", "bytes", humanize.Bytes(uint64(len(blob.Data))))

	// Drop a palette left over by a previous, failed job.
	if t.exists(ctx, job.PaletteName) {
		_ = t.engine.DeleteFile(ctx, job.PaletteName)
	}

	if err := t.generatePalette(ctx, job, blob.Duration); err != nil {
		return nil, err
	}
	if err := t.encodeWithPalette(ctx, job, blob.Duration); err != nil {
		return nil, err
	}

	data, err := t.engine.ReadFile(ctx, job.OutputName)
	if err != nil {
		return nil, &Error{Pass: PassRead, Err: err}
	}
	res := &Result{Data: data, MIME: MIMEType, Width: params.Width, Height: params.Height}
	if cfg, err := gif.DecodeConfig(bytes.NewReader(data)); err == nil {
		res.Width, res.Height = cfg.Width, cfg.Height
	}
	logger.Info("transcode done",
		"output", humanize.Bytes(uint64(len(data))),
		"elapsed", utils.FormatTime(time.Since(start)),
	)
	return res, nil
}

// GeneratePalette runs the palette generation pass of job on the staged input.
func (t *Transcoder) GeneratePalette(ctx context.Context, job Job) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.generatePalette(ctx, job, 0)
}

// EncodeWithPalette runs the encoding pass of job. The palette generated by
// the first pass must be present in the engine storage.
func (t *Transcoder) EncodeWithPalette(ctx context.Context, job Job) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.encodeWithPalette(ctx, job, 0)
}

func (t *Transcoder) generatePalette(ctx context.Context, job Job, total time.Duration) error {
	return t.run(ctx, PassPalettegen, job.PaletteArgs(), total)
}

func (t *Transcoder) encodeWithPalette(ctx context.Context, job Job, total time.Duration) error {
	if !t.exists(ctx, job.PaletteName) {
		return &Error{Pass: PassPaletteuse, Err: errMissingPalette}
	}
	return t.run(ctx, PassPaletteuse, job.EncodeArgs(), total)
}

// run executes one pass, forwarding and capturing the engine output.
func (t *Transcoder) run(ctx context.Context, pass string, args []string, total time.Duration) error {
	var (
		mu    sync.Mutex
		lines []string
	)
	unsubLog := t.engine.OnLog(func(l event.Log) {
		mu.Lock()
		lines = append(lines, l.Message)
		if len(lines) > maxLogLines {
			lines = lines[len(lines)-maxLogLines:]
		}
		mu.Unlock()
		t.logs.Publish(l)
	})
	defer unsubLog()

	unsubProgress := t.engine.OnProgress(func(p event.Progress) {
		p.Pass = pass
		if p.Progress <= 0 && total > 0 {
			p.Progress = utils.Clamp(float64(p.Time)/float64(total), 0, 1)
		}
		t.progress.Publish(p)
	})
	defer unsubProgress()

	t.logger.Debug("running pass", "pass", pass, "args", args)
	code, err := t.engine.Exec(ctx, args)

	mu.Lock()
	logs := append([]string(nil), lines...)
	mu.Unlock()

	if err != nil || code != 0 {
		t.logger.Error("pass failed", "pass", pass, "exit_code", code, "error", err)
		return &Error{Pass: pass, ExitCode: code, Logs: logs, Err: err}
	}
	return nil
}

// exists reports whether name is present in the engine root directory.
func (t *Transcoder) exists(ctx context.Context, name string) bool {
	entries, err := t.engine.ListDir(ctx, ".")
	if err != nil {
		return false
	}
	return utils.Contains(entries, name)
}

// cleanup removes the job files. Failures are only logged.
func (t *Transcoder) cleanup(job Job) {
	ctx := context.Background()
	for _, name := range []string{job.InputName, job.PaletteName, job.OutputName} {
		if !t.exists(ctx, name) {
			continue
		}
		if err := t.engine.DeleteFile(ctx, name); err != nil {
			t.logger.Warn("unable to delete staged file", "name", name, "error", err)
		}
	}
}
