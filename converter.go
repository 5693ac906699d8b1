package svgif

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/esimov/svgif/config"
	"github.com/esimov/svgif/event"
	"github.com/esimov/svgif/loader"
	"github.com/esimov/svgif/recorder"
	"github.com/esimov/svgif/sampler"
	"github.com/esimov/svgif/surface"
	"github.com/esimov/svgif/svg"
	"github.com/esimov/svgif/transcode"
	"github.com/esimov/svgif/utils"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// Options configures a Converter. Only Config is commonly set, the other
// fields replace the collaborators the converter creates on its own.
type Options struct {
	// Config holds the conversion settings, the default profile when nil.
	Config *config.Config
	// Scheduler delivers the redraw opportunities of the capture.
	// Still captures use a virtual clock, live ones the wall clock when nil.
	Scheduler sampler.Scheduler
	// Strategy replaces the capture strategy selected by the configuration.
	Strategy sampler.Strategy
	// Engine runs the transcode passes. When nil an engine of the configured
	// kind is created, and released by Close.
	Engine transcode.Engine
	// Loader fetches the source images.
	Loader *loader.Loader
	// Composite is the composite operation or blend mode used to draw the
	// image on the surface.
	Composite string
	Logger    hclog.Logger
}

// Converter turns animated SVG images into looping GIF animations.
// Conversions run one at a time.
type Converter struct {
	mu         sync.Mutex
	cfg        config.Config
	composite  string
	logger     hclog.Logger
	loader     *loader.Loader
	strategy   sampler.Strategy
	engine     transcode.Engine
	ownEngine  bool
	transcoder *transcode.Transcoder
	frames     *event.Bus[event.Frame]
}

// New returns a converter. The configuration is validated up front, the
// capture request only when a conversion starts.
func New(opts Options) (*Converter, error) {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Profile(config.DefaultProfile); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Converter{
		cfg:       *cfg,
		composite: opts.Composite,
		logger:    logger,
		loader:    opts.Loader,
		engine:    opts.Engine,
		frames:    event.NewBus[event.Frame](),
	}
	if c.loader == nil {
		c.loader = loader.New(logger.Named("loader"))
	}

	c.strategy = opts.Strategy
	if c.strategy == nil {
		strategy, err := sampler.New(cfg.Strategy, opts.Scheduler, c.frames, logger.Named("sampler"))
		if err != nil {
			return nil, err
		}
		c.strategy = strategy
	}

	if c.engine == nil {
		engine, err := transcode.NewEngine(cfg.Engine, logger.Named("engine"))
		if err != nil {
			return nil, err
		}
		c.engine, c.ownEngine = engine, true
	}
	c.transcoder = transcode.New(c.engine, logger.Named("transcode"))

	return c, nil
}

// Config returns the settings the converter runs with.
func (c *Converter) Config() config.Config { return c.cfg }

// OnFrame subscribes to the frame capture progress.
func (c *Converter) OnFrame(fn func(event.Frame)) (unsubscribe func()) {
	return c.frames.Subscribe(fn)
}

// OnLog subscribes to the transcode engine log lines.
func (c *Converter) OnLog(fn func(event.Log)) (unsubscribe func()) {
	return c.transcoder.OnLog(fn)
}

// OnProgress subscribes to the transcode progress.
func (c *Converter) OnProgress(fn func(event.Progress)) (unsubscribe func()) {
	return c.transcoder.OnProgress(fn)
}

// Close releases the engine created by the converter.
func (c *Converter) Close() error {
	if c.ownEngine {
		return c.engine.Close()
	}
	return nil
}

// Convert loads the image found at source and converts it.
// The source is an http(s) URL, a data URL, a file path or "-" for stdin.
func (c *Converter) Convert(ctx context.Context, source string) (*Result, error) {
	return c.run(ctx, source, func(ctx context.Context) (*svg.Asset, error) {
		return c.loader.Load(ctx, source)
	})
}

// ConvertReader converts the image read from r. The name identifies the
// source in errors and logs.
func (c *Converter) ConvertReader(ctx context.Context, name string, r io.Reader) (*Result, error) {
	return c.run(ctx, name, func(ctx context.Context) (*svg.Asset, error) {
		return c.loader.LoadReader(ctx, name, r)
	})
}

func (c *Converter) run(ctx context.Context, source string, load func(context.Context) (*svg.Asset, error)) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.NewString()
	logger := c.logger.With("job", id[:8])
	start := time.Now()

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	stage := StageValidate
	fail := func(err error) (*Result, error) {
		if c.cfg.Timeout > 0 && errors.Is(err, context.DeadlineExceeded) {
			err = &TimeoutError{Stage: stage, After: c.cfg.Timeout, Err: err}
		}
		logger.Error("conversion failed", "stage", stage, "error", err)
		return nil, err
	}

	req := c.cfg.Request()
	params := c.cfg.Params().WithDefaults()
	if err := validate(req, params); err != nil {
		return fail(err)
	}

	stage = StageLoad
	logger.Info("loading image", "source", shorten(source))
	asset, err := load(ctx)
	if err != nil {
		return fail(err)
	}
	req.Width, req.Height = deriveSize(req.Width, req.Height, asset.Width(), asset.Height())

	stage = StageCapture
	if err := req.Validate(); err != nil {
		return fail(err)
	}
	surf, err := surface.New(req.Width, req.Height, surface.Options{
		Fit:        surface.Fit(c.cfg.Fit),
		Background: c.cfg.Background,
		Composite:  c.composite,
		Logger:     logger.Named("surface"),
	})
	if err != nil {
		return fail(err)
	}
	defer surf.Close()

	logger.Info("capturing frames",
		"frames", req.TotalFrames(),
		"fps", req.FPS,
		"size", fmt.Sprintf("%dx%d", req.Width, req.Height),
	)
	raw, err := c.strategy.Capture(ctx, asset, surf, req)
	if err != nil {
		return fail(err)
	}

	stage = StageRecord
	rec := recorder.New(logger.Named("recorder"))
	rec.Realtime = c.cfg.Realtime

	var blob *recorder.Blob
	if raw.Live() {
		blob, err = rec.Record(ctx, raw.Stream, raw.Duration)
		if werr := raw.Wait(); err == nil && werr != nil && !errors.Is(werr, context.Canceled) {
			err = werr
		}
	} else {
		blob, err = rec.Replay(ctx, raw.Frames, raw.FPS)
	}
	if err != nil {
		return fail(err)
	}

	stage = StageTranscode
	res, err := c.transcoder.Transcode(ctx, blob, params)
	if err != nil {
		return fail(err)
	}

	logger.Info("conversion done",
		"frames", blob.Frames,
		"size", humanize.Bytes(uint64(len(res.Data))),
		"elapsed", utils.FormatTime(time.Since(start)),
	)
	return &Result{
		ID:     id,
		Data:   res.Data,
		MIME:   res.MIME,
		Width:  res.Width,
		Height: res.Height,
		Frames: blob.Frames,
	}, nil
}

// validate checks the request and the encoding parameters before any work.
// Dimensions derived from the image aspect ratio are checked once known.
func validate(req sampler.Request, params transcode.Params) error {
	probe := req
	if probe.Width == -1 && probe.Height > 0 {
		probe.Width = 1
	}
	if probe.Height == -1 && probe.Width > 0 {
		probe.Height = 1
	}
	if err := probe.Validate(); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return &ValidationError{Field: "encoding parameters", Value: params, Reason: err.Error()}
	}
	return nil
}

// deriveSize replaces a -1 dimension with the one matching the aspect ratio
// of the image.
func deriveSize(w, h int, iw, ih float64) (int, int) {
	if iw <= 0 || ih <= 0 {
		return w, h
	}
	switch {
	case w < 0 && h > 0:
		w = max(1, int(math.Round(float64(h)*iw/ih)))
	case h < 0 && w > 0:
		h = max(1, int(math.Round(float64(w)*ih/iw)))
	}
	return w, h
}

func shorten(source string) string {
	if utils.IsDataUrl(source) && len(source) > 48 {
		return source[:45] + "..."
	}
	return source
}

// Convert converts the image found at source with the given settings,
// the default profile when cfg is nil.
func Convert(ctx context.Context, source string, cfg *config.Config) (*Result, error) {
	c, err := New(Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return c.Convert(ctx, source)
}
