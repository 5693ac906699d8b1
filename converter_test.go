package svgif

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/gif"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/esimov/svgif/config"
	"github.com/esimov/svgif/event"
	"github.com/esimov/svgif/sampler"
	"github.com/esimov/svgif/surface"
	"github.com/esimov/svgif/transcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoColorSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="64" height="32" viewBox="0 0 64 32">
  <rect width="32" height="32" fill="#ff0000"/>
  <rect x="32" width="32" height="32" fill="#0000ff"/>
</svg>`

const blinkSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="32" height="32" viewBox="0 0 32 32">
  <rect width="32" height="32" fill="#ff0000">
    <set attributeName="fill" to="#0000ff" begin="1s"/>
  </rect>
</svg>`

func dataURL(markup string) string {
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(markup))
}

func newConverter(t *testing.T, mutate func(*config.Config), opts ...func(*Options)) *Converter {
	t.Helper()
	cfg, err := config.Profile(config.DefaultProfile)
	require.NoError(t, err)
	cfg.Duration, cfg.FPS, cfg.Width, cfg.Height = 2, 10, 64, 32
	cfg.Engine = transcode.EngineNative
	if mutate != nil {
		mutate(cfg)
	}
	o := Options{Config: cfg, Engine: transcode.NewNativeEngine(nil)}
	for _, fn := range opts {
		fn(&o)
	}
	c, err := New(o)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func decode(t *testing.T, res *Result) *gif.GIF {
	t.Helper()
	anim, err := gif.DecodeAll(bytes.NewReader(res.Data))
	require.NoError(t, err)
	return anim
}

func isRed(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r>>8 > 200 && g>>8 < 50 && b>>8 < 50
}

func isBlue(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r>>8 < 50 && g>>8 < 50 && b>>8 > 200
}

func TestConvert_StaticImage(t *testing.T) {
	c := newConverter(t, nil)

	var (
		mu       sync.Mutex
		frames   []event.Frame
		passes   = make(map[string]bool)
		logLines int
	)
	c.OnFrame(func(f event.Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	})
	c.OnProgress(func(p event.Progress) {
		mu.Lock()
		passes[p.Pass] = true
		mu.Unlock()
	})
	c.OnLog(func(event.Log) {
		mu.Lock()
		logLines++
		mu.Unlock()
	})

	path := filepath.Join(t.TempDir(), "flag.svg")
	require.NoError(t, os.WriteFile(path, []byte(twoColorSVG), 0o600))

	res, err := c.Convert(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "image/gif", res.MIME)
	assert.Equal(t, 64, res.Width)
	assert.Equal(t, 32, res.Height)
	assert.Equal(t, 20, res.Frames)
	assert.NotEmpty(t, res.ID)

	anim := decode(t, res)
	assert.Len(t, anim.Image, 20)
	assert.Equal(t, 0, anim.LoopCount)
	assert.True(t, isRed(anim.Image[0].At(8, 16)))
	assert.True(t, isBlue(anim.Image[0].At(56, 16)))

	require.Len(t, frames, 20)
	assert.Equal(t, event.Frame{Current: 20, Total: 20}, frames[19])
	assert.True(t, passes[transcode.PassPalettegen])
	assert.True(t, passes[transcode.PassPaletteuse])
	assert.Positive(t, logLines)
}

func TestConvert_Animation(t *testing.T) {
	c := newConverter(t, func(cfg *config.Config) { cfg.Width, cfg.Height = 32, 32 })

	res, err := c.ConvertReader(context.Background(), "blink", strings.NewReader(blinkSVG))
	require.NoError(t, err)

	anim := decode(t, res)
	require.Len(t, anim.Image, 20)
	assert.True(t, isRed(anim.Image[0].At(16, 16)))
	assert.True(t, isRed(anim.Image[8].At(16, 16)))
	assert.True(t, isBlue(anim.Image[12].At(16, 16)))
	assert.True(t, isBlue(anim.Image[19].At(16, 16)))
}

func TestConvert_Idempotent(t *testing.T) {
	// Each converter runs on its own engine instance.
	a, b := newConverter(t, nil), newConverter(t, nil)
	require.NotSame(t, a.engine, b.engine)

	first, err := a.Convert(context.Background(), dataURL(twoColorSVG))
	require.NoError(t, err)
	second, err := b.Convert(context.Background(), dataURL(twoColorSVG))
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data)
	assert.NotEqual(t, first.ID, second.ID)

	again, err := a.Convert(context.Background(), dataURL(twoColorSVG))
	require.NoError(t, err)
	assert.Equal(t, first.Data, again.Data)
}

func TestConvert_DerivedSize(t *testing.T) {
	c := newConverter(t, func(cfg *config.Config) {
		cfg.Duration, cfg.Width, cfg.Height = 0.5, 128, -1
	})

	res, err := c.Convert(context.Background(), dataURL(twoColorSVG))
	require.NoError(t, err)
	assert.Equal(t, 128, res.Width)
	assert.Equal(t, 64, res.Height)
	assert.Equal(t, 5, res.Frames)
}

func TestConvert_LoadFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	uri := srv.URL + "/spinner.svg"
	srv.Close()

	c := newConverter(t, nil)
	captured := 0
	c.OnFrame(func(event.Frame) { captured++ })

	_, err := c.Convert(context.Background(), uri)
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, uri, lerr.Source)
	assert.Zero(t, captured)
}

func TestConvert_InvalidRequest(t *testing.T) {
	for name, mutate := range map[string]func(*config.Config){
		"fps":      func(cfg *config.Config) { cfg.FPS = 0 },
		"duration": func(cfg *config.Config) { cfg.Duration = 0 },
		"width":    func(cfg *config.Config) { cfg.Width = 10000 },
	} {
		t.Run(name, func(t *testing.T) {
			c := newConverter(t, mutate)

			// The source is never fetched.
			_, err := c.Convert(context.Background(), "http://127.0.0.1:1/never.svg")
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, name, verr.Field)
		})
	}

	c := newConverter(t, func(cfg *config.Config) { cfg.Encoding.MaxColors = 1 })
	_, err := c.Convert(context.Background(), dataURL(twoColorSVG))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "encoding parameters", verr.Field)
}

func TestConvert_DerivedSizeTooLarge(t *testing.T) {
	wide := strings.Replace(twoColorSVG, `width="64" height="32"`, `width="64000" height="32"`, 1)
	c := newConverter(t, func(cfg *config.Config) { cfg.Width, cfg.Height = -1, 32 })

	_, err := c.Convert(context.Background(), dataURL(wide))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "width", verr.Field)
}

// stalled never captures anything until the context ends.
type stalled struct{}

func (stalled) Capture(ctx context.Context, _ surface.Drawable, _ *surface.Surface, _ sampler.Request) (*sampler.RawCapture, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestConvert_Timeout(t *testing.T) {
	c := newConverter(t,
		func(cfg *config.Config) { cfg.Timeout = 50 * time.Millisecond },
		func(o *Options) { o.Strategy = stalled{} },
	)

	_, err := c.Convert(context.Background(), dataURL(twoColorSVG))
	var terr *TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StageCapture, terr.Stage)
	assert.Equal(t, 50*time.Millisecond, terr.After)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// silent returns a capture without any frame.
type silent struct{}

func (silent) Capture(_ context.Context, _ surface.Drawable, _ *surface.Surface, req sampler.Request) (*sampler.RawCapture, error) {
	return &sampler.RawCapture{FPS: req.FPS, Duration: req.Duration()}, nil
}

func TestConvert_EmptyRecording(t *testing.T) {
	c := newConverter(t, nil, func(o *Options) { o.Strategy = silent{} })

	_, err := c.Convert(context.Background(), dataURL(twoColorSVG))
	var eerr *EmptyRecordingError
	assert.ErrorAs(t, err, &eerr)
}

func TestConvert_TranscodeFailure(t *testing.T) {
	c := newConverter(t, func(cfg *config.Config) { cfg.Encoding.Dither = transcode.DitherNone })
	// A corrupt palette makes the native engine fail the second pass.
	c.transcoder = transcode.New(&brokenPalette{NativeEngine: transcode.NewNativeEngine(nil)}, nil)

	_, err := c.Convert(context.Background(), dataURL(twoColorSVG))
	var terr *TranscodeError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, transcode.PassPaletteuse, terr.Pass)
	assert.NotEmpty(t, terr.Logs)
}

// brokenPalette corrupts the palette written by the first pass.
type brokenPalette struct {
	*transcode.NativeEngine
}

func (e *brokenPalette) Exec(ctx context.Context, args []string) (int, error) {
	code, err := e.NativeEngine.Exec(ctx, args)
	if code == 0 && err == nil && args[len(args)-1] == transcode.PaletteName {
		_ = e.NativeEngine.StageFile(ctx, transcode.PaletteName, []byte("corrupt"))
	}
	return code, err
}

func TestConvert_LiveStream(t *testing.T) {
	c := newConverter(t, func(cfg *config.Config) {
		cfg.Strategy = sampler.Live
		cfg.Duration = 0.5
	})

	res, err := c.Convert(context.Background(), dataURL(twoColorSVG))
	require.NoError(t, err)
	assert.Positive(t, res.Frames)

	anim := decode(t, res)
	assert.NotEmpty(t, anim.Image)
	assert.Equal(t, image.Rect(0, 0, 64, 32), anim.Image[0].Bounds())
}

func TestConvert_Defaults(t *testing.T) {
	c, err := New(Options{Engine: transcode.NewNativeEngine(nil)})
	require.NoError(t, err)
	defer c.Close()

	cfg := c.Config()
	assert.Equal(t, 5.0, cfg.Duration)
	assert.Equal(t, 10, cfg.FPS)
	assert.Equal(t, 1920, cfg.Width)
	assert.Equal(t, 1080, cfg.Height)

	bad := cfg
	bad.Strategy = "burst"
	_, err = New(Options{Config: &bad})
	assert.Error(t, err)
}

func TestConvert_HandBuiltConfig(t *testing.T) {
	cfg := &config.Config{Duration: 0.5, FPS: 10, Width: 64, Height: 32}
	c, err := New(Options{Config: cfg, Engine: transcode.NewNativeEngine(nil)})
	require.NoError(t, err)
	defer c.Close()

	res, err := c.Convert(context.Background(), dataURL(twoColorSVG))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Frames)
	assert.Equal(t, "image/gif", res.MIME)
}
