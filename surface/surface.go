// Package surface implements the drawing surface frames are rendered on.
// It mirrors the small subset of a 2D canvas the capture pipeline relies on:
// clearing, drawing an image at a point in time, and encoding the current
// content as PNG, either on demand or as a continuous capture stream.
package surface

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"math"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/esimov/svgif/imop"
	"github.com/gogpu/gg"
	"github.com/hashicorp/go-hclog"
)

// MaxSize is the largest accepted surface dimension.
const MaxSize = 8192

// Fit controls how a drawable is placed on the surface.
type Fit string

const (
	// FitContain scales the drawable to fit the surface preserving its aspect ratio, centered.
	FitContain Fit = "contain"
	// FitStretch scales the drawable to the surface size.
	FitStretch Fit = "stretch"
	// FitNone draws the drawable at its intrinsic size at the origin.
	FitNone Fit = "none"
)

// Drawable is anything which can be rasterized at a point in time.
type Drawable interface {
	Width() float64
	Height() float64
	Render(width, height int, t time.Duration) (*image.RGBA, error)
}

// Options configures a Surface.
type Options struct {
	Fit        Fit
	Background string // hex color; empty leaves the surface transparent
	Composite  string // composite operation or blend mode; empty means source-over
	Logger     hclog.Logger
}

// Surface is a mutex guarded 2D drawing surface.
type Surface struct {
	mu     sync.Mutex
	dc     *gg.Context
	width  int
	height int
	fit    Fit
	bg     *gg.RGBA
	comp   *imop.Composite
	blend  *imop.Blend
	logger hclog.Logger
}

// New creates a surface of the given size.
func New(width, height int, opts Options) (*Surface, error) {
	if width <= 0 || height <= 0 || width > MaxSize || height > MaxSize {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	s := &Surface{
		dc:     gg.NewContext(width, height),
		width:  width,
		height: height,
		fit:    opts.Fit,
		comp:   imop.InitOp(),
		logger: opts.Logger,
	}
	if s.fit == "" {
		s.fit = FitContain
	}
	switch s.fit {
	case FitContain, FitStretch, FitNone:
	default:
		return nil, fmt.Errorf("unsupported fit mode %q", opts.Fit)
	}
	if s.logger == nil {
		s.logger = hclog.NewNullLogger()
	}
	if opts.Background != "" {
		bg := gg.Hex(opts.Background)
		s.bg = &bg
	}
	if op := opts.Composite; op != "" {
		if !imop.IsSupported(op) {
			return nil, fmt.Errorf("unsupported composite operation %q", op)
		}
		s.comp.Set(op)
		s.blend = imop.NewBlend()
		s.blend.Set(op)
	}
	s.Clear()
	return s, nil
}

// Width returns the surface width.
func (s *Surface) Width() int { return s.width }

// Height returns the surface height.
func (s *Surface) Height() int { return s.height }

// Clear resets the surface to the background color.
func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clear()
}

// clear resets the drawing context. Caller must hold the lock.
func (s *Surface) clear() {
	if s.bg != nil {
		s.dc.ClearWithColor(*s.bg)
		return
	}
	s.dc.Clear()
}

// Draw renders d at time t and draws it over the current surface content.
func (s *Surface) Draw(d Drawable, t time.Duration) error {
	return s.draw(d, t, false)
}

// Redraw renders d at time t, then clears the surface and draws the frame
// in a single step. Readers of the surface never observe the cleared state.
func (s *Surface) Redraw(d Drawable, t time.Duration) error {
	return s.draw(d, t, true)
}

func (s *Surface) draw(d Drawable, t time.Duration, clear bool) error {
	x, y, w, h := s.place(d.Width(), d.Height())
	img, err := d.Render(w, h, t)
	if err != nil {
		return fmt.Errorf("unable to render frame at %v: %w", t, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if clear {
		s.clear()
	}

	opts := gg.DrawImageOptions{
		X:             float64(x),
		Y:             float64(y),
		Interpolation: gg.InterpNearest,
		Opacity:       1.0,
		BlendMode:     gg.BlendNormal,
	}
	// Crop what falls outside of the surface.
	if vis := image.Rect(0, 0, w, h).Intersect(image.Rect(-x, -y, s.width-x, s.height-y)); vis != img.Bounds() {
		if vis.Empty() {
			return nil
		}
		opts.SrcRect = &vis
		opts.X, opts.Y = float64(x+vis.Min.X), float64(y+vis.Min.Y)
		opts.DstWidth, opts.DstHeight = float64(vis.Dx()), float64(vis.Dy())
	}

	switch s.mode() {
	case imop.SourceOver:
		s.dc.DrawImageEx(gg.ImageBufFromImage(img), opts)
	case imop.Multiply:
		opts.BlendMode = gg.BlendMultiply
		s.dc.DrawImageEx(gg.ImageBufFromImage(img), opts)
	case imop.Screen:
		opts.BlendMode = gg.BlendScreen
		s.dc.DrawImageEx(gg.ImageBufFromImage(img), opts)
	case imop.Overlay:
		opts.BlendMode = gg.BlendOverlay
		s.dc.DrawImageEx(gg.ImageBufFromImage(img), opts)
	default:
		s.compose(img, x, y)
	}
	return nil
}

// mode returns the active composite operation, or the blend mode when one is set.
func (s *Surface) mode() string {
	if s.blend != nil && s.blend.Get() != "" {
		return s.blend.Get()
	}
	return s.comp.Get()
}

// compose mixes img into the surface with one of the operations the drawing
// context has no native support for. Caller must hold the lock.
func (s *Surface) compose(img *image.RGBA, x, y int) {
	bounds := image.Rect(0, 0, s.width, s.height)
	backdrop := imaging.Clone(s.dc.Image())

	layer := image.NewNRGBA(bounds)
	draw.Draw(layer, img.Bounds().Add(image.Pt(x, y)), img, image.Point{}, draw.Src)

	bmp := imop.NewBitmap(bounds)
	blend := s.blend
	if blend != nil && blend.Get() == "" {
		blend = nil
	}
	s.comp.Draw(bmp, layer, backdrop, blend)

	s.dc.Clear()
	s.dc.DrawImageEx(gg.ImageBufFromImage(bmp.Img), gg.DrawImageOptions{
		Interpolation: gg.InterpNearest,
		Opacity:       1.0,
		BlendMode:     gg.BlendNormal,
	})
}

// place computes the destination rectangle of a drawable of the given
// intrinsic size according to the fit mode.
func (s *Surface) place(iw, ih float64) (x, y, w, h int) {
	if iw <= 0 || ih <= 0 {
		iw, ih = float64(s.width), float64(s.height)
	}
	switch s.fit {
	case FitStretch:
		return 0, 0, s.width, s.height
	case FitNone:
		return 0, 0, max(1, int(math.Round(iw))), max(1, int(math.Round(ih)))
	}
	scale := math.Min(float64(s.width)/iw, float64(s.height)/ih)
	w = max(1, int(math.Round(iw*scale)))
	h = max(1, int(math.Round(ih*scale)))
	return (s.width - w) / 2, (s.height - h) / 2, w, h
}

// Snapshot returns a copy of the current surface content.
func (s *Surface) Snapshot() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dc.Image()
}

// PNG encodes the current surface content as PNG.
func (s *Surface) PNG() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	if err := s.dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("unable to encode surface: %w", err)
	}
	return buf.Bytes(), nil
}

// Close releases the drawing context.
func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dc.Close()
}
