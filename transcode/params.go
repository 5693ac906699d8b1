package transcode

import (
	"fmt"

	"github.com/esimov/svgif/utils"
)

// Dithering algorithms accepted by the paletteuse filter.
const (
	DitherBayer          = "bayer"
	DitherFloydSteinberg = "floyd_steinberg"
	DitherSierra2        = "sierra2"
	DitherSierra24A      = "sierra2_4a"
	DitherHeckbert       = "heckbert"
	DitherNone           = "none"
)

// Palette statistics modes accepted by the palettegen filter.
const (
	StatsFull   = "full"
	StatsDiff   = "diff"
	StatsSingle = "single"
)

var (
	ditherModes = []string{DitherBayer, DitherFloydSteinberg, DitherSierra2, DitherSierra24A, DitherHeckbert, DitherNone}
	statsModes  = []string{StatsFull, StatsDiff, StatsSingle}
	scaleFlags  = []string{"lanczos", "bicubic", "bilinear", "neighbor", "area", "fast_bilinear"}
)

// Params holds the tunable encoding parameters of a transcode job.
type Params struct {
	FPS           int     // output frame rate
	Width         int     // output width, -1 keeps the aspect ratio
	Height        int     // output height, -1 keeps the aspect ratio
	ScaleFlags    string  // scaler algorithm
	MaxColors     int     // palette size, 2..256
	StatsMode     string  // palette statistics mode
	Dither        string  // dithering algorithm
	BayerScale    int     // bayer pattern strength, 0..5, only used with bayer dithering, defaulted with Dither
	PTSMultiplier float64 // presentation timestamp multiplier, >1 slows the animation down
	Unsharp       string  // optional unsharp filter options, e.g. "5:5:1.0"
	Loop          int     // gif loop count, 0 loops forever, -1 plays once
}

// DefaultParams returns the default encoding parameters.
func DefaultParams() Params {
	return Params{
		FPS:           10,
		Width:         1920,
		Height:        1080,
		ScaleFlags:    "lanczos",
		MaxColors:     256,
		StatsMode:     StatsFull,
		Dither:        DitherBayer,
		BayerScale:    5,
		PTSMultiplier: 1,
		Loop:          0,
	}
}

// WithDefaults returns p with its zero values replaced by the defaults.
func (p Params) WithDefaults() Params {
	def := DefaultParams()
	if p.FPS == 0 {
		p.FPS = def.FPS
	}
	if p.Width == 0 {
		p.Width = def.Width
	}
	if p.Height == 0 {
		p.Height = def.Height
	}
	if p.ScaleFlags == "" {
		p.ScaleFlags = def.ScaleFlags
	}
	if p.MaxColors == 0 {
		p.MaxColors = def.MaxColors
	}
	if p.StatsMode == "" {
		p.StatsMode = def.StatsMode
	}
	if p.Dither == "" {
		// The bayer scale only falls back together with the dithering,
		// so an explicit bayer dither keeps its scale, zero included.
		p.Dither = def.Dither
		if p.BayerScale == 0 {
			p.BayerScale = def.BayerScale
		}
	}
	if p.PTSMultiplier == 0 {
		p.PTSMultiplier = def.PTSMultiplier
	}
	return p
}

// Validate checks the parameters against the ranges the filters accept.
func (p Params) Validate() error {
	switch {
	case p.FPS <= 0:
		return fmt.Errorf("invalid output frame rate %d", p.FPS)
	case p.Width == 0 || p.Width < -1:
		return fmt.Errorf("invalid output width %d", p.Width)
	case p.Height == 0 || p.Height < -1:
		return fmt.Errorf("invalid output height %d", p.Height)
	case p.Width == -1 && p.Height == -1:
		return fmt.Errorf("output width and height cannot both be derived")
	case !utils.Contains(scaleFlags, p.ScaleFlags):
		return fmt.Errorf("unsupported scale flags %q", p.ScaleFlags)
	case p.MaxColors < 2 || p.MaxColors > 256:
		return fmt.Errorf("max colors must be between 2 and 256, got %d", p.MaxColors)
	case !utils.Contains(statsModes, p.StatsMode):
		return fmt.Errorf("unsupported stats mode %q", p.StatsMode)
	case !utils.Contains(ditherModes, p.Dither):
		return fmt.Errorf("unsupported dither mode %q", p.Dither)
	case p.BayerScale < 0 || p.BayerScale > 5:
		return fmt.Errorf("bayer scale must be between 0 and 5, got %d", p.BayerScale)
	case p.PTSMultiplier <= 0:
		return fmt.Errorf("invalid pts multiplier %v", p.PTSMultiplier)
	case p.Loop < -1:
		return fmt.Errorf("invalid loop count %d", p.Loop)
	}
	return nil
}
