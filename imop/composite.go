package imop

import (
	"image"
	"image/color"

	"github.com/esimov/svgif/utils"
)

// Composite operation names, as accepted by a canvas globalCompositeOperation.
const (
	Clear           = "clear"
	Copy            = "copy"
	SourceOver      = "source-over"
	DestinationOver = "destination-over"
	SourceIn        = "source-in"
	DestinationIn   = "destination-in"
	SourceOut       = "source-out"
	DestinationOut  = "destination-out"
	SourceAtop      = "source-atop"
	DestinationAtop = "destination-atop"
	Xor             = "xor"
	Lighter         = "lighter"
)

// Ops lists the supported composite operations.
var Ops = []string{
	Clear,
	Copy,
	SourceOver,
	DestinationOver,
	SourceIn,
	DestinationIn,
	SourceOut,
	DestinationOut,
	SourceAtop,
	DestinationAtop,
	Xor,
	Lighter,
}

// Bitmap is the output of a composition.
type Bitmap struct {
	Img *image.NRGBA
}

// NewBitmap allocates a transparent bitmap of the given size.
func NewBitmap(rect image.Rectangle) *Bitmap {
	return &Bitmap{
		Img: image.NewNRGBA(rect),
	}
}

// Composite holds the active composite operation.
type Composite struct {
	current string
}

// InitOp returns a Composite set to source-over.
func InitOp() *Composite {
	return &Composite{current: SourceOver}
}

// IsSupported reports whether op names a composite operation or a blend mode.
func IsSupported(op string) bool {
	return utils.Contains(Ops, op) || utils.Contains(BlendModes, op)
}

// Set changes the composite operation. Unknown operations are ignored.
func (op *Composite) Set(cop string) {
	if utils.Contains(Ops, cop) {
		op.current = cop
	}
}

// Get returns the active composite operation.
func (op *Composite) Get() string {
	return op.current
}

// Draw composes src over the dst backdrop into bitmap using the active
// operation. When blend is not nil the source colors are first mixed with the
// backdrop using the blend mode. The images must share the same bounds.
func (op *Composite) Draw(bitmap *Bitmap, src, dst *image.NRGBA, blend *Blend) {
	rect := src.Bounds()
	if bitmap == nil {
		bitmap = NewBitmap(rect)
	}

	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			s := src.NRGBAAt(x, y)
			b := dst.NRGBAAt(x, y)

			as, ab := float64(s.A)/255, float64(b.A)/255
			cs := [3]float64{float64(s.R) / 255, float64(s.G) / 255, float64(s.B) / 255}
			cb := [3]float64{float64(b.R) / 255, float64(b.G) / 255, float64(b.B) / 255}

			if blend != nil && blend.OpType != "" {
				for i := range cs {
					cs[i] = (1-ab)*cs[i] + ab*blend.mix(cb[i], cs[i])
				}
			}

			// Porter-Duff fractions of the source and the backdrop.
			var fs, fb float64
			switch op.current {
			case Clear:
			case Copy:
				fs = 1
			case SourceOver:
				fs, fb = 1, 1-as
			case DestinationOver:
				fs, fb = 1-ab, 1
			case SourceIn:
				fs = ab
			case DestinationIn:
				fb = as
			case SourceOut:
				fs = 1 - ab
			case DestinationOut:
				fb = 1 - as
			case SourceAtop:
				fs, fb = ab, 1-as
			case DestinationAtop:
				fs, fb = 1-ab, as
			case Xor:
				fs, fb = 1-ab, 1-as
			case Lighter:
				fs, fb = 1, 1
			}

			a := utils.Min(as*fs+ab*fb, 1)
			var out color.NRGBA
			if a > 0 {
				var c [3]uint8
				for i := range c {
					v := (as*fs*cs[i] + ab*fb*cb[i]) / a
					c[i] = uint8(utils.Clamp(v, 0, 1)*255 + 0.5)
				}
				out = color.NRGBA{R: c[0], G: c[1], B: c[2], A: uint8(a*255 + 0.5)}
			}
			bitmap.Img.SetNRGBA(x, y, out)
		}
	}
}
