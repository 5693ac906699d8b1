package transcode

import (
	"image"
	"image/color"
	"sort"

	"github.com/esimov/svgif/utils"
)

// alphaThreshold is the alpha below which a pixel maps to the transparent entry.
const alphaThreshold = 128

// histogram counts the colors of a frame sequence with 5 bits per channel,
// keeping the channel sums of every bucket to recover the exact averages.
type histogram struct {
	buckets     [1 << 15]struct{ n, r, g, b uint64 }
	transparent uint64
}

// add counts the pixels of img. When prev is not nil only the pixels which
// changed since the previous frame are counted.
func (h *histogram) add(img, prev *image.NRGBA) {
	rect := img.Bounds()
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		row := img.Pix[img.PixOffset(rect.Min.X, y):]
		var prow []uint8
		if prev != nil {
			prow = prev.Pix[prev.PixOffset(rect.Min.X, y):]
		}
		for x := 0; x < rect.Dx(); x++ {
			i := x * 4
			if prow != nil && row[i] == prow[i] && row[i+1] == prow[i+1] && row[i+2] == prow[i+2] && row[i+3] == prow[i+3] {
				continue
			}
			if row[i+3] < alphaThreshold {
				h.transparent++
				continue
			}
			r, g, b := row[i], row[i+1], row[i+2]
			k := int(r>>3)<<10 | int(g>>3)<<5 | int(b>>3)
			bk := &h.buckets[k]
			bk.n++
			bk.r += uint64(r)
			bk.g += uint64(g)
			bk.b += uint64(b)
		}
	}
}

type entry struct {
	c [3]uint8 // average color of the bucket
	n uint64
	s [3]uint64 // channel sums
}

// medianCut reduces the histogram to at most n colors. The result only
// depends on the histogram, so equal inputs give identical palettes.
func (h *histogram) medianCut(n int) []color.NRGBA {
	var entries []entry
	for _, bk := range h.buckets {
		if bk.n == 0 {
			continue
		}
		entries = append(entries, entry{
			c: [3]uint8{uint8(bk.r / bk.n), uint8(bk.g / bk.n), uint8(bk.b / bk.n)},
			n: bk.n,
			s: [3]uint64{bk.r, bk.g, bk.b},
		})
	}
	if len(entries) == 0 || n <= 0 {
		return nil
	}

	boxes := [][]entry{entries}
	for len(boxes) < n {
		best, axis, widest := -1, 0, 0
		for i, box := range boxes {
			if len(box) < 2 {
				continue
			}
			if ax, w := longestAxis(box); w > widest {
				best, axis, widest = i, ax, w
			}
		}
		if best < 0 {
			break
		}
		box := boxes[best]
		sort.SliceStable(box, func(i, j int) bool { return box[i].c[axis] < box[j].c[axis] })

		var total, acc uint64
		for _, e := range box {
			total += e.n
		}
		cut := 1
		for i, e := range box[:len(box)-1] {
			acc += e.n
			cut = i + 1
			if acc*2 >= total {
				break
			}
		}
		boxes[best] = box[:cut:cut]
		boxes = append(boxes, box[cut:])
	}

	pal := make([]color.NRGBA, 0, len(boxes))
	for _, box := range boxes {
		var n uint64
		var s [3]uint64
		for _, e := range box {
			n += e.n
			for c := range s {
				s[c] += e.s[c]
			}
		}
		pal = append(pal, color.NRGBA{
			R: uint8((s[0] + n/2) / n),
			G: uint8((s[1] + n/2) / n),
			B: uint8((s[2] + n/2) / n),
			A: 0xff,
		})
	}
	sort.Slice(pal, func(i, j int) bool {
		li, lj := luma(pal[i]), luma(pal[j])
		if li != lj {
			return li < lj
		}
		return uint32(pal[i].R)<<16|uint32(pal[i].G)<<8|uint32(pal[i].B) <
			uint32(pal[j].R)<<16|uint32(pal[j].G)<<8|uint32(pal[j].B)
	})
	return pal
}

func longestAxis(box []entry) (axis, width int) {
	for c := 0; c < 3; c++ {
		lo, hi := 255, 0
		for _, e := range box {
			v := int(e.c[c])
			lo, hi = utils.Min(lo, v), utils.Max(hi, v)
		}
		if hi-lo > width {
			axis, width = c, hi-lo
		}
	}
	return axis, width
}

func luma(c color.NRGBA) int {
	return 299*int(c.R) + 587*int(c.G) + 114*int(c.B)
}

// paletteImage lays out the palette as a 16x16 image, one pixel per entry.
// Unused entries are opaque black.
func paletteImage(pal []color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < 256; i++ {
		c := color.NRGBA{A: 0xff}
		if i < len(pal) {
			c = pal[i]
		}
		img.SetNRGBA(i%16, i/16, c)
	}
	return img
}

// readPalette extracts the distinct entries of a palette image. The first
// entry with an alpha below the threshold becomes the transparent one.
func readPalette(img image.Image) (color.Palette, int) {
	var (
		pal         color.Palette
		transparent = -1
		seen        = make(map[color.NRGBA]bool)
		rect        = img.Bounds()
	)
	for y := rect.Min.Y; y < rect.Max.Y && len(pal) < 256; y++ {
		for x := rect.Min.X; x < rect.Max.X && len(pal) < 256; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A < alphaThreshold {
				if transparent < 0 {
					transparent = len(pal)
					pal = append(pal, color.NRGBA{})
				}
				continue
			}
			c.A = 0xff
			if seen[c] {
				continue
			}
			seen[c] = true
			pal = append(pal, c)
		}
	}
	return pal, transparent
}

// mapper maps colors onto the opaque entries of a palette.
type mapper struct {
	pal         color.Palette
	opaque      []int // palette indexes of the opaque entries
	rgb         [][3]int32
	transparent int
	lut         []int16 // nearest entry per 6 bit per channel color cell
}

func newMapper(pal color.Palette, transparent int) *mapper {
	m := &mapper{pal: pal, transparent: transparent, lut: make([]int16, 1<<18)}
	for i := range m.lut {
		m.lut[i] = -1
	}
	for i, c := range pal {
		if i == transparent {
			continue
		}
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		m.opaque = append(m.opaque, i)
		m.rgb = append(m.rgb, [3]int32{int32(n.R), int32(n.G), int32(n.B)})
	}
	return m
}

// nearest returns the palette index of the closest opaque entry.
func (m *mapper) nearest(r, g, b uint8) uint8 {
	key := int(r>>2)<<12 | int(g>>2)<<6 | int(b>>2)
	if idx := m.lut[key]; idx >= 0 {
		return uint8(idx)
	}
	// Search from the cell center so the result only depends on the cell.
	cr, cg, cb := int32(r&^3|2), int32(g&^3|2), int32(b&^3|2)
	best, bestDist := 0, int32(1<<31-1)
	for i, c := range m.rgb {
		dr, dg, db := cr-c[0], cg-c[1], cb-c[2]
		if d := dr*dr + dg*dg + db*db; d < bestDist {
			best, bestDist = i, d
		}
	}
	idx := m.opaque[best]
	m.lut[key] = int16(idx)
	return uint8(idx)
}

// index returns the position of a palette index among the opaque entries.
func (m *mapper) index(idx uint8) int {
	if m.transparent >= 0 && int(idx) > m.transparent {
		return int(idx) - 1
	}
	return int(idx)
}

// bayerMatrix returns the 8x8 ordered dithering offsets for the given scale.
func bayerMatrix(scale int) [64]int {
	var m [64]int
	delta := 1 << (5 - scale)
	for p := range m {
		q := p ^ (p >> 3)
		v := (p&4)>>2 | (q&4)>>1 | (p&2)<<1 | (q&2)<<2 | (p&1)<<4 | (q&1)<<5
		m[p] = (v >> scale) - delta
	}
	return m
}

func clamp8(v int) uint8 {
	return uint8(utils.Clamp(v, 0, 255))
}

// apply maps src onto the palette using the dithering mode.
func (m *mapper) apply(src *image.NRGBA, mode string, bayerScale int) *image.Paletted {
	rect := src.Bounds()
	dst := image.NewPaletted(image.Rect(0, 0, rect.Dx(), rect.Dy()), m.pal)
	if len(m.opaque) == 0 {
		return dst
	}

	var bayer [64]int
	if mode == DitherBayer {
		bayer = bayerMatrix(bayerScale)
	}
	diffuse := mode != DitherBayer && mode != DitherNone

	w := rect.Dx()
	cur := make([][3]int32, w+2)
	next := make([][3]int32, w+2)

	for y := 0; y < rect.Dy(); y++ {
		row := src.Pix[src.PixOffset(rect.Min.X, rect.Min.Y+y):]
		out := dst.Pix[dst.PixOffset(0, y):]
		for x := 0; x < w; x++ {
			i := x * 4
			if row[i+3] < alphaThreshold && m.transparent >= 0 {
				out[x] = uint8(m.transparent)
				continue
			}
			r, g, b := int(row[i]), int(row[i+1]), int(row[i+2])
			switch {
			case mode == DitherBayer:
				d := bayer[(y&7)<<3|(x&7)]
				r, g, b = r+d, g+d, b+d
			case diffuse:
				// Errors are kept in 1/16 units.
				e := cur[x+1]
				r, g, b = r+int(e[0]/16), g+int(e[1]/16), b+int(e[2]/16)
			}
			idx := m.nearest(clamp8(r), clamp8(g), clamp8(b))
			out[x] = idx

			if diffuse {
				c := m.rgb[m.index(idx)]
				er := int32(utils.Clamp(r, 0, 255)) - c[0]
				eg := int32(utils.Clamp(g, 0, 255)) - c[1]
				eb := int32(utils.Clamp(b, 0, 255)) - c[2]
				for k, e := range [3]int32{er, eg, eb} {
					cur[x+2][k] += e * 7
					next[x][k] += e * 3
					next[x+1][k] += e * 5
					next[x+2][k] += e
				}
			}
		}
		if diffuse {
			cur, next = next, cur
			for i := range next {
				next[i] = [3]int32{}
			}
		}
	}
	return dst
}
