// Package svg holds a decoded vector image together with its SMIL animation
// timeline, and rasterizes the state of the image at any point in time.
package svg

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Default intrinsic size of a replaced element without dimensions.
const (
	DefaultWidth  = 300
	DefaultHeight = 150
)

// ErrNotSVG is returned when the document root is not an svg element.
var ErrNotSVG = errors.New("document root is not an svg element")

// Asset is a decoded, renderable vector image.
// It is safe for concurrent use; renders are serialized.
type Asset struct {
	mu     sync.Mutex
	doc    *etree.Document
	width  float64
	height float64
	anims  []*animation
	bases  []baseAttr
	static []byte // serialized document when there is nothing to animate
	cache  *image.RGBA
}

// baseAttr remembers the document value of an animated attribute.
type baseAttr struct {
	el      *etree.Element
	key     string
	value   string
	present bool
}

// Parse decodes the svg markup and extracts its animation timeline.
func Parse(data []byte) (*Asset, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("invalid svg markup: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "svg" {
		return nil, ErrNotSVG
	}

	a := &Asset{doc: doc}
	a.width, a.height = intrinsicSize(root)

	ids := make(map[string]*etree.Element)
	walk(root, func(el *etree.Element) {
		if id := el.SelectAttrValue("id", ""); id != "" {
			ids[id] = el
		}
	})

	var found []*etree.Element
	walk(root, func(el *etree.Element) {
		if isAnimationElement(el.Tag) {
			found = append(found, el)
		}
	})

	seen := make(map[*etree.Element]map[string]bool)
	for _, el := range found {
		target := el.Parent()
		href := el.SelectAttrValue("href", el.SelectAttrValue("xlink:href", ""))
		if strings.HasPrefix(href, "#") {
			target = ids[href[1:]]
		}
		if anim, ok := newAnimation(el, target); ok {
			a.anims = append(a.anims, anim)
			if seen[target] == nil {
				seen[target] = make(map[string]bool)
			}
			if !seen[target][anim.attr] {
				seen[target][anim.attr] = true
				attr := target.SelectAttr(anim.attr)
				base := baseAttr{el: target, key: anim.attr, present: attr != nil}
				if attr != nil {
					base.value = attr.Value
				}
				a.bases = append(a.bases, base)
			}
		}
		if p := el.Parent(); p != nil {
			p.RemoveChild(el)
		}
	}

	if len(a.anims) == 0 {
		static, err := doc.WriteToBytes()
		if err != nil {
			return nil, fmt.Errorf("unable to serialize svg: %w", err)
		}
		a.static = static
	}
	return a, nil
}

// Width returns the intrinsic width of the image.
func (a *Asset) Width() float64 { return a.width }

// Height returns the intrinsic height of the image.
func (a *Asset) Height() float64 { return a.height }

// Animated reports whether the image carries any animation.
func (a *Asset) Animated() bool { return len(a.anims) > 0 }

// Duration returns the time after which the image no longer changes.
// Unbounded (indefinite) animations report their simple duration instead,
// and false is returned as second value.
func (a *Asset) Duration() (time.Duration, bool) {
	var (
		longest time.Duration
		bounded = true
	)
	for _, anim := range a.anims {
		end, ok := anim.end()
		if !ok {
			bounded = false
			end = anim.begin + anim.dur
		}
		if end > longest {
			longest = end
		}
	}
	return longest, bounded
}

// Render rasterizes the state of the image at time t into a new image of
// the given size. The view box is stretched over the whole target, callers
// wanting to preserve the aspect ratio should pass a proportional size.
func (a *Asset) Render(width, height int, t time.Duration) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid render size %dx%d", width, height)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.static != nil && a.cache != nil && a.cache.Bounds().Dx() == width && a.cache.Bounds().Dy() == height {
		return a.cache, nil
	}

	data := a.static
	if data == nil {
		var err error
		if data, err = a.snapshot(t); err != nil {
			return nil, err
		}
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("unable to decode svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	dasher := rasterx.NewDasher(width, height, scanner)
	icon.Draw(dasher, 1.0)

	if a.static != nil {
		a.cache = img
	}
	return img, nil
}

// snapshot applies every animation at time t to the document and serializes it.
// Caller must hold the lock.
func (a *Asset) snapshot(t time.Duration) ([]byte, error) {
	for _, b := range a.bases {
		if b.present {
			b.el.CreateAttr(b.key, b.value)
		} else {
			b.el.RemoveAttr(b.key)
		}
	}

	for _, anim := range a.anims {
		f, ok := anim.progress(t)
		if !ok {
			continue
		}
		current := anim.target.SelectAttrValue(anim.attr, "")
		if anim.transform != "" {
			v := anim.transformValue(anim.value(identityTransform(anim.transform), f))
			if anim.additive && current != "" {
				v = current + " " + v
			}
			anim.target.CreateAttr(anim.attr, v)
			continue
		}
		v := anim.value(current, f)
		if anim.additive && current != "" {
			v = add(current, v)
		}
		anim.target.CreateAttr(anim.attr, v)
	}

	data, err := a.doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("unable to serialize svg: %w", err)
	}
	return data, nil
}

func identityTransform(kind string) string {
	if kind == "scale" {
		return "1"
	}
	return "0"
}

// intrinsicSize resolves the image dimensions from the width and height
// attributes, falling back to the view box and finally to the default size.
func intrinsicSize(root *etree.Element) (float64, float64) {
	var vw, vh float64
	if vb := strings.FieldsFunc(root.SelectAttrValue("viewBox", ""), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	}); len(vb) == 4 {
		vw, _ = strconv.ParseFloat(vb[2], 64)
		vh, _ = strconv.ParseFloat(vb[3], 64)
	}

	w, wok := parseLength(root.SelectAttrValue("width", ""))
	h, hok := parseLength(root.SelectAttrValue("height", ""))
	switch {
	case wok && hok:
		return w, h
	case wok && vw > 0 && vh > 0:
		return w, w * vh / vw
	case hok && vw > 0 && vh > 0:
		return h * vw / vh, h
	case vw > 0 && vh > 0:
		return vw, vh
	}
	return DefaultWidth, DefaultHeight
}

// parseLength parses absolute svg lengths into pixels.
func parseLength(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, "%") {
		return 0, false
	}
	units := map[string]float64{
		"px": 1,
		"pt": 96.0 / 72.0,
		"pc": 16,
		"in": 96,
		"cm": 96 / 2.54,
		"mm": 96 / 25.4,
	}
	scale := 1.0
	if len(s) > 2 {
		if u, ok := units[s[len(s)-2:]]; ok {
			scale = u
			s = s[:len(s)-2]
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v * scale, true
}

func walk(el *etree.Element, fn func(*etree.Element)) {
	fn(el)
	for _, child := range el.ChildElements() {
		walk(child, fn)
	}
}
