package svg

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
)

// Animation element names understood by the timeline.
const (
	elemAnimate          = "animate"
	elemSet              = "set"
	elemAnimateTransform = "animateTransform"
	elemAnimateColor     = "animateColor"
	elemAnimateMotion    = "animateMotion"
)

func isAnimationElement(tag string) bool {
	switch tag {
	case elemAnimate, elemSet, elemAnimateTransform, elemAnimateColor, elemAnimateMotion:
		return true
	}
	return false
}

// animation is a single SMIL animation bound to its target element.
type animation struct {
	kind      string
	target    *etree.Element
	attr      string
	transform string // animateTransform type

	begin      time.Duration
	dur        time.Duration // zero means indefinite
	active     time.Duration // active duration, negative means unbounded
	repeat     float64       // iteration count at the end of the active duration
	freeze     bool
	additive   bool
	discrete   bool
	values     []string
	keyTimes   []float64
	from, to   string
	by         string
	hasFrom    bool
	hasTo      bool
	hasBy      bool
	hasValues  bool
	neverStart bool
}

// newAnimation reads the timing and value attributes of el.
// It returns false for animations which cannot affect a headless render.
func newAnimation(el *etree.Element, target *etree.Element) (*animation, bool) {
	a := &animation{
		kind:   el.Tag,
		target: target,
		attr:   el.SelectAttrValue("attributeName", ""),
	}
	if a.kind == elemAnimateMotion {
		return nil, false
	}
	if a.kind == elemAnimateTransform {
		a.attr = "transform"
		if el.SelectAttrValue("attributeName", "") == "gradientTransform" {
			a.attr = "gradientTransform"
		}
		a.transform = el.SelectAttrValue("type", "translate")
	}
	if a.attr == "" || target == nil {
		return nil, false
	}

	var ok bool
	a.begin, ok = parseBegin(el.SelectAttrValue("begin", ""))
	if !ok {
		a.neverStart = true
	}

	if d, err := parseClock(el.SelectAttrValue("dur", "indefinite")); err == nil && d > 0 {
		a.dur = d
	}
	if a.dur == 0 && a.kind != elemSet {
		// Without a simple duration only discrete "set" semantics apply.
		a.kind = elemSet
	}

	a.repeat = 1
	a.active = a.dur
	if a.dur == 0 {
		a.active = -1
	}

	repeatCount := el.SelectAttrValue("repeatCount", "")
	repeatDur := el.SelectAttrValue("repeatDur", "")
	switch {
	case repeatCount == "indefinite" || repeatDur == "indefinite":
		a.active = -1
	case repeatCount != "" || repeatDur != "":
		bound := time.Duration(-1)
		if n, err := strconv.ParseFloat(repeatCount, 64); err == nil && n > 0 && a.dur > 0 {
			bound = time.Duration(float64(a.dur) * n)
		}
		if d, err := parseClock(repeatDur); err == nil && d > 0 && (bound < 0 || d < bound) {
			bound = d
		}
		if bound > 0 {
			a.active = bound
		}
	}
	if end, ok := parseBegin(el.SelectAttrValue("end", "")); ok && el.SelectAttr("end") != nil {
		if limit := end - a.begin; limit >= 0 && (a.active < 0 || limit < a.active) {
			a.active = limit
		}
	}
	if a.active > 0 && a.dur > 0 {
		a.repeat = float64(a.active) / float64(a.dur)
	}

	a.freeze = el.SelectAttrValue("fill", "remove") == "freeze"
	a.additive = el.SelectAttrValue("additive", "replace") == "sum"
	a.discrete = el.SelectAttrValue("calcMode", "linear") == "discrete" || a.kind == elemSet

	if v := el.SelectAttr("values"); v != nil && a.kind != elemSet {
		for _, item := range strings.Split(v.Value, ";") {
			if item = strings.TrimSpace(item); item != "" {
				a.values = append(a.values, item)
			}
		}
		a.hasValues = len(a.values) > 0
	}
	if v := el.SelectAttr("keyTimes"); v != nil && a.hasValues {
		for _, item := range strings.Split(v.Value, ";") {
			f, err := strconv.ParseFloat(strings.TrimSpace(item), 64)
			if err != nil {
				a.keyTimes = nil
				break
			}
			a.keyTimes = append(a.keyTimes, f)
		}
		if len(a.keyTimes) != len(a.values) {
			a.keyTimes = nil
		}
	}
	if v := el.SelectAttr("from"); v != nil {
		a.from, a.hasFrom = v.Value, true
	}
	if v := el.SelectAttr("to"); v != nil {
		a.to, a.hasTo = v.Value, true
	}
	if v := el.SelectAttr("by"); v != nil {
		a.by, a.hasBy = v.Value, true
	}
	if !a.hasValues && !a.hasTo && !a.hasBy {
		return nil, false
	}
	return a, true
}

// progress returns the simple time fraction of the animation at t.
// ok is false when the animation has no effect at t.
func (a *animation) progress(t time.Duration) (f float64, ok bool) {
	if a.neverStart || t < a.begin {
		return 0, false
	}
	local := t - a.begin
	if a.active >= 0 && local >= a.active {
		if !a.freeze {
			return 0, false
		}
		if a.dur == 0 {
			return 1, true
		}
		frac := a.repeat - math.Floor(a.repeat)
		if frac == 0 {
			return 1, true
		}
		return frac, true
	}
	if a.dur == 0 {
		return 0, true
	}
	return float64(local%a.dur) / float64(a.dur), true
}

// value computes the animated value at fraction f, given the current base value.
func (a *animation) value(base string, f float64) string {
	if a.kind == elemSet {
		return a.to
	}

	values := a.values
	if !a.hasValues {
		from := base
		if a.hasFrom {
			from = a.from
		}
		to := a.to
		if !a.hasTo && a.hasBy {
			to = add(from, a.by)
		}
		values = []string{from, to}
	}
	if len(values) == 1 {
		return values[0]
	}

	if a.discrete {
		idx := int(f * float64(len(values)))
		if idx >= len(values) {
			idx = len(values) - 1
		}
		if a.keyTimes != nil {
			idx = 0
			for i, kt := range a.keyTimes {
				if f >= kt {
					idx = i
				}
			}
		}
		return values[idx]
	}

	seg, local := segment(len(values), a.keyTimes, f)
	return interpolate(values[seg], values[seg+1], local)
}

// segment locates the interval of values used at fraction f and the
// fraction within that interval.
func segment(n int, keyTimes []float64, f float64) (int, float64) {
	if f >= 1 {
		return n - 2, 1
	}
	if keyTimes == nil {
		pos := f * float64(n-1)
		i := int(pos)
		return i, pos - float64(i)
	}
	for i := 0; i < n-1; i++ {
		lo, hi := keyTimes[i], keyTimes[i+1]
		if f >= lo && f < hi {
			if hi == lo {
				return i, 0
			}
			return i, (f - lo) / (hi - lo)
		}
	}
	return n - 2, 1
}

// transformValue wraps the numeric arguments into an svg transform function.
func (a *animation) transformValue(v string) string {
	args := strings.Join(strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	}), " ")
	return a.transform + "(" + args + ")"
}

// end returns the time at which the animation stops changing,
// and false when it runs forever.
func (a *animation) end() (time.Duration, bool) {
	if a.neverStart {
		return 0, true
	}
	if a.active < 0 {
		return 0, false
	}
	return a.begin + a.active, true
}
