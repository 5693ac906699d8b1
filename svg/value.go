package svg

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// interpolate blends two attribute values at fraction f in [0, 1].
// Values sharing the same textual skeleton (numbers, lengths, number lists,
// path data with matching commands) are blended numerically, colors are
// blended per channel, everything else switches half way.
func interpolate(a, b string, f float64) string {
	if f <= 0 {
		return a
	}
	if f >= 1 {
		return b
	}
	if ca, ok := parseColor(a); ok {
		if cb, ok := parseColor(b); ok {
			return formatColor([3]float64{
				lerp(ca[0], cb[0], f),
				lerp(ca[1], cb[1], f),
				lerp(ca[2], cb[2], f),
			})
		}
	}
	ta, tb := tokenize(a), tokenize(b)
	if ta.compatible(tb) {
		nums := make([]float64, len(ta.nums))
		for i := range nums {
			nums[i] = lerp(ta.nums[i], tb.nums[i], f)
		}
		return ta.format(nums)
	}
	if f < 0.5 {
		return a
	}
	return b
}

// add sums two numeric values sharing the same skeleton, used by "by" animations
// and additive="sum". When the values cannot be summed b wins.
func add(a, b string) string {
	ta, tb := tokenize(a), tokenize(b)
	if !ta.compatible(tb) {
		return b
	}
	nums := make([]float64, len(ta.nums))
	for i := range nums {
		nums[i] = ta.nums[i] + tb.nums[i]
	}
	return ta.format(nums)
}

func lerp(a, b, f float64) float64 {
	return a + (b-a)*f
}

// skeleton is a value split into its numeric parts and the text around them.
type skeleton struct {
	text []string // len(text) == len(nums)+1
	nums []float64
}

func (s skeleton) compatible(o skeleton) bool {
	if len(s.nums) == 0 || len(s.nums) != len(o.nums) {
		return false
	}
	for i := range s.text {
		if strings.TrimSpace(s.text[i]) != strings.TrimSpace(o.text[i]) {
			return false
		}
	}
	return true
}

func (s skeleton) format(nums []float64) string {
	var sb strings.Builder
	for i, n := range nums {
		sb.WriteString(s.text[i])
		sb.WriteString(formatNumber(n))
	}
	sb.WriteString(s.text[len(nums)])
	return sb.String()
}

func tokenize(v string) skeleton {
	var (
		sk  skeleton
		buf strings.Builder
	)
	i := 0
	for i < len(v) {
		if j := scanNumber(v, i); j > i {
			n, err := strconv.ParseFloat(v[i:j], 64)
			if err == nil {
				sk.text = append(sk.text, buf.String())
				sk.nums = append(sk.nums, n)
				buf.Reset()
				i = j
				continue
			}
		}
		buf.WriteByte(v[i])
		i++
	}
	sk.text = append(sk.text, buf.String())
	return sk
}

// scanNumber returns the end index of a number starting at i, or i when there is none.
func scanNumber(s string, i int) int {
	j := i
	if j < len(s) && (s[j] == '-' || s[j] == '+') {
		j++
	}
	digits := 0
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
		digits++
	}
	if j < len(s) && s[j] == '.' {
		j++
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
			digits++
		}
	}
	if digits == 0 {
		return i
	}
	if j < len(s) && (s[j] == 'e' || s[j] == 'E') {
		k := j + 1
		if k < len(s) && (s[k] == '-' || s[k] == '+') {
			k++
		}
		start := k
		for k < len(s) && s[k] >= '0' && s[k] <= '9' {
			k++
		}
		if k > start {
			j = k
		}
	}
	return j
}

func formatNumber(n float64) string {
	if math.Abs(n) < 1e-9 {
		n = 0
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

var namedColors = map[string][3]float64{
	"black":   {0, 0, 0},
	"white":   {255, 255, 255},
	"red":     {255, 0, 0},
	"lime":    {0, 255, 0},
	"green":   {0, 128, 0},
	"blue":    {0, 0, 255},
	"yellow":  {255, 255, 0},
	"cyan":    {0, 255, 255},
	"aqua":    {0, 255, 255},
	"magenta": {255, 0, 255},
	"fuchsia": {255, 0, 255},
	"gray":    {128, 128, 128},
	"grey":    {128, 128, 128},
	"silver":  {192, 192, 192},
	"maroon":  {128, 0, 0},
	"olive":   {128, 128, 0},
	"purple":  {128, 0, 128},
	"teal":    {0, 128, 128},
	"navy":    {0, 0, 128},
	"orange":  {255, 165, 0},
	"pink":    {255, 192, 203},
}

func parseColor(v string) ([3]float64, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	if c, ok := namedColors[v]; ok {
		return c, true
	}
	if strings.HasPrefix(v, "#") {
		hex := v[1:]
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if len(hex) != 6 {
			return [3]float64{}, false
		}
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return [3]float64{}, false
		}
		return [3]float64{float64(n >> 16 & 0xff), float64(n >> 8 & 0xff), float64(n & 0xff)}, true
	}
	if strings.HasPrefix(v, "rgb(") && strings.HasSuffix(v, ")") {
		parts := strings.Split(v[4:len(v)-1], ",")
		if len(parts) != 3 {
			return [3]float64{}, false
		}
		var c [3]float64
		for i, p := range parts {
			p = strings.TrimSpace(p)
			pct := strings.HasSuffix(p, "%")
			n, err := strconv.ParseFloat(strings.TrimSuffix(p, "%"), 64)
			if err != nil {
				return [3]float64{}, false
			}
			if pct {
				n = n * 255 / 100
			}
			c[i] = n
		}
		return c, true
	}
	return [3]float64{}, false
}

func formatColor(c [3]float64) string {
	ch := func(v float64) int {
		return int(math.Round(math.Max(0, math.Min(255, v))))
	}
	return fmt.Sprintf("#%02x%02x%02x", ch(c[0]), ch(c[1]), ch(c[2]))
}
