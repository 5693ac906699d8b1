package svg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_Interpolate(t *testing.T) {
	testCases := []struct {
		name string
		a, b string
		f    float64
		want string
	}{
		{"number", "0", "10", 0.5, "5"},
		{"length", "10px", "20px", 0.25, "12.5px"},
		{"list", "0 0 10 10", "10 20 30 40", 0.5, "5 10 20 25"},
		{"path", "M0 0 L10 10", "M10 10 L20 20", 0.5, "M5 5 L15 15"},
		{"hex color", "#ff0000", "#0000ff", 0.5, "#800080"},
		{"named color", "black", "white", 1, "white"},
		{"short hex", "#000", "#fff", 0.5, "#808080"},
		{"discrete before half", "hidden", "visible", 0.4, "hidden"},
		{"discrete after half", "hidden", "visible", 0.6, "visible"},
		{"start", "1", "2", 0, "1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, interpolate(tc.a, tc.b, tc.f))
		})
	}
}

func TestValue_Add(t *testing.T) {
	assert.Equal(t, "15", add("10", "5"))
	assert.Equal(t, "3 5", add("1 2", "2 3"))
	assert.Equal(t, "red", add("10", "red"))
}

func TestValue_ParseColor(t *testing.T) {
	c, ok := parseColor("rgb(100%, 0, 51)")
	assert.True(t, ok)
	assert.Equal(t, [3]float64{255, 0, 51}, c)

	_, ok = parseColor("url(#grad)")
	assert.False(t, ok)
	_, ok = parseColor("#12345")
	assert.False(t, ok)
}
