package svg

import (
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blinkSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="20" height="20" viewBox="0 0 20 20">
  <rect id="box" x="0" y="0" width="20" height="20" fill="red">
    <set attributeName="fill" to="blue" begin="1s" dur="1s"/>
  </rect>
</svg>`

const slideSVG = `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" viewBox="0 0 40 20">
  <rect id="box" x="0" y="0" width="10" height="20" fill="#00ff00"/>
  <animate xlink:href="#box" attributeName="x" from="0" to="30" begin="1s" dur="2s" fill="freeze"/>
</svg>`

func TestAsset_IntrinsicSize(t *testing.T) {
	testCases := []struct {
		name          string
		markup        string
		width, height float64
	}{
		{"attributes", `<svg width="100" height="50px"/>`, 100, 50},
		{"viewbox", `<svg viewBox="0 0 40 20"/>`, 40, 20},
		{"width and viewbox", `<svg width="80" viewBox="0,0,40,20"/>`, 80, 40},
		{"inches", `<svg width="1in" height="2in"/>`, 96, 192},
		{"percent", `<svg width="100%" height="100%"/>`, DefaultWidth, DefaultHeight},
		{"nothing", `<svg/>`, DefaultWidth, DefaultHeight},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			asset, err := Parse([]byte(tc.markup))
			require.NoError(t, err)
			assert.InDelta(t, tc.width, asset.Width(), 1e-9)
			assert.InDelta(t, tc.height, asset.Height(), 1e-9)
		})
	}
}

func TestAsset_RejectsNonSVG(t *testing.T) {
	_, err := Parse([]byte(`<html><body/></html>`))
	assert.ErrorIs(t, err, ErrNotSVG)

	_, err = Parse([]byte(`not markup at all <`))
	assert.Error(t, err)
}

func TestAsset_StaticImage(t *testing.T) {
	asset, err := Parse([]byte(`<svg width="10" height="10" viewBox="0 0 10 10"><rect width="10" height="10" fill="red"/></svg>`))
	require.NoError(t, err)
	assert.False(t, asset.Animated())

	d, bounded := asset.Duration()
	assert.True(t, bounded)
	assert.Equal(t, time.Duration(0), d)

	a, err := asset.Render(10, 10, 0)
	require.NoError(t, err)
	b, err := asset.Render(10, 10, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, a.Pix, b.Pix)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, a.RGBAAt(5, 5))
}

func TestAsset_RenderFollowsTimeline(t *testing.T) {
	asset, err := Parse([]byte(blinkSVG))
	require.NoError(t, err)
	assert.True(t, asset.Animated())

	d, bounded := asset.Duration()
	assert.True(t, bounded)
	assert.Equal(t, 2*time.Second, d)

	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}

	for _, tc := range []struct {
		at   time.Duration
		want color.RGBA
	}{
		{0, red},
		{1500 * time.Millisecond, blue},
		{2500 * time.Millisecond, red},
		// Going back in time must restore the earlier state.
		{1200 * time.Millisecond, blue},
		{500 * time.Millisecond, red},
	} {
		img, err := asset.Render(20, 20, tc.at)
		require.NoError(t, err)
		assert.Equal(t, tc.want, img.RGBAAt(10, 10), "at %v", tc.at)
	}
}

func TestAsset_RenderHrefTargetWithFreeze(t *testing.T) {
	asset, err := Parse([]byte(slideSVG))
	require.NoError(t, err)

	green := color.RGBA{G: 255, A: 255}
	empty := color.RGBA{}

	img, err := asset.Render(40, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, green, img.RGBAAt(5, 10))
	assert.Equal(t, empty, img.RGBAAt(35, 10))

	// Frozen at the final value after the animation ends.
	img, err = asset.Render(40, 20, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, empty, img.RGBAAt(5, 10))
	assert.Equal(t, green, img.RGBAAt(35, 10))
}

func TestAsset_Duration(t *testing.T) {
	asset, err := Parse([]byte(`<svg viewBox="0 0 10 10"><circle r="2">
	  <animate attributeName="r" values="2;4;2" dur="1s" repeatCount="indefinite"/>
	</circle></svg>`))
	require.NoError(t, err)

	d, bounded := asset.Duration()
	assert.False(t, bounded)
	assert.Equal(t, time.Second, d)

	asset, err = Parse([]byte(`<svg viewBox="0 0 10 10"><circle r="2">
	  <animate attributeName="r" to="4" begin="0.5s" dur="1s" repeatCount="3"/>
	  <animate attributeName="cx" to="4" begin="click" dur="1s"/>
	</circle></svg>`))
	require.NoError(t, err)

	d, bounded = asset.Duration()
	assert.True(t, bounded)
	assert.Equal(t, 3500*time.Millisecond, d)
}

func TestAsset_RenderInvalidSize(t *testing.T) {
	asset, err := Parse([]byte(blinkSVG))
	require.NoError(t, err)

	_, err = asset.Render(0, 10, 0)
	assert.Error(t, err)
}

func TestAnimation_Progress(t *testing.T) {
	asset, err := Parse([]byte(`<svg><rect>
	  <animate attributeName="x" from="0" to="10" begin="1s" dur="2s" repeatCount="1.5" fill="freeze"/>
	</rect></svg>`))
	require.NoError(t, err)
	require.Len(t, asset.anims, 1)
	anim := asset.anims[0]

	_, ok := anim.progress(500 * time.Millisecond)
	assert.False(t, ok)

	f, ok := anim.progress(2 * time.Second)
	assert.True(t, ok)
	assert.InDelta(t, 0.5, f, 1e-9)

	f, ok = anim.progress(3500 * time.Millisecond)
	assert.True(t, ok)
	assert.InDelta(t, 0.25, f, 1e-9)

	// Frozen at the fractional repeat after the active duration.
	f, ok = anim.progress(time.Minute)
	assert.True(t, ok)
	assert.InDelta(t, 0.5, f, 1e-9)
	assert.Equal(t, "5", anim.value("0", f))
}
