package waveform

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sentinel = color.RGBA{R: 255, A: 255}

func constant(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestDrawLeavesColumnsLeftOfStartAt(t *testing.T) {
	s := NewImageSurface(20, 10)
	s.FillRect(0, 0, 20, 10, sentinel)

	Draw(s, constant(20, 0.5), 8)

	img := s.Image()
	for x := 0; x < 8; x++ {
		for y := 0; y < 10; y++ {
			require.Equal(t, sentinel, img.RGBAAt(x, y), "pixel (%d,%d) left of startAt was touched", x, y)
		}
	}
	for x := 8; x < 20; x++ {
		assert.NotEqual(t, sentinel, img.RGBAAt(x, 0), "column %d was not cleared", x)
	}
}

func TestDrawBarGeometry(t *testing.T) {
	s := NewImageSurface(2, 10)
	Draw(s, []float32{0.5, 0}, 0)
	img := s.Image()

	// 0.5 on a 10px surface: half height 3.5 around row 5 -> rows 1..8
	assert.Equal(t, color.RGBA{}, img.RGBAAt(0, 0))
	for y := 1; y <= 8; y++ {
		assert.Equal(t, Foreground, img.RGBAAt(0, y), "row %d", y)
	}
	assert.Equal(t, color.RGBA{}, img.RGBAAt(0, 9))

	// silence still draws a 2px line at the midline
	assert.Equal(t, Foreground, img.RGBAAt(1, 4))
	assert.Equal(t, Foreground, img.RGBAAt(1, 5))
	assert.Equal(t, color.RGBA{}, img.RGBAAt(1, 3))
	assert.Equal(t, color.RGBA{}, img.RGBAAt(1, 6))
}

func TestDrawRestoresTransform(t *testing.T) {
	samples := []float32{0.1, 0.9, 0.4, 0.2, 0.7, 0.3}

	s := NewImageSurface(6, 12)
	Draw(s, samples[:3], 0)
	Draw(s, samples, 3)
	tx, ty := s.Transform()
	assert.Zero(t, tx)
	assert.Zero(t, ty)

	Draw(s, samples, 0)

	fresh := NewImageSurface(6, 12)
	Draw(fresh, samples, 0)
	assert.Equal(t, fresh.Image().Pix, s.Image().Pix)
}

func TestDrawStartAtBeyondWidth(t *testing.T) {
	s := NewImageSurface(4, 4)
	s.FillRect(0, 0, 4, 4, sentinel)
	Draw(s, constant(8, 1), 6)
	for x := 0; x < 4; x++ {
		assert.Equal(t, sentinel, s.Image().RGBAAt(x, 0))
	}
}

func TestDrawNegativeSamples(t *testing.T) {
	s := NewImageSurface(1, 10)
	// y = -0.4*5+1 = -1: the bar flips but stays centered
	Draw(s, []float32{-0.4}, 0)
	assert.Equal(t, Foreground, s.Image().RGBAAt(0, 4))
	assert.Equal(t, Foreground, s.Image().RGBAAt(0, 5))
}

func TestMarkerColumn(t *testing.T) {
	assert.Equal(t, 93, MarkerColumn(1, 93.75))
	assert.Equal(t, 0, MarkerColumn(0, 93.75))
	assert.Equal(t, -1, MarkerColumn(math.NaN(), 93.75))
	assert.Equal(t, -1, MarkerColumn(math.Inf(1), 93.75))
}

func TestDrawMarkers(t *testing.T) {
	s := NewImageSurface(10, 4)
	DrawMarkers(s, 0.02, 0.05, 100)
	for y := 0; y < 4; y++ {
		assert.Equal(t, MarkerFill, s.Image().RGBAAt(2, y))
		assert.Equal(t, MarkerFill, s.Image().RGBAAt(5, y))
	}
	assert.Equal(t, color.RGBA{}, s.Image().RGBAAt(3, 0))
}

func TestEncodePNG(t *testing.T) {
	s := NewImageSurface(16, 8)
	Draw(s, constant(16, 0.25), 0)

	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, s))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, s.Image().Bounds(), img.Bounds())
}

func TestDownsample(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
		width   int
		want    []float32
	}{
		{"fits", []float32{0.1, 0.2}, 4, []float32{0.1, 0.2}},
		{"exact", []float32{0.1, 0.2}, 2, []float32{0.1, 0.2}},
		{"max per bucket", []float32{0.1, 0.9, 0.3, 0.2, 0, 0.4}, 3, []float32{0.9, 0.3, 0.4}},
		{"uneven buckets", []float32{0.5, 0, 0, 0, 0.7}, 2, []float32{0.5, 0.7}},
		{"single column", []float32{0.1, 0.6, 0.2}, 1, []float32{0.6}},
		{"zero width", []float32{0.1}, 0, []float32{0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Downsample(tt.samples, tt.width))
		})
	}
}

func TestDownsampleKeepsLateTransients(t *testing.T) {
	samples := make([]float32, 10000)
	samples[9999] = 0.8
	out := Downsample(samples, 100)
	require.Len(t, out, 100)
	assert.Equal(t, float32(0.8), out[99])
}
