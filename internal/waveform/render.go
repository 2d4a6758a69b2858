// Package waveform paints peak series as bar waveforms.
package waveform

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"math"
)

var (
	Foreground = color.RGBA{R: 50, G: 50, B: 200, A: 255}
	MarkerFill = color.RGBA{R: 200, G: 60, B: 60, A: 255}
)

// Draw paints one bar per sample, starting at column startAt. Only the region
// right of startAt is cleared, so callers can append newly arrived samples
// without repainting the whole waveform. The surface transform is identity
// again when Draw returns.
func Draw(s Surface, samples []float32, startAt int) {
	if startAt < 0 {
		startAt = 0
	}
	width, height := s.Size()
	if startAt < width {
		s.ClearRect(float64(startAt), 0, float64(width-startAt), float64(height))
	}

	// y=0 at the vertical center
	s.Translate(0, float64(height)/2)
	defer s.ResetTransform()

	for x := startAt; x < len(samples) && x < width; x++ {
		// +1 keeps silence visible as a thin line
		y := float64(samples[x])*float64(height)/2 + 1
		s.FillRect(float64(x), -y, 1, 2*y, Foreground)
	}
}

// Downsample reduces samples to at most width values, keeping the maximum of
// each bucket so short transients stay visible.
func Downsample(samples []float32, width int) []float32 {
	n := len(samples)
	if width <= 0 || n <= width {
		return samples
	}
	out := make([]float32, width)
	for i := range width {
		lo, hi := i*n/width, (i+1)*n/width
		peak := samples[lo]
		for _, v := range samples[lo+1 : hi] {
			peak = max(peak, v)
		}
		out[i] = peak
	}
	return out
}

// MarkerColumn maps a marker in seconds to the column of the peak that
// covers it, given peaksPerSecond peaks per second of audio.
func MarkerColumn(seconds, peaksPerSecond float64) int {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return -1
	}
	return int(math.Floor(seconds * peaksPerSecond))
}

// DrawMarkers draws the trim markers of a clip as full-height lines.
// Inverted ranges are drawn as given.
func DrawMarkers(s Surface, beginning, end, peaksPerSecond float64) {
	_, height := s.Size()
	for _, x := range []int{MarkerColumn(beginning, peaksPerSecond), MarkerColumn(end, peaksPerSecond)} {
		if x < 0 {
			continue
		}
		s.FillRect(float64(x), 0, 1, float64(height), MarkerFill)
	}
}

// EncodePNG writes the surface as a PNG image.
func EncodePNG(w io.Writer, s *ImageSurface) error {
	if err := png.Encode(w, s.Image()); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
