package audio

import "time"

const (
	SampleRate       = 48000
	RenderQuantum    = 128                              // frames per processing block
	DecimationFactor = 4                                // blocks per emitted peak
	WindowFrames     = RenderQuantum * DecimationFactor // frames per emitted peak

	OpusFrameDuration = 20 * time.Millisecond
	OpusFrameSize     = 960  // samples per channel per 20ms Opus frame at 48kHz
	OpusMaxFrameSize  = 5760 // 120ms, the largest frame an Opus packet can carry
)

// PeaksPerSecond returns how many peaks a stream at sampleRate produces per second.
func PeaksPerSecond(sampleRate int) float64 {
	return float64(sampleRate) / WindowFrames
}
