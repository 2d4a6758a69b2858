package audio

import "io"

// Source is a decoded PCM stream.
type Source interface {
	// SampleRate of the PCM stream in Hz.
	SampleRate() int
	// Channels count (1=mono, 2=stereo).
	Channels() int
	// ReadSamples fills dst with interleaved float32 samples in [-1,1] and
	// returns the number of values written. n == 0 with io.EOF ends the stream.
	ReadSamples(dst []float32) (n int, err error)
	// Close releases any resources.
	Close() error
}

// sliceSource serves samples decoded up front.
type sliceSource struct {
	data       []float32
	sampleRate int
	channels   int
	off        int
}

// NewSliceSource wraps interleaved samples in a Source.
func NewSliceSource(data []float32, sampleRate, channels int) Source {
	if channels < 1 {
		channels = 1
	}
	return &sliceSource{data: data, sampleRate: sampleRate, channels: channels}
}

func (s *sliceSource) SampleRate() int { return s.sampleRate }
func (s *sliceSource) Channels() int   { return s.channels }
func (s *sliceSource) Close() error    { return nil }

func (s *sliceSource) ReadSamples(dst []float32) (int, error) {
	if s.off >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(dst, s.data[s.off:])
	s.off += n
	return n, nil
}
