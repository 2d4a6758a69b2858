package audio

import "sync/atomic"

// PeakSampler reduces render quanta to one peak per DecimationFactor blocks
// and hands each peak to a consumer without ever blocking.
//
// A sampler is owned by exactly one recording session and must only be driven
// from one goroutine. Dropped may be read from anywhere.
type PeakSampler struct {
	peaks chan<- float32

	peak   float32
	blocks int

	emitted atomic.Uint64
	dropped atomic.Uint64
}

// NewPeakSampler creates a sampler that emits on peaks. A nil channel is
// allowed for callers that only use Add.
func NewPeakSampler(peaks chan<- float32) *PeakSampler {
	return &PeakSampler{peaks: peaks}
}

// Process consumes one render quantum laid out as inputs -> channels -> samples.
// Only the first channel of the first input is sampled. It returns false when
// there was nothing to process: an empty input set, or a quantum whose primary
// channel is missing. In that case the sampler state is left untouched.
func (s *PeakSampler) Process(inputs [][][]float32) bool {
	if len(inputs) == 0 {
		return false
	}
	if len(inputs[0]) == 0 || len(inputs[0][0]) == 0 {
		return false
	}
	if peak, ok := s.Add(inputs[0][0]); ok {
		s.emit(peak)
	}
	return true
}

// Add folds block into the running peak. When the window is complete it
// returns the window's peak and resets the accumulator.
func (s *PeakSampler) Add(block []float32) (float32, bool) {
	for _, v := range block {
		if v > s.peak {
			s.peak = v
		}
	}
	s.blocks++
	if s.blocks < DecimationFactor {
		return 0, false
	}
	peak := s.peak
	s.peak = 0
	s.blocks = 0
	return peak, true
}

// Reset discards a partially accumulated window.
func (s *PeakSampler) Reset() {
	s.peak = 0
	s.blocks = 0
}

// Emitted returns the number of peaks delivered to the consumer.
func (s *PeakSampler) Emitted() uint64 { return s.emitted.Load() }

// Dropped returns the number of peaks discarded because the consumer was behind.
func (s *PeakSampler) Dropped() uint64 { return s.dropped.Load() }

func (s *PeakSampler) emit(peak float32) {
	if s.peaks == nil {
		return
	}
	select {
	case s.peaks <- peak:
		s.emitted.Add(1)
	default:
		// consumer too slow, peaks are only a visualization aid
		s.dropped.Add(1)
	}
}
