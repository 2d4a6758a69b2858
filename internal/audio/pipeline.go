package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// maxEmptyReads bounds consecutive (0, nil) reads before a source is
// considered stalled.
const maxEmptyReads = 100

// Pipeline turns a mono PCM stream into peaks. It re-blocks arbitrary write
// sizes (20ms Opus frames, decoder buffers) into render quanta before they
// reach the sampler.
type Pipeline struct {
	sampler *PeakSampler
	peakCh  chan float32
	logger  *slog.Logger

	pending []float32 // frames not yet forming a full quantum
	quantum [][][]float32

	mu     sync.RWMutex
	blocks uint64
	closed bool
}

// NewPipeline creates a pipeline whose peak channel holds up to buffer values.
func NewPipeline(buffer int, logger *slog.Logger) *Pipeline {
	if buffer < 1 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	peakCh := make(chan float32, buffer)
	return &Pipeline{
		sampler: NewPeakSampler(peakCh),
		peakCh:  peakCh,
		logger:  logger,
		pending: make([]float32, 0, RenderQuantum),
		quantum: [][][]float32{{nil}},
	}
}

// Peaks returns the channel of emitted peaks. It is closed by Close.
func (p *Pipeline) Peaks() <-chan float32 {
	return p.peakCh
}

// Write feeds mono frames into the pipeline. Must not be called concurrently
// with itself or after Close.
func (p *Pipeline) Write(frames []float32) {
	for len(frames) > 0 {
		need := RenderQuantum - len(p.pending)
		if need > len(frames) {
			need = len(frames)
		}
		p.pending = append(p.pending, frames[:need]...)
		frames = frames[need:]
		if len(p.pending) == RenderQuantum {
			p.processBlock(p.pending)
			p.pending = p.pending[:0]
		}
	}
}

func (p *Pipeline) processBlock(block []float32) {
	p.quantum[0][0] = block
	if p.sampler.Process(p.quantum) {
		p.mu.Lock()
		p.blocks++
		p.mu.Unlock()
	}
}

// Status returns processed block and dropped peak counts.
func (p *Pipeline) Status() (blocks, dropped uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.blocks, p.sampler.Dropped()
}

// Close closes the peak channel. A partially accumulated window is discarded.
// Close is idempotent.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.peakCh)
	p.logger.Debug("peak pipeline closed",
		"blocks", p.blocks,
		"emitted", p.sampler.Emitted(),
		"dropped", p.sampler.Dropped())
}

// Play feeds the first channel of src into the pipeline at real-time pace,
// one quantum per tick, and closes the pipeline when src is exhausted or ctx
// is cancelled.
func (p *Pipeline) Play(ctx context.Context, src Source) error {
	defer p.Close()

	rate := src.SampleRate()
	if rate <= 0 {
		return fmt.Errorf("play: invalid sample rate %d", rate)
	}
	ticker := time.NewTicker(time.Duration(RenderQuantum) * time.Second / time.Duration(rate))
	defer ticker.Stop()

	blocks := NewBlockReader(src)
	for {
		block, err := blocks.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		p.processBlock(block)
	}
}

// CollectPeaks decodes src as fast as possible and returns every peak the
// sampler emits for it. Used to rebuild the waveform of a stored clip.
func CollectPeaks(src Source) ([]float32, error) {
	sampler := NewPeakSampler(nil)
	blocks := NewBlockReader(src)
	var peaks []float32
	for {
		block, err := blocks.Next()
		if errors.Is(err, io.EOF) {
			return peaks, nil
		}
		if err != nil {
			return peaks, err
		}
		if peak, ok := sampler.Add(block); ok {
			peaks = append(peaks, peak)
		}
	}
}

// BlockReader splits a Source into render quanta of its first channel.
type BlockReader struct {
	src      Source
	channels int
	buf      []float32
	block    []float32
}

// NewBlockReader creates a reader over src.
func NewBlockReader(src Source) *BlockReader {
	channels := src.Channels()
	if channels < 1 {
		channels = 1
	}
	return &BlockReader{
		src:      src,
		channels: channels,
		buf:      make([]float32, RenderQuantum*channels),
		block:    make([]float32, RenderQuantum),
	}
}

// Next returns the next quantum. The returned slice is reused by the
// following call. The final quantum of a stream may be short.
func (b *BlockReader) Next() ([]float32, error) {
	want := len(b.buf)
	n, empty := 0, 0
	for n < want {
		m, err := b.src.ReadSamples(b.buf[n:want])
		n += m
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read samples: %w", err)
		}
		if m == 0 {
			empty++
			if empty >= maxEmptyReads {
				return nil, io.ErrNoProgress
			}
		}
	}

	frames := n / b.channels
	if frames == 0 {
		return nil, io.EOF
	}
	for i := range frames {
		b.block[i] = b.buf[i*b.channels]
	}
	return b.block[:frames], nil
}
