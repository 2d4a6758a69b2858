package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func TestSniff(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   Format
	}{
		{"ogg opus", append([]byte("OggS\x00\x02"), []byte("....OpusHead\x01\x01")...), FormatOggOpus},
		{"ogg vorbis", append([]byte("OggS\x00\x02"), []byte("....\x01vorbis")...), FormatOggVorbis},
		{"ogg other", []byte("OggS\x00\x02....FLAC"), FormatUnknown},
		{"wav", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), FormatWAV},
		{"riff not wave", []byte("RIFF\x24\x00\x00\x00AVI LIST"), FormatUnknown},
		{"mp3 id3", []byte("ID3\x03\x00"), FormatMP3},
		{"mp3 frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, FormatMP3},
		{"text", []byte("not audio at all"), FormatUnknown},
		{"empty", nil, FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.header); got != tt.want {
				t.Errorf("Sniff() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpusChannels(t *testing.T) {
	header := []byte("OggS....OpusHead\x01\x02\x38\x01")
	if got := opusChannels(header); got != 2 {
		t.Errorf("opusChannels = %d, want 2", got)
	}
	if got := opusChannels([]byte("OggS")); got != 1 {
		t.Errorf("opusChannels(no head) = %d, want 1", got)
	}
}

func writeTestWAV(t *testing.T, samples []int, channels int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := wav.NewEncoder(f, SampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: SampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func TestDecodeWAV(t *testing.T) {
	samples := make([]int, WindowFrames)
	samples[5] = 16384 // 0.5 full scale
	path := writeTestWAV(t, samples, 1)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	src, err := Decode(f)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	defer src.Close()

	if src.SampleRate() != SampleRate {
		t.Errorf("SampleRate = %d, want %d", src.SampleRate(), SampleRate)
	}
	if src.Channels() != 1 {
		t.Errorf("Channels = %d, want 1", src.Channels())
	}

	peaks, err := CollectPeaks(src)
	if err != nil {
		t.Fatalf("CollectPeaks: %v", err)
	}
	if len(peaks) != 1 {
		t.Fatalf("got %d peaks, want 1", len(peaks))
	}
	if peaks[0] != 0.5 {
		t.Errorf("peak = %v, want 0.5", peaks[0])
	}
}

func TestDecodeUnsupported(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("This is not audio data")))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Decode(text) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestDecodeEmpty(t *testing.T) {
	if _, err := Decode(bytes.NewReader(nil)); err == nil {
		t.Error("Decode(empty) error = nil, want error")
	}
}

// rawWAV builds a mono WAV file with a canonical 44-byte header.
func rawWAV(format, bits uint16, data []byte) []byte {
	var b bytes.Buffer
	le := binary.LittleEndian
	b.WriteString("RIFF")
	binary.Write(&b, le, uint32(36+len(data)))
	b.WriteString("WAVEfmt ")
	binary.Write(&b, le, uint32(16))
	binary.Write(&b, le, format)
	binary.Write(&b, le, uint16(1))
	binary.Write(&b, le, uint32(SampleRate))
	binary.Write(&b, le, uint32(SampleRate)*uint32(bits/8))
	binary.Write(&b, le, bits/8)
	binary.Write(&b, le, bits)
	b.WriteString("data")
	binary.Write(&b, le, uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}

func TestDecodeWAV8BitIsCentred(t *testing.T) {
	tests := []struct {
		name string
		at   int
		v    byte
		want float32
	}{
		{"silence", 0, 128, 0},
		{"half scale", 5, 192, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Repeat([]byte{128}, WindowFrames)
			data[tt.at] = tt.v

			src, err := Decode(bytes.NewReader(rawWAV(wavFormatPCM, 8, data)))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			defer src.Close()

			peaks, err := CollectPeaks(src)
			if err != nil {
				t.Fatalf("CollectPeaks: %v", err)
			}
			if len(peaks) != 1 {
				t.Fatalf("got %d peaks, want 1", len(peaks))
			}
			if peaks[0] != tt.want {
				t.Errorf("peak = %v, want %v", peaks[0], tt.want)
			}
		})
	}
}

func TestDecodeWAVRejectsFloat(t *testing.T) {
	data := make([]byte, 4*WindowFrames)
	for i := range WindowFrames {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(0.25))
	}

	_, err := Decode(bytes.NewReader(rawWAV(3, 32, data)))
	if !errors.Is(err, ErrInvalidWAV) {
		t.Errorf("Decode(float wav) error = %v, want ErrInvalidWAV", err)
	}
}

func TestNormalizeInts(t *testing.T) {
	tests := []struct {
		name  string
		depth int
		in    []int
		want  []float32
	}{
		{"8-bit", 8, []int{0, 128, 255}, []float32{-1, 0, 127.0 / 128}},
		{"16-bit", 16, []int{-32768, 0, 16384}, []float32{-1, 0, 0.5}},
		{"24-bit", 24, []int{-8388608, 4194304}, []float32{-1, 0.5}},
		{"unknown depth as 16-bit", 0, []int{16384}, []float32{0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeInts(&goaudio.IntBuffer{Data: tt.in, SourceBitDepth: tt.depth})
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("normalizeInts[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
