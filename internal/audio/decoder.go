package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"gopkg.in/hraban/opus.v2"
)

// Format identifies a container/codec pair a stored clip can be decoded from.
type Format string

const (
	FormatUnknown   Format = ""
	FormatOggOpus   Format = "ogg/opus"
	FormatOggVorbis Format = "ogg/vorbis"
	FormatWAV       Format = "wav"
	FormatMP3       Format = "mp3"
)

const sniffHeaderBytes = 64

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidWAV        = errors.New("invalid WAV file")
)

// Sniff identifies the format of a clip from its leading bytes.
func Sniff(header []byte) Format {
	switch {
	case bytes.HasPrefix(header, []byte("OggS")):
		if bytes.Contains(header, []byte("OpusHead")) {
			return FormatOggOpus
		}
		if bytes.Contains(header, []byte("\x01vorbis")) {
			return FormatOggVorbis
		}
	case len(header) >= 12 && bytes.HasPrefix(header, []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(header, []byte("ID3")):
		return FormatMP3
	case len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	return FormatUnknown
}

// Decode sniffs r and returns a Source for its audio. r is rewound before
// decoding, so it must be positioned at the start of the clip.
func Decode(r io.ReadSeeker) (Source, error) {
	header := make([]byte, sniffHeaderBytes)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = header[:n]
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind: %w", err)
	}

	switch Sniff(header) {
	case FormatOggOpus:
		return decodeOggOpus(r, opusChannels(header))
	case FormatOggVorbis:
		return decodeOggVorbis(r)
	case FormatWAV:
		return decodeWAV(r)
	case FormatMP3:
		return decodeMP3(r)
	}
	return nil, ErrUnsupportedFormat
}

// opusChannels reads the channel count from the OpusHead identification header.
func opusChannels(header []byte) int {
	i := bytes.Index(header, []byte("OpusHead"))
	if i < 0 || i+9 >= len(header) {
		return 1
	}
	if ch := int(header[i+9]); ch > 0 {
		return ch
	}
	return 1
}

type opusSource struct {
	stream   *opus.Stream
	channels int
}

func decodeOggOpus(r io.Reader, channels int) (Source, error) {
	stream, err := opus.NewStream(r)
	if err != nil {
		return nil, fmt.Errorf("open ogg/opus stream: %w", err)
	}
	return &opusSource{stream: stream, channels: channels}, nil
}

func (s *opusSource) SampleRate() int { return SampleRate }
func (s *opusSource) Channels() int   { return s.channels }
func (s *opusSource) Close() error    { return s.stream.Close() }

func (s *opusSource) ReadSamples(dst []float32) (int, error) {
	frames := len(dst) / s.channels
	if frames == 0 {
		return 0, nil
	}
	// ReadFloat32 reports samples per channel
	n, err := s.stream.ReadFloat32(dst[:frames*s.channels])
	return n * s.channels, err
}

func decodeOggVorbis(r io.Reader) (Source, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode ogg/vorbis: %w", err)
	}
	return NewSliceSource(data, format.SampleRate, format.Channels), nil
}

func decodeWAV(r io.ReadSeeker) (Source, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	// Only integer PCM, plain or extensible. IEEE float and compressed
	// encodings would decode as garbage integers.
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("%w: audio format %d", ErrInvalidWAV, dec.WavAudioFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	return NewSliceSource(normalizeInts(buf), buf.Format.SampleRate, buf.Format.NumChannels), nil
}

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// normalizeInts scales integer PCM to [-1,1] using the source bit depth.
// 8-bit WAV samples are unsigned and centred on 128.
func normalizeInts(buf *goaudio.IntBuffer) []float32 {
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	var offset int
	if depth == 8 {
		offset = 128
	}
	scale := float32(int64(1) << (depth - 1))
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v-offset) / scale
	}
	return out
}

type mp3Source struct {
	dec *gomp3.Decoder
	buf []byte
}

func decodeMP3(r io.Reader) (Source, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}
	return &mp3Source{dec: dec, buf: make([]byte, 8192)}, nil
}

func (s *mp3Source) SampleRate() int { return s.dec.SampleRate() }

// go-mp3 always produces interleaved stereo.
func (s *mp3Source) Channels() int { return 2 }
func (s *mp3Source) Close() error  { return nil }

func (s *mp3Source) ReadSamples(dst []float32) (int, error) {
	if len(s.buf) < len(dst)*2 {
		s.buf = make([]byte, len(dst)*2)
	}
	n, err := s.dec.Read(s.buf[:len(dst)*2])
	samples := n / 2
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(s.buf[2*i : 2*i+2]))
		dst[i] = float32(v) / 32768.0
	}
	if samples == 0 && err != nil {
		return 0, err
	}
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return samples, err
}
