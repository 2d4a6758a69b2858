package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/satindergrewal/clipchain/internal/audio"
	"github.com/satindergrewal/clipchain/internal/clip"
	"github.com/satindergrewal/clipchain/internal/stream"
	"github.com/satindergrewal/clipchain/internal/waveform"
)

// maxWaveformWidth bounds the width query parameter of waveform renders.
const maxWaveformWidth = 8192

type clipEntry struct {
	ID   clip.ID `json:"id"`
	File string  `json:"file"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.store.Catalog()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	clips := make([]clipEntry, 0, len(catalog))
	for _, id := range catalog.IDs() {
		clips = append(clips, clipEntry{ID: id, File: filepath.Base(catalog[id])})
	}
	writeJSON(w, http.StatusOK, map[string]any{"clips": clips})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.Metadata(clipID(r))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	f, err := s.store.Open(clipID(r))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeFor(f.Name()))
	w.Header().Set("Access-Control-Allow-Origin", "*")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// decodedClip is a stored clip reduced to its peak series.
type decodedClip struct {
	Peaks      []float32
	SampleRate int
}

func (d decodedClip) peaksPerSecond() float64 {
	return audio.PeaksPerSecond(d.SampleRate)
}

func (s *Server) decode(id clip.ID) (decodedClip, error) {
	f, err := s.store.Open(id)
	if err != nil {
		return decodedClip{}, err
	}
	defer f.Close()

	src, err := audio.Decode(f)
	if err != nil {
		return decodedClip{}, err
	}
	defer src.Close()

	peaks, err := audio.CollectPeaks(src)
	if err != nil {
		return decodedClip{}, err
	}
	return decodedClip{Peaks: peaks, SampleRate: src.SampleRate()}, nil
}

// writeDecodeErr reports audio the server cannot decode as 422.
func (s *Server) writeDecodeErr(w http.ResponseWriter, id clip.ID, err error) {
	if errors.Is(err, audio.ErrUnsupportedFormat) || errors.Is(err, audio.ErrInvalidWAV) {
		s.logger.Info("clip audio not decodable", "clip", id, "error", err)
		writeReason(w, http.StatusUnprocessableEntity, "UndecodableAudio")
		return
	}
	s.writeErr(w, err)
}

func (s *Server) handlePeaks(w http.ResponseWriter, r *http.Request) {
	id := clipID(r)
	d, err := s.decode(id)
	if err != nil {
		s.writeDecodeErr(w, id, err)
		return
	}
	peaks := d.Peaks
	if peaks == nil {
		peaks = []float32{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":             id,
		"sampleRate":     d.SampleRate,
		"peaksPerSecond": d.peaksPerSecond(),
		"peaks":          peaks,
	})
}

func (s *Server) handleWaveform(w http.ResponseWriter, r *http.Request) {
	id := clipID(r)
	d, err := s.decode(id)
	if err != nil {
		s.writeDecodeErr(w, id, err)
		return
	}

	width := len(d.Peaks)
	if v := r.URL.Query().Get("width"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxWaveformWidth {
			writeReason(w, http.StatusBadRequest, "InvalidWidth")
			return
		}
		width = n
	}
	width = max(1, min(width, maxWaveformWidth))

	// Long clips are scaled down to the width, one bucket per column.
	peaks, pps := d.Peaks, d.peaksPerSecond()
	if len(peaks) > width {
		pps *= float64(width) / float64(len(peaks))
		peaks = waveform.Downsample(peaks, width)
	}

	surface := waveform.NewImageSurface(width, s.opts.WaveformHeight)
	waveform.Draw(surface, peaks, 0)
	if m, err := s.store.Metadata(id); err == nil {
		waveform.DrawMarkers(surface, m.MarkerBeginning, m.MarkerEnd, pps)
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := waveform.EncodePNG(w, surface); err != nil {
		s.logger.Warn("waveform encode", "clip", id, "error", err)
	}
}

type chainEntry struct {
	ID              clip.ID `json:"id"`
	Missing         bool    `json:"missing,omitempty"`
	MarkerBeginning float64 `json:"markerBeginning"`
	MarkerEnd       float64 `json:"markerEnd"`
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	c, err := s.index.Walk(r.Context(), clipID(r))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	clips := make([]chainEntry, len(c.Nodes))
	for i, n := range c.Nodes {
		clips[i] = chainEntry{
			ID:              n.ID,
			Missing:         n.Missing,
			MarkerBeginning: n.Link.MarkerBeginning,
			MarkerEnd:       n.Link.MarkerEnd,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cyclic": c.Cyclic,
		"clips":  clips,
	})
}

// handlePlay replays a stored clip through a peak pipeline at real-time pace
// and streams the peaks as newline-delimited JSON.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	id := clipID(r)

	f, err := s.store.Open(id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	defer f.Close()

	src, err := audio.Decode(f)
	if err != nil {
		s.writeDecodeErr(w, id, err)
		return
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	pipeline := audio.NewPipeline(s.opts.MonitorBuffer, s.logger)
	done := make(chan error, 1)
	go func() { done <- pipeline.Play(ctx, src) }()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	var seq uint64
	for v := range pipeline.Peaks() {
		seq++
		if err := enc.Encode(stream.Peak{Session: string(id), Seq: seq, Value: v}); err != nil {
			cancel()
			break
		}
		flusher.Flush()
	}

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("clip replay failed", "clip", id, "error", err)
	}
}
