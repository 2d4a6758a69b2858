package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/clipchain/internal/audio"
)

// PeakChannelLabel is the data channel the client opens to receive peaks.
const PeakChannelLabel = "peaks"

// SessionHeader carries the session identifier in the SDP answer response.
const SessionHeader = "X-Clipchain-Session"

// SessionHandler serves WebRTC SDP negotiation for live recording sessions.
// The peer sends its microphone as an Opus track; the server decodes it,
// runs it through a peak pipeline and sends each peak back on the peer's
// "peaks" data channel and to the monitor broadcaster.
type SessionHandler struct {
	peaks  chan<- Peak
	config webrtc.Configuration
	buffer int
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	id       string
	pc       *webrtc.PeerConnection
	pipeline *audio.Pipeline
	cancel   context.CancelFunc

	channel  atomic.Pointer[webrtc.DataChannel]
	hasTrack atomic.Bool
}

// NewSessionHandler creates a session handler. Peaks are offered to the peaks
// channel without blocking. stunServer may be empty.
func NewSessionHandler(peaks chan<- Peak, stunServer string, buffer int, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	var cfg webrtc.Configuration
	if stunServer != "" {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: []string{stunServer}}}
	}
	return &SessionHandler{
		peaks:    peaks,
		config:   cfg,
		buffer:   buffer,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// PeerCount returns the number of active recording sessions.
func (h *SessionHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close ends every active session.
func (h *SessionHandler) Close() {
	h.mu.Lock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		h.end(s)
	}
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", SessionHeader)
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, err := webrtc.NewPeerConnection(h.config)
	if err != nil {
		http.Error(w, "create peer connection failed", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:       uuid.NewString(),
		pc:       pc,
		pipeline: audio.NewPipeline(h.buffer, h.logger),
		cancel:   cancel,
	}
	logger := h.logger.With("session", s.id)

	// Registered before negotiation so a connection failure reported while
	// negotiating still tears the session down.
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio ||
			!strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeOpus) {
			logger.Warn("ignoring track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
			return
		}
		if !s.hasTrack.CompareAndSwap(false, true) {
			logger.Warn("ignoring additional audio track", "track", track.ID())
			return
		}
		h.receive(s, track, logger)
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != PeakChannelLabel {
			return
		}
		s.channel.Store(dc)
	})

	// Clean up on disconnect
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed ||
			state == webrtc.PeerConnectionStateDisconnected {
			h.end(s)
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		h.end(s)
		http.Error(w, "set remote description failed", http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		h.end(s)
		http.Error(w, "create answer failed", http.StatusInternalServerError)
		return
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		h.end(s)
		http.Error(w, "set local description failed", http.StatusInternalServerError)
		return
	}

	// Wait for ICE gathering to complete
	select {
	case <-gatherComplete:
	case <-r.Context().Done():
		h.end(s)
		return
	}

	logger.Info("recording session started", "sessions", h.PeerCount())

	go h.forward(ctx, s, logger)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set(SessionHeader, s.id)
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

// receive decodes the peer's Opus packets into mono PCM and feeds the
// session pipeline. It owns the pipeline and closes it when the track ends.
func (h *SessionHandler) receive(s *session, track *webrtc.TrackRemote, logger *slog.Logger) {
	defer s.pipeline.Close()

	dec, err := opus.NewDecoder(audio.SampleRate, 1)
	if err != nil {
		logger.Error("opus decoder", "error", err)
		return
	}
	pcm := make([]float32, audio.OpusMaxFrameSize)

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			blocks, dropped := s.pipeline.Status()
			logger.Info("recording track ended", "blocks", blocks, "dropped_peaks", dropped)
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.DecodeFloat32(pkt.Payload, pcm)
		if err != nil {
			logger.Debug("opus decode error", "error", err)
			continue
		}
		s.pipeline.Write(pcm[:n])
	}
}

// forward delivers session peaks to the peer's data channel and the monitor.
func (h *SessionHandler) forward(ctx context.Context, s *session, logger *slog.Logger) {
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-s.pipeline.Peaks():
			if !ok {
				return
			}
			seq++
			peak := Peak{Session: s.id, Seq: seq, Value: v}

			if dc := s.channel.Load(); dc != nil && dc.ReadyState() == webrtc.DataChannelStateOpen {
				msg, err := json.Marshal(peak)
				if err == nil {
					err = dc.SendText(string(msg))
				}
				if err != nil {
					logger.Debug("peak send failed", "error", err)
				}
			}

			select {
			case h.peaks <- peak:
			default:
				// monitor behind, drop
			}
		}
	}
}

func (h *SessionHandler) end(s *session) {
	h.mu.Lock()
	_, active := h.sessions[s.id]
	delete(h.sessions, s.id)
	h.mu.Unlock()

	s.cancel()
	if s.pc != nil {
		s.pc.Close()
	}
	if active {
		h.logger.Info("recording session ended", "session", s.id, "sessions", h.PeerCount())
	}
}
