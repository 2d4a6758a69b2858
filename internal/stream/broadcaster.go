package stream

import (
	"context"
	"sync"
)

// Peak is one waveform peak produced by a live session.
type Peak struct {
	Session string  `json:"session"`
	Seq     uint64  `json:"seq"`
	Value   float32 `json:"peak"`
}

// Broadcaster fans out peaks from all live sessions to N listeners.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	buffer    int
}

// Listener receives peaks from the broadcaster.
type Listener struct {
	C    chan Peak // buffered; peaks are dropped when full
	done chan struct{}
}

// NewBroadcaster creates a broadcaster whose listeners buffer up to buffer peaks.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
		buffer:    buffer,
	}
}

// Subscribe registers a new listener. Returns a Listener that receives peaks.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan Peak, b.buffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	delete(b.listeners, l)
	b.mu.Unlock()
	close(l.done)
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Run reads peaks from source and fans out to all listeners.
// Slow listeners get peaks dropped rather than blocking the broadcast.
func (b *Broadcaster) Run(ctx context.Context, source <-chan Peak) {
	for {
		select {
		case <-ctx.Done():
			return
		case peak, ok := <-source:
			if !ok {
				return
			}
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- peak:
				default:
					// listener too slow, drop peak to keep broadcast moving
				}
			}
			b.mu.RUnlock()
		}
	}
}
