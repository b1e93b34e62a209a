package event

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Bus broadcasts every published event to all streams subscribed at the time
// of publishing. Late subscribers do not see earlier events.
type Bus[E any] struct {
	log           *zap.Logger
	bufferSize    int
	notifyTimeout time.Duration

	streamsMu sync.RWMutex
	streams   []*Stream[E]
	closed    bool
}

func NewBus[E any](log *zap.Logger, bufferSize int, notifyTimeout time.Duration) *Bus[E] {
	return &Bus[E]{
		log:           log,
		bufferSize:    bufferSize,
		notifyTimeout: notifyTimeout,
	}
}

// Subscribe returns a new stream that receives every event published from now
// on. Closing the stream unsubscribes it.
func (b *Bus[E]) Subscribe() *Stream[E] {
	s := NewStream[E](uuid.NewString(), b.bufferSize)
	s.onClose = func() { b.remove(s.id) }

	b.streamsMu.Lock()
	if b.closed {
		b.streamsMu.Unlock()
		s.Close()
		return s
	}
	b.streams = append(b.streams, s)
	b.streamsMu.Unlock()

	return s
}

// Publish delivers e to every current subscriber on the calling goroutine.
// All subscribers share one notify timeout, so Publish returns within about
// that long however many are stalled. A subscriber that cannot keep up is
// closed and misses this and all later events.
func (b *Bus[E]) Publish(e E) {
	b.streamsMu.RLock()
	// Copy streams so delivery happens outside the lock
	streams := make([]*Stream[E], len(b.streams))
	copy(streams, b.streams)
	b.streamsMu.RUnlock()

	deadline := time.Now().Add(b.notifyTimeout)
	for _, s := range streams {
		// Once the deadline passed, Notify only succeeds if the buffer has room.
		if err := s.Notify(e, time.Until(deadline)); err != nil {
			b.log.Debug("Dropping event for stream", zap.String("stream_id", s.ID()), zap.Error(err))
		}
	}
}

// Len returns the number of active subscribers.
func (b *Bus[E]) Len() int {
	b.streamsMu.RLock()
	defer b.streamsMu.RUnlock()

	return len(b.streams)
}

// Close closes every subscribed stream. Later subscribers receive an already
// closed stream.
func (b *Bus[E]) Close() {
	b.streamsMu.Lock()
	b.closed = true
	streams := b.streams
	b.streams = nil
	b.streamsMu.Unlock()

	for _, s := range streams {
		s.Close()
	}
}

func (b *Bus[E]) remove(id string) {
	b.streamsMu.Lock()
	defer b.streamsMu.Unlock()

	for i, s := range b.streams {
		if s.id == id {
			b.streams = append(b.streams[:i], b.streams[i+1:]...)
			return
		}
	}
}
