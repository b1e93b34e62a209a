package event

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrStreamClosed  = errors.New("cannot notify closed stream")
	ErrStreamTimeout = errors.New("timed out sending event to stream")
)

// Stream delivers events to a single consumer through a buffered channel.
// Events arrive in the order they were notified.
type Stream[E any] struct {
	mu sync.Mutex

	id string

	closed    bool
	ch        chan E
	done      chan struct{}
	closeOnce sync.Once
	onClose   func()
}

func NewStream[E any](id string, bufferSize int) *Stream[E] {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Stream[E]{
		id:   id,
		ch:   make(chan E, bufferSize),
		done: make(chan struct{}),
	}
}

func (s *Stream[E]) ID() string {
	return s.id
}

// Notify queues the event for the consumer. If the buffer stays full for
// longer than timeout the stream is closed and ErrStreamTimeout is returned.
func (s *Stream[E]) Notify(event E, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}

	select {
	case s.ch <- event:
		return nil
	default:
	}

	if timeout <= 0 {
		s.closeLocked()
		return ErrStreamTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.ch <- event:
		return nil
	case <-s.done:
		return ErrStreamClosed
	case <-timer.C:
		s.closeLocked()
		return ErrStreamTimeout
	}
}

func (s *Stream[E]) Channel() <-chan E {
	return s.ch
}

// Done is closed once the stream stops accepting events.
func (s *Stream[E]) Done() <-chan struct{} {
	return s.done
}

func (s *Stream[E]) Close() {
	// Wake a Notify blocked on a full buffer before taking the lock.
	s.closeOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()
}

func (s *Stream[E]) closeLocked() {
	if s.closed {
		return
	}

	s.closeOnce.Do(func() { close(s.done) })
	s.closed = true
	close(s.ch)

	if s.onClose != nil {
		s.onClose()
	}
}
