package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_Notify(t *testing.T) {
	s := NewStream[int]("stream", 2)

	require.NoError(t, s.Notify(1, time.Millisecond))
	require.NoError(t, s.Notify(2, time.Millisecond))

	// Full buffer: the stream gives up and closes.
	assert.ErrorIs(t, s.Notify(3, 10*time.Millisecond), ErrStreamTimeout)
	assert.ErrorIs(t, s.Notify(4, time.Millisecond), ErrStreamClosed)

	var received []int
	for v := range s.Channel() {
		received = append(received, v)
	}
	assert.Equal(t, []int{1, 2}, received)
}

func TestStream_CloseUnblocksNotify(t *testing.T) {
	s := NewStream[int]("stream", 0)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Notify(1, time.Minute)
	}()

	time.Sleep(20 * time.Millisecond)
	s.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStreamClosed)
	case <-time.After(time.Second):
		require.FailNow(t, "notify still blocked after close")
	}

	select {
	case <-s.Done():
	default:
		require.FailNow(t, "done not closed")
	}

	// Closing twice is fine.
	s.Close()
}
