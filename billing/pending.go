package billing

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// pending holds the single result of one backend call.
type pending[T any] struct {
	log  *zap.Logger
	once sync.Once
	ch   chan T
}

func newPending[T any](log *zap.Logger) *pending[T] {
	return &pending[T]{
		log: log,
		ch:  make(chan T, 1),
	}
}

// resolve completes the call. Backends must complete a call once; any later
// completion is logged and dropped.
func (p *pending[T]) resolve(v T) {
	resolved := false
	p.once.Do(func() {
		p.ch <- v
		resolved = true
	})
	if !resolved {
		p.log.Warn("Ignoring repeated completion from billing backend")
	}
}

// wait blocks until the call resolves or ctx is done. Abandoning a call does
// not cancel it on the backend.
func (p *pending[T]) wait(ctx context.Context) (T, error) {
	select {
	case v := <-p.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, errors.Wrap(ctx.Err(), "abandoned billing call")
	}
}
