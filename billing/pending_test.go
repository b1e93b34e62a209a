package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPending_ResolvesOnce(t *testing.T) {
	p := newPending[ConsumeResult](zap.NewNop())

	go func() {
		p.resolve(Success("first"))
		p.resolve(Failure[string](Error))
	}()

	result, err := p.wait(context.Background())
	require.NoError(t, err)
	require.False(t, result.Failed())
	assert.Equal(t, "first", result.Payload())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPending_Canceled(t *testing.T) {
	p := newPending[PurchaseResult](zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// A late completion must not block the backend.
	p.resolve(Success(struct{}{}))
}
