package nebula

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollUntilReadyImmediateSuccess(t *testing.T) {
	err := pollUntilReady(context.Background(), time.Now().Add(time.Minute), func() bool {
		return true
	})
	require.NoError(t, err)
}

func TestPollUntilReadyDeadlineExpired(t *testing.T) {
	calls := 0
	err := pollUntilReady(context.Background(), time.Now().Add(-time.Second), func() bool {
		calls++
		return false
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPollUntilReadyContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pollUntilReady(ctx, time.Now().Add(time.Minute), func() bool {
		return false
	})
	require.ErrorIs(t, err, context.Canceled)
}
