package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
)

func TestStore_GetSet(t *testing.T) {
	s := New()
	ctx := context.Background()

	r, err := s.Get(ctx, "dex-monitor")
	require.NoError(t, err)
	assert.Equal(t, model.Round(0), r)

	require.NoError(t, s.Set(ctx, "dex-monitor", 36_000_000))
	require.NoError(t, s.Set(ctx, "other", 5))

	r, err = s.Get(ctx, "dex-monitor")
	require.NoError(t, err)
	assert.Equal(t, model.Round(36_000_000), r)
	assert.Equal(t, 2, s.Sets())
	assert.NoError(t, s.Close())
}

func TestStore_SetCancelled(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Set(ctx, "x", 1), context.Canceled)
	assert.Equal(t, 0, s.Sets())
}
