package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigKV_GetMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, found, err := s.GetConfig(ctx, "max_retries")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestConfigKV_SetGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetConfig(ctx, "max_retries", "5"))

	value, found, err := s.GetConfig(ctx, "max_retries")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "5", value)
}

func TestConfigKV_SetIsIdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetConfig(ctx, "backoff_base", "3"))
	require.NoError(t, s.SetConfig(ctx, "backoff_base", "3"))
	require.NoError(t, s.SetConfig(ctx, "backoff_base", "4"))

	value, found, err := s.GetConfig(ctx, "backoff_base")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "4", value)

	all, err := s.ListConfig(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "upserts must not accumulate rows")
}
