package publish

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	l, err := NewMemoryLedger(2)
	require.NoError(t, err)

	require.NoError(t, l.Record(ctx, "k1", Result{Platform: Telegram, MessageID: "1"}))
	require.NoError(t, l.Record(ctx, "k1", Result{Platform: X, MessageID: "2"}))

	res, ok, err := l.Lookup(ctx, "k1", X)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", res.MessageID)

	_, ok, _ = l.Lookup(ctx, "k2", X)
	assert.False(t, ok, "keys are scoped")

	require.NoError(t, l.Record(ctx, "k3", Result{Platform: Reddit, MessageID: "3"}))
	_, ok, _ = l.Lookup(ctx, "k1", Telegram)
	assert.False(t, ok, "oldest entry evicted")
}
