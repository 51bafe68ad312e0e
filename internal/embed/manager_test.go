package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerGetSelectsTFIDFWithoutModelDir(t *testing.T) {
	m := NewManager(16, "", nil)
	e, err := m.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tfidf", e.Name())
}

func TestManagerGetIsLazyAndCached(t *testing.T) {
	m := NewManager(16, "", nil)
	a, err := m.Get(context.Background())
	require.NoError(t, err)
	b, err := m.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestManagerResetClearsCachedEmbedder(t *testing.T) {
	m := NewManager(16, "", nil)
	a, err := m.Get(context.Background())
	require.NoError(t, err)
	m.Reset()
	b, err := m.Get(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestManagerGetSelectsNeuralWhenRuntimeAndModelPresent(t *testing.T) {
	dir := t.TempDir()
	writeMinimalVocab(t, dir)

	m := NewManager(8, dir, &stubRuntime{dim: 8})
	e, err := m.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "neural", e.Name())
}
