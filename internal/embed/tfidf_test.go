package embed

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTFIDFEmbedEmptyStringIsZeroVector(t *testing.T) {
	e := NewTFIDFEmbedder(32)
	v, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, x := range v {
		assert.Equal(t, float32(0), x)
	}
}

func TestTFIDFEmbedIsL2Normalized(t *testing.T) {
	e := NewTFIDFEmbedder(32)
	v, err := e.Embed(context.Background(), "pure nothrow safe function returns int")
	require.NoError(t, err)

	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-4)
}

func TestTFIDFEmbedIsDeterministic(t *testing.T) {
	e := NewTFIDFEmbedder(32)
	a, err := e.Embed(context.Background(), "allocate a reference counted container")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "allocate a reference counted container")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTFIDFTrainRaisesIDFAboveOneForPresentTerms(t *testing.T) {
	e := NewTFIDFEmbedder(128)
	corpus := []string{
		"widget allocates a buffer",
		"widget frees a buffer",
		"gadget does nothing with the buffer",
	}
	e.Train(corpus)

	idx, ok := e.vocabulary["widget"]
	require.True(t, ok)
	assert.GreaterOrEqual(t, e.idf[idx], 1.0)
}

func TestTFIDFTrainExtendsVocabularyUpToDimensions(t *testing.T) {
	e := NewTFIDFEmbedder(4)
	// exhaust the tiny vocabulary with the seed terms already present
	before := len(e.vocabulary)
	e.Train([]string{"zzzznotseeded anotherzzz unseenterm"})
	assert.LessOrEqual(t, len(e.vocabulary), 4)
	assert.GreaterOrEqual(t, len(e.vocabulary), before)
}

func TestTFIDFSaveLoadRoundTrip(t *testing.T) {
	e := NewTFIDFEmbedder(16)
	e.Train([]string{"widget allocates a buffer", "gadget frees the buffer"})

	before, err := e.Embed(context.Background(), "widget buffer gadget")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tfidf_vocab.json")
	require.NoError(t, e.Save(path))

	fresh := NewTFIDFEmbedder(16)
	require.NoError(t, fresh.Load(path))

	after, err := fresh.Embed(context.Background(), "widget buffer gadget")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestTFIDFAvailableFalseAfterClose(t *testing.T) {
	e := NewTFIDFEmbedder(8)
	assert.True(t, e.Available(context.Background()))
	require.NoError(t, e.Close())
	assert.False(t, e.Available(context.Background()))
}
