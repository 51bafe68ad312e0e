package embed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeuralUnavailableWithoutModelDir(t *testing.T) {
	fallback := NewTFIDFEmbedder(16)
	e, err := NewNeuralEmbedder(t.TempDir(), 16, fallback)
	require.NoError(t, err)
	assert.False(t, e.Available(context.Background()))
}

func TestNeuralEmbedDelegatesToFallbackWhenNoRuntime(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vocab.txt"), []byte("[CLS]\n[SEP]\n[UNK]\nsafe\n##ly\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("not a real model"), 0o644))

	fallback := NewTFIDFEmbedder(16)
	e, err := NewNeuralEmbedder(dir, 16, fallback)
	require.NoError(t, err)
	assert.False(t, e.Available(context.Background())) // no runtime wired

	want, err := fallback.Embed(context.Background(), "safely")
	require.NoError(t, err)
	got, err := e.Embed(context.Background(), "safely")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func writeMinimalVocab(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vocab.txt"), []byte("[CLS]\n[SEP]\n[UNK]\nsafe\n##ly\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("not a real model"), 0o644))
}

type stubRuntime struct {
	dim int
	err error
}

func (s *stubRuntime) Infer(_ context.Context, tokenIDs []int) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	hidden := make([][]float32, len(tokenIDs))
	for i, id := range tokenIDs {
		v := make([]float32, s.dim)
		v[id%s.dim] = 1
		hidden[i] = v
	}
	return hidden, nil
}

func TestNeuralAvailableAndEmbedWithRuntimeWired(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vocab.txt"), []byte("[CLS]\n[SEP]\n[UNK]\nsafe\n##ly\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("not a real model"), 0o644))

	fallback := NewTFIDFEmbedder(8)
	e, err := NewNeuralEmbedder(dir, 8, fallback)
	require.NoError(t, err)
	e.SetRuntime(&stubRuntime{dim: 8})

	assert.True(t, e.Available(context.Background()))

	v, err := e.Embed(context.Background(), "safely")
	require.NoError(t, err)
	assert.Len(t, v, 8)
}

func TestNeuralEmbedFallsBackOnInferenceError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vocab.txt"), []byte("[CLS]\n[SEP]\n[UNK]\nsafe\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("x"), 0o644))

	fallback := NewTFIDFEmbedder(8)
	e, err := NewNeuralEmbedder(dir, 8, fallback)
	require.NoError(t, err)
	e.SetRuntime(&stubRuntime{dim: 8, err: assertErr{}})

	want, err := fallback.Embed(context.Background(), "safe code")
	require.NoError(t, err)
	got, err := e.Embed(context.Background(), "safe code")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

type assertErr struct{}

func (assertErr) Error() string { return "inference failed" }

func TestNeuralEmbedEmptyStringIsZeroVector(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vocab.txt"), []byte("[CLS]\n[SEP]\n[UNK]\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("x"), 0o644))

	fallback := NewTFIDFEmbedder(8)
	e, err := NewNeuralEmbedder(dir, 8, fallback)
	require.NoError(t, err)
	e.SetRuntime(&stubRuntime{dim: 8})

	v, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, x := range v {
		assert.Equal(t, float32(0), x)
	}
}
