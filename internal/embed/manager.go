package embed

import (
	"context"
	"sync"
)

// Manager lazily selects and owns the process's one embedding backend:
// neural when available and loadable, TF-IDF otherwise. It is a plain
// value meant to be constructed once by the root application and injected
// by reference into collaborators, not a package-level singleton (spec §9
// re-architecture note on avoiding global mutable state).
type Manager struct {
	mu         sync.Mutex
	dimensions int
	modelDir   string
	runtime    Runtime

	embedder Embedder
}

// NewManager returns a Manager that will, on first Get, build a TF-IDF
// embedder of the given dimensionality and — if modelDir holds a loadable
// vocabulary and model, and rt is non-nil — prefer a neural embedder wired
// to it instead.
func NewManager(dimensions int, modelDir string, rt Runtime) *Manager {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Manager{dimensions: dimensions, modelDir: modelDir, runtime: rt}
}

// Get returns the process's embedder, initializing it on first call. The
// primary backend is immutable after initialization (spec §6 shared-resource
// policy).
func (m *Manager) Get(ctx context.Context) (Embedder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.embedder != nil {
		return m.embedder, nil
	}

	tfidf := NewTFIDFEmbedder(m.dimensions)
	if m.modelDir == "" {
		m.embedder = tfidf
		return m.embedder, nil
	}

	neural, err := NewNeuralEmbedder(m.modelDir, m.dimensions, tfidf)
	if err != nil {
		m.embedder = tfidf
		return m.embedder, nil
	}
	neural.SetRuntime(m.runtime)

	if neural.Available(ctx) {
		m.embedder = neural
	} else {
		m.embedder = tfidf
	}
	return m.embedder, nil
}

// Reset clears the cached embedder so the next Get re-selects a backend;
// intended for tests that need a fresh Manager state between cases.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedder = nil
}

// TrainVocabulary trains the manager's TF-IDF vocabulary on corpus. If the
// active backend is neural, this trains its TF-IDF fallback instead — the
// neural path never needs vocabulary training.
func (m *Manager) TrainVocabulary(corpus []string) {
	m.mu.Lock()
	embedder := m.embedder
	m.mu.Unlock()

	switch e := embedder.(type) {
	case *TFIDFEmbedder:
		e.Train(corpus)
	case *NeuralEmbedder:
		e.fallback.Train(corpus)
	}
}
