package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
	"sync"
)

// seedVocabulary lists domain-common terms for the language under index:
// attribute keywords, declaration kinds, and identifiers common enough to
// deserve a fixed slot before training ever sees a corpus.
var seedVocabulary = []string{
	"safe", "trusted", "system", "nogc", "pure", "nothrow", "const", "immutable",
	"shared", "scope", "final", "override", "abstract", "static", "extern",
	"public", "private", "protected", "package",
	"struct", "class", "interface", "enum", "union", "template", "mixin",
	"function", "delegate", "alias", "module", "import",
	"int", "uint", "long", "ulong", "short", "ushort", "byte", "ubyte",
	"float", "double", "real", "bool", "char", "wchar", "dchar", "string",
	"void", "auto", "array", "range", "slice",
	"return", "throw", "catch", "try", "finally", "foreach", "while", "for",
	"if", "else", "switch", "case", "break", "continue", "new", "delete",
	"this", "super", "null", "true", "false",
	"allocate", "deallocate", "append", "length", "capacity", "pointer",
	"reference", "value", "key", "index", "iterator", "container",
}

// tfidfTokenRegex matches lowercase identifier-shaped runs.
var tfidfTokenRegex = regexp.MustCompile(`[a-z][a-z0-9_]*`)

// tokenizeTFIDF lowercases text and extracts tokens of length 2..20.
func tokenizeTFIDF(text string) []string {
	lower := strings.ToLower(text)
	matches := tfidfTokenRegex.FindAllString(lower, -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) >= 2 && len(m) <= 20 {
			tokens = append(tokens, m)
		}
	}
	return tokens
}

// tfidfDocument is the on-disk shape of models/tfidf_vocab.json.
type tfidfDocument struct {
	Vocabulary map[string]int `json:"vocabulary"`
	IDF        []float64      `json:"idf"`
}

// TFIDFEmbedder is the always-available backend: a trainable bag-of-words
// vectorizer over a fixed-size vocabulary seeded with domain-common terms.
type TFIDFEmbedder struct {
	mu         sync.RWMutex
	dimensions int
	vocabulary map[string]int // term -> index
	idf        []float64
	closed     bool
}

// NewTFIDFEmbedder returns a TF-IDF embedder of dimension d, its vocabulary
// seeded with the first d domain-common terms and idf initialized to 1.0.
func NewTFIDFEmbedder(d int) *TFIDFEmbedder {
	if d <= 0 {
		d = DefaultDimensions
	}
	e := &TFIDFEmbedder{
		dimensions: d,
		vocabulary: make(map[string]int, d),
		idf:        make([]float64, d),
	}
	for i := range e.idf {
		e.idf[i] = 1.0
	}
	for _, term := range seedVocabulary {
		if len(e.vocabulary) >= d {
			break
		}
		if _, ok := e.vocabulary[term]; !ok {
			e.vocabulary[term] = len(e.vocabulary)
		}
	}
	return e
}

// Embed term-counts text against the vocabulary and scales by idf.
func (e *TFIDFEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, fmt.Errorf("tfidf embedder is closed")
	}

	vec := make([]float32, e.dimensions)
	if strings.TrimSpace(text) == "" {
		return vec, nil
	}

	tokens := tokenizeTFIDF(text)
	if len(tokens) == 0 {
		return vec, nil
	}

	counts := make(map[int]int)
	for _, tok := range tokens {
		if idx, ok := e.vocabulary[tok]; ok {
			counts[idx]++
		}
	}
	total := float64(len(tokens))
	for idx, count := range counts {
		vec[idx] = float32(float64(count) / total * e.idf[idx])
	}
	return normalizeVector(vec), nil
}

// EmbedBatch embeds each text independently.
func (e *TFIDFEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Train computes document frequency over corpus, refreshes idf for terms
// already in the vocabulary, and grows the vocabulary with previously
// unseen terms up to D (spec P5: trained idf never drops below 1.0).
func (e *TFIDFEmbedder) Train(corpus []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	df := make(map[string]int)
	n := len(corpus)
	for _, doc := range corpus {
		seen := make(map[string]bool)
		for _, tok := range tokenizeTFIDF(doc) {
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}
	if n == 0 {
		return
	}

	for term, count := range df {
		if idx, ok := e.vocabulary[term]; ok {
			e.idf[idx] = math.Log(float64(n)/float64(count)) + 1
			continue
		}
		if len(e.vocabulary) >= e.dimensions {
			continue
		}
		idx := len(e.vocabulary)
		e.vocabulary[term] = idx
		e.idf[idx] = math.Log(float64(n)/float64(count)) + 1
	}
}

// Dimensions returns D.
func (e *TFIDFEmbedder) Dimensions() int { return e.dimensions }

// Name identifies this backend.
func (e *TFIDFEmbedder) Name() string { return "tfidf" }

// Available is always true: TF-IDF needs no external runtime.
func (e *TFIDFEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the embedder closed; it holds no OS resources.
func (e *TFIDFEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Save persists the vocabulary and idf weights as the structured document
// described by the data layout (models/tfidf_vocab.json).
func (e *TFIDFEmbedder) Save(path string) error {
	e.mu.RLock()
	doc := tfidfDocument{Vocabulary: e.vocabulary, IDF: e.idf}
	e.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tfidf document: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tfidf document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename tfidf document: %w", err)
	}
	return nil
}

// Load replaces both vocabulary and idf weights from path (spec: load
// replaces both).
func (e *TFIDFEmbedder) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tfidf document: %w", err)
	}
	var doc tfidfDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal tfidf document: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.vocabulary = doc.Vocabulary
	e.idf = doc.IDF
	e.dimensions = len(doc.IDF)
	return nil
}
