package embed

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// maxSeqLen is the token budget per sequence, flanked by [CLS]/[SEP].
const maxSeqLen = 128

const (
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"
	tokenUNK = "[UNK]"
)

// wordRegex is the fallback tokenizer used when no vocabulary file loads.
var wordRegex = regexp.MustCompile(`[A-Za-z0-9]+`)

// Runtime runs a loaded transformer model over token ids and returns one
// hidden-state vector per token. No concrete Runtime ships in this module:
// wiring one (ONNX, GGML, or similar) is a deployment-time decision, and
// its absence is exactly the "runtime not found" case the neural backend
// must fall back from.
type Runtime interface {
	Infer(ctx context.Context, tokenIDs []int) ([][]float32, error)
}

// NeuralEmbedder loads a transformer's WordPiece vocabulary from a model
// directory and, when a Runtime is wired and the model file is present,
// embeds by mean-pooling per-token hidden states. A missing model file or
// runtime, or an inference error, makes Embed delegate to the TF-IDF
// fallback instead of failing the caller. Without a vocabulary Embed
// tokenizes by plain word splitting, and Available reports false.
type NeuralEmbedder struct {
	mu         sync.RWMutex
	dir        string
	dimensions int
	vocab      map[string]int // WordPiece piece -> id
	modelFound bool
	runtime    Runtime
	fallback   *TFIDFEmbedder
	closed     bool
}

// NewNeuralEmbedder opens dir looking for vocab.txt (one WordPiece token per
// line) and model.onnx; a tokenizer.json is not read. Neither being present is not
// an error: Available() simply reports false and Embed delegates to
// fallback, matching the documented fallback policy.
func NewNeuralEmbedder(dir string, dimensions int, fallback *TFIDFEmbedder) (*NeuralEmbedder, error) {
	if fallback == nil {
		return nil, fmt.Errorf("neural embedder requires a tfidf fallback")
	}
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	e := &NeuralEmbedder{dir: dir, dimensions: dimensions, fallback: fallback}

	if vocab, err := loadWordPieceVocab(dir); err == nil {
		e.vocab = vocab
	}
	if _, err := os.Stat(filepath.Join(dir, "model.onnx")); err == nil {
		e.modelFound = true
	}
	return e, nil
}

// SetRuntime wires the inference backend. Passing nil disables inference,
// forcing every Embed call through the fallback.
func (e *NeuralEmbedder) SetRuntime(rt Runtime) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runtime = rt
}

func loadWordPieceVocab(dir string) (map[string]int, error) {
	path := filepath.Join(dir, "vocab.txt")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vocab := make(map[string]int)
	scanner := bufio.NewScanner(f)
	idx := 0
	for scanner.Scan() {
		piece := strings.TrimSpace(scanner.Text())
		if piece == "" {
			continue
		}
		vocab[piece] = idx
		idx++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return vocab, nil
}

// wordPieceTokenize greedily matches the longest known piece (continuation
// pieces prefixed "##") starting at each position of word; unmatched words
// become [UNK].
func wordPieceTokenize(vocab map[string]int, word string) []string {
	if len(vocab) == 0 {
		return []string{word}
	}
	var pieces []string
	start := 0
	runes := []rune(word)
	for start < len(runes) {
		end := len(runes)
		var matched string
		for end > start {
			candidate := string(runes[start:end])
			if start > 0 {
				candidate = "##" + candidate
			}
			if _, ok := vocab[candidate]; ok {
				matched = candidate
				break
			}
			end--
		}
		if matched == "" {
			return []string{tokenUNK}
		}
		pieces = append(pieces, matched)
		start = end
	}
	return pieces
}

// tokenizeNeural splits text into words, WordPiece-tokenizes each (or falls
// back to the word itself when no vocabulary loaded), and returns token ids
// truncated to maxSeqLen-2 and flanked by [CLS]/[SEP].
func (e *NeuralEmbedder) tokenizeNeural(text string) []int {
	words := wordRegex.FindAllString(strings.ToLower(text), -1)

	var pieces []string
	for _, w := range words {
		pieces = append(pieces, wordPieceTokenize(e.vocab, w)...)
	}
	if len(pieces) > maxSeqLen-2 {
		pieces = pieces[:maxSeqLen-2]
	}

	ids := make([]int, 0, len(pieces)+2)
	ids = append(ids, e.idFor(tokenCLS))
	for _, p := range pieces {
		ids = append(ids, e.idFor(p))
	}
	ids = append(ids, e.idFor(tokenSEP))
	return ids
}

func (e *NeuralEmbedder) idFor(piece string) int {
	if id, ok := e.vocab[piece]; ok {
		return id
	}
	if id, ok := e.vocab[tokenUNK]; ok {
		return id
	}
	return 0
}

// Embed mean-pools per-token hidden states from the runtime, or delegates
// to the TF-IDF fallback when any prerequisite is missing.
func (e *NeuralEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	runtime := e.runtime
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("neural embedder is closed")
	}
	if runtime == nil || !e.modelFound {
		return e.fallback.Embed(ctx, text)
	}
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dimensions), nil
	}

	ids := e.tokenizeNeural(text)
	hidden, err := runtime.Infer(ctx, ids)
	if err != nil || len(hidden) == 0 {
		return e.fallback.Embed(ctx, text)
	}

	dim := len(hidden[0])
	sum := make([]float64, dim)
	for _, tok := range hidden {
		for i, v := range tok {
			sum[i] += float64(v)
		}
	}
	pooled := make([]float32, dim)
	for i, s := range sum {
		pooled[i] = float32(s / float64(len(hidden)))
	}
	return normalizeVector(pooled), nil
}

// EmbedBatch embeds each text independently.
func (e *NeuralEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

// Dimensions returns D.
func (e *NeuralEmbedder) Dimensions() int { return e.dimensions }

// Name identifies this backend.
func (e *NeuralEmbedder) Name() string { return "neural" }

// Available reports whether a runtime, a model file, and a vocabulary are
// all present; any one missing means the backend is not loadable.
func (e *NeuralEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed && e.runtime != nil && e.modelFound && len(e.vocab) > 0
}

// Close releases resources; the fallback embedder is owned by the caller
// and is not closed here.
func (e *NeuralEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
