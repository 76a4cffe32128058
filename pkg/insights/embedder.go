package insights

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// wordPattern extracts word tokens the same way across the embedder, the
// sentiment scorer, and the talk ratio calculator
var wordPattern = regexp.MustCompile(`[a-z0-9_']+`)

func tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// Embedder produces fixed-dimension unit-L2 embeddings for transcripts
type Embedder interface {
	// Embed returns a length-Dimension() vector. Empty or whitespace-only
	// text yields a zero vector with a nil error.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension reports the embedding dimensionality
	Dimension() int
}

// HashingEmbedder is the deterministic fallback embedder. Each word is
// bucketed by three FNV hashes with position weighting, then scaled by a
// log term-frequency factor and normalized to unit length. Deterministic
// for a fixed dimension, so the same transcript always lands at the same
// point in the vector space.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates a fallback embedder of the given dimension
func NewHashingEmbedder(dim int) *HashingEmbedder {
	return &HashingEmbedder{dim: dim}
}

// Dimension reports the embedding dimensionality
func (e *HashingEmbedder) Dimension() int {
	return e.dim
}

// Embed generates a deterministic feature-hashed embedding
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embedding := make([]float64, e.dim)
	words := tokenize(text)
	if len(words) == 0 {
		return toFloat32(embedding), nil
	}

	wordFreq := make(map[string]int, len(words))
	for i, word := range words {
		wordFreq[word]++

		// Three hash buckets per word for better distribution
		h1 := e.bucket(word)
		h2 := e.bucket(word + "_pos")
		h3 := e.bucket(word + strconv.Itoa(len(word)))

		// Earlier words carry slightly more weight
		positionWeight := 1.0 - (float64(i)/float64(len(words)))*0.1

		embedding[h1] += positionWeight
		embedding[h2] += positionWeight * 0.5
		embedding[h3] += positionWeight * 0.3
	}

	// Log term-frequency scaling on the primary bucket
	for word, freq := range wordFreq {
		embedding[e.bucket(word)] *= math.Log(1 + float64(len(words))/float64(freq))
	}

	var magnitude float64
	for _, value := range embedding {
		magnitude += value * value
	}
	magnitude = math.Sqrt(magnitude)
	if magnitude > 0 {
		for i := range embedding {
			embedding[i] /= magnitude
		}
	}

	return toFloat32(embedding), nil
}

func (e *HashingEmbedder) bucket(s string) int {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int(h.Sum64() % uint64(e.dim))
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}
