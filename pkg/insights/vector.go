package insights

import (
	"encoding/binary"
	"math"

	pkgerrors "callinsights-server/pkg/errors"
)

// EncodeVector serializes an embedding as little-endian float32 bytes for
// blob storage
func EncodeVector(vector []float32) []byte {
	if len(vector) == 0 {
		return nil
	}

	data := make([]byte, len(vector)*4)
	for i, value := range vector {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(value))
	}
	return data
}

// DecodeVector deserializes a stored embedding blob
func DecodeVector(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data)%4 != 0 {
		return nil, pkgerrors.Wrap(pkgerrors.ErrEmbeddingDimension, "decoding embedding blob").
			WithField("bytes", len(data))
	}

	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector, nil
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched dimensions or a zero-magnitude operand yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
