// Package identity compares face embeddings against the gallery of enrolled
// identities and turns noisy per-frame matches into stable assertions.
package identity

import (
	"context"
	"errors"
	"image"
	"math"
)

// ErrNoFaceInCrop is returned by an Encoder when no face geometry is
// discernible in the crop. The caller skips the box for this tick.
var ErrNoFaceInCrop = errors.New("no face found in crop")

// Encoder is the face embedding collaborator. Implementations map a face
// crop to a fixed-length identity vector and must be stateless from the
// pipeline's point of view.
type Encoder interface {
	Embed(ctx context.Context, crop image.Image) ([]float32, error)
}

// EuclideanDistance computes the Euclidean distance between two embeddings.
// Mismatched or empty vectors yield +Inf so they can never match.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// MeanEmbedding computes the component-wise mean of a set of embeddings.
// Returns nil for an empty set.
func MeanEmbedding(embeddings [][]float32) []float32 {
	if len(embeddings) == 0 {
		return nil
	}

	mean := make([]float32, len(embeddings[0]))
	for _, emb := range embeddings {
		for i := range mean {
			if i < len(emb) {
				mean[i] += emb[i]
			}
		}
	}
	for i := range mean {
		mean[i] /= float32(len(embeddings))
	}
	return mean
}
