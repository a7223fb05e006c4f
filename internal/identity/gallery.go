package identity

import "sort"

// Gallery holds the enrolled identities' embeddings in a deterministic
// iteration order. Identities are iterated in ascending identity ID, which
// is also the documented tie-break order for equal match distances.
type Gallery struct {
	ids        []string
	embeddings map[string][][]float32
}

// NewGallery creates an empty gallery.
func NewGallery() *Gallery {
	return &Gallery{
		embeddings: make(map[string][][]float32),
	}
}

// Put replaces the stored embeddings for an identity. Adding a new identity
// keeps the iteration order sorted by identity ID.
func (g *Gallery) Put(identityID string, embeddings [][]float32) {
	if _, exists := g.embeddings[identityID]; !exists {
		g.ids = append(g.ids, identityID)
		sort.Strings(g.ids)
	}
	g.embeddings[identityID] = embeddings
}

// Remove drops an identity from the gallery.
func (g *Gallery) Remove(identityID string) {
	if _, exists := g.embeddings[identityID]; !exists {
		return
	}
	delete(g.embeddings, identityID)
	for i, id := range g.ids {
		if id == identityID {
			g.ids = append(g.ids[:i], g.ids[i+1:]...)
			break
		}
	}
}

// IDs returns the identity IDs in iteration order.
func (g *Gallery) IDs() []string {
	out := make([]string, len(g.ids))
	copy(out, g.ids)
	return out
}

// Embeddings returns the stored embeddings for an identity.
func (g *Gallery) Embeddings(identityID string) [][]float32 {
	return g.embeddings[identityID]
}

// Len returns the number of enrolled identities.
func (g *Gallery) Len() int {
	return len(g.ids)
}

// Distance returns the best-case (minimum) distance between the probe and
// the identity's stored embeddings. Returns +Inf for an unknown identity.
func (g *Gallery) Distance(identityID string, probe []float32) float64 {
	best := infDistance
	for _, emb := range g.embeddings[identityID] {
		if d := EuclideanDistance(emb, probe); d < best {
			best = d
		}
	}
	return best
}
