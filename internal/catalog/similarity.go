package catalog

import (
	"math"
	"sort"
)

// DefaultSimilarityThreshold is the minimum cosine similarity for a product
// to count as a semantic-search match.
const DefaultSimilarityThreshold = 0.25

// DefaultSearchLimit caps the number of semantic-search results.
const DefaultSearchLimit = 10

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths or zero vectors yield 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// RankByEmbedding scores candidates against query, keeps those at or above
// threshold, and returns the top matches ordered by descending similarity.
func RankByEmbedding(candidates []Product, query []float64, threshold float64, limit int) []Match {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	var out []Match
	for _, p := range candidates {
		score := CosineSimilarity(query, p.Embedding)
		if score >= threshold {
			out = append(out, Match{Product: p, Similarity: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
