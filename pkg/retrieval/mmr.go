package retrieval

import "math"

// ScoredResult is one fused candidate flowing through the retrieval
// pipeline: a learning or session id with its per-signal scores (spec
// §4.3.4, §4.3.5).
type ScoredResult struct {
	ID          string
	LearningID  int64
	VectorScore float64
	KeywordScore float64
	Score       float64
	Category    string
}

const mmrLambdaDefault = 0.7

// mmrSimilarity approximates inter-result similarity via Euclidean distance
// in the (vectorScore, keywordScore) plane, normalized to [0, 1] (spec
// §4.3.5, since raw embeddings aren't available to the reranker).
func mmrSimilarity(a, b ScoredResult) float64 {
	dv := a.VectorScore - b.VectorScore
	dk := a.KeywordScore - b.KeywordScore
	dist := math.Sqrt(dv*dv + dk*dk)
	sim := 1 - dist/math.Sqrt2
	if sim < 0 {
		sim = 0
	}
	return sim
}

// RerankMMR applies Maximal Marginal Relevance to pick a diverse top-K from
// candidates already sorted by fused score (spec §4.3.5). If len(candidates)
// <= k, it returns them unchanged.
func RerankMMR(candidates []ScoredResult, k int, lambda float64) []ScoredResult {
	if len(candidates) <= k {
		return candidates
	}
	if lambda <= 0 {
		lambda = mmrLambdaDefault
	}

	remaining := make([]ScoredResult, len(candidates))
	copy(remaining, candidates)

	selected := []ScoredResult{remaining[0]}
	remaining = remaining[1:]

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestMMR := math.Inf(-1)
		for i, c := range remaining {
			sSim := 0.0
			for _, r := range selected {
				if s := mmrSimilarity(c, r); s > sSim {
					sSim = s
				}
			}
			mmr := lambda*c.Score - (1-lambda)*sSim
			if mmr > bestMMR {
				bestMMR = mmr
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}
