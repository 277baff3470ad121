package retrieval

import "sort"

// fuseWeighted combines lexical and vector candidate lists into one
// ranking. Each list's scores are normalized by that list's own maximum
// (an all-zero list stays all-zero), then combined as
// alpha*lexical + (1-alpha)*vector over the union of candidates; a
// candidate missing from one list contributes 0 for that side. The
// result is sorted by fused score descending, ties broken by chunk ID.
func fuseWeighted(lexical, vector []ScoredChunk, alpha float64) []ScoredChunk {
	lexScores := normalize(lexical)
	vecScores := normalize(vector)

	chunks := make(map[string]ScoredChunk, len(lexical)+len(vector))
	for _, c := range lexical {
		chunks[c.ID] = c
	}
	for _, c := range vector {
		if _, exists := chunks[c.ID]; !exists {
			chunks[c.ID] = c
		}
	}

	fused := make([]ScoredChunk, 0, len(chunks))
	for id, c := range chunks {
		c.Score = alpha*lexScores[id] + (1-alpha)*vecScores[id]
		fused = append(fused, c)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})
	return fused
}

// normalize maps each candidate's score to [0,1] by dividing by the
// list's maximum. A list whose maximum is zero (or negative) is left at
// zero rather than divided.
func normalize(list []ScoredChunk) map[string]float64 {
	scores := make(map[string]float64, len(list))
	maxScore := 0.0
	for _, c := range list {
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}
	for _, c := range list {
		if maxScore > 0 {
			scores[c.ID] = c.Score / maxScore
		} else {
			scores[c.ID] = 0
		}
	}
	return scores
}
