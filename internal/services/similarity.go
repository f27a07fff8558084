package services

import (
	"math"
	"strings"

	"dance-match-backend/internal/models"
)

// SimilarityFunc scores two profiles in [0, 1]. It must be pure and commutative.
type SimilarityFunc func(a, b *models.Profile) float64

const (
	styleWeight = 0.6
	levelWeight = 0.25
	cityWeight  = 0.15
	maxLevelGap = 5
)

// Similarity weighs shared dance styles, closeness of level and same city
func Similarity(a, b *models.Profile) float64 {
	if a == nil || b == nil {
		return 0
	}
	score := styleWeight*jaccard(a.DanceStyles, b.DanceStyles) +
		levelWeight*levelCloseness(a.Level, b.Level) +
		cityWeight*sameCity(a.City, b.City)
	return math.Round(score*1000) / 1000
}

func normalize(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b []string) float64 {
	sa, sb := normalize(a), normalize(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 0
	}
	shared := 0
	for v := range sa {
		if _, ok := sb[v]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(sa)+len(sb)-shared)
}

// levelCloseness treats a non-positive level as unknown
func levelCloseness(a, b int) float64 {
	if a <= 0 || b <= 0 {
		return 0.5
	}
	gap := math.Abs(float64(a - b))
	return math.Max(0, 1-gap/maxLevelGap)
}

func sameCity(a, b string) float64 {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a != "" && strings.EqualFold(a, b) {
		return 1
	}
	return 0
}
