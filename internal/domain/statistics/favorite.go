// Package statistics composes engine state into dashboard read models.
// Everything here is pure: callers load the data, these functions shape it.
package statistics

import (
	"math"

	"github.com/captus-hub/captus-engine/internal/domain/activity"
)

// FavoriteCategory is the best-scoring category of a user.
type FavoriteCategory struct {
	CategoryID     int64   `json:"category_id"`
	Name           string  `json:"name"`
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	CompletionRate float64 `json:"completion_rate"`
	Score          float64 `json:"score"`
}

// ScoreCategory weighs completion rate by volume:
// rate * ln(total + 1). Empty categories score 0.
func ScoreCategory(c activity.CategoryActivity) (rate, score float64) {
	if c.TotalTasks <= 0 {
		return 0, 0
	}
	rate = float64(c.CompletedTasks) / float64(c.TotalTasks)
	return rate, rate * math.Log(float64(c.TotalTasks)+1)
}

// Favorite returns the highest scoring category, or nil when no category
// has tasks. Ties keep the first category in input order.
func Favorite(categories []activity.CategoryActivity) *FavoriteCategory {
	var best *FavoriteCategory
	for _, c := range categories {
		if c.TotalTasks <= 0 {
			continue
		}
		rate, score := ScoreCategory(c)
		if best != nil && score <= best.Score {
			continue
		}
		best = &FavoriteCategory{
			CategoryID:     c.CategoryID,
			Name:           c.Name,
			TotalTasks:     c.TotalTasks,
			CompletedTasks: c.CompletedTasks,
			CompletionRate: rate,
			Score:          score,
		}
	}
	return best
}

// Verdict explains why a category is the favorite.
type Verdict string

const (
	VerdictExcellent      Verdict = "excellent"
	VerdictBalanced       Verdict = "balanced"
	VerdictMostActive     Verdict = "most active"
	VerdictGettingStarted Verdict = "getting started"
)

// Classify picks the verdict for a favorite category. Thresholds are
// checked in order; the first match wins.
func Classify(f FavoriteCategory) Verdict {
	switch {
	case f.CompletionRate >= 0.8 && f.TotalTasks >= 10:
		return VerdictExcellent
	case f.CompletionRate >= 0.7:
		return VerdictBalanced
	case f.TotalTasks >= 20:
		return VerdictMostActive
	default:
		return VerdictGettingStarted
	}
}
