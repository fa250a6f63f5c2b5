package covariance

import (
	"CovDash/internal/domain/models"

	"github.com/montanaflynn/stats"
)

// Summarize returns descriptive statistics over every cell of sub.
// It returns nil for an empty submatrix.
func Summarize(sub *models.Submatrix) *models.Summary {
	data := make(stats.Float64Data, 0, sub.Size()*sub.Size())
	for _, row := range sub.Values {
		data = append(data, row...)
	}
	if len(data) == 0 {
		return nil
	}

	lo, _ := stats.Min(data)
	hi, _ := stats.Max(data)
	mean, _ := stats.Mean(data)
	median, _ := stats.Median(data)
	return &models.Summary{Min: lo, Max: hi, Mean: mean, Median: median}
}
