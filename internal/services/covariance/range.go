package covariance

import (
	"math"

	"CovDash/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// RangeWidth is the number of standard deviations on each side of the mean.
const RangeWidth = 2.0

// ComputeRange returns mean ± 2σ over every cell of m, diagonal and both
// triangles included. σ is the population standard deviation.
func ComputeRange(m *models.CovarianceMatrix) (models.ColorRange, error) {
	if m == nil || m.Len() == 0 {
		return models.ColorRange{}, models.ErrEmptyMatrix
	}
	mean, std := stat.PopMeanStdDev(m.Values(), nil)
	if !isFinite(mean) || !isFinite(std) {
		return models.ColorRange{}, models.ErrNonFiniteMatrix
	}
	return models.ColorRange{
		Min: mean - RangeWidth*std,
		Max: mean + RangeWidth*std,
	}, nil
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
