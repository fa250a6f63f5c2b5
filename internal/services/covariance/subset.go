package covariance

import (
	"CovDash/internal/domain/models"
)

// Extract returns the submatrix for one industry, rows and columns in the
// industry's ticker order. It never skips: an industry missing from the map
// yields *models.UnknownIndustryError and a ticker missing from the matrix
// yields *models.UnknownTickerError naming the first such ticker.
func Extract(industry string, industries models.IndustryMap, m *models.CovarianceMatrix) (*models.Submatrix, error) {
	tickers, ok := industries[industry]
	if !ok {
		return nil, &models.UnknownIndustryError{Industry: industry}
	}
	return ExtractTickers(industry, tickers, m)
}

// ExtractTickers slices m down to the given ticker list.
func ExtractTickers(industry string, tickers []string, m *models.CovarianceMatrix) (*models.Submatrix, error) {
	idx := make([]int, len(tickers))
	for k, t := range tickers {
		i, ok := m.Index(t)
		if !ok {
			return nil, &models.UnknownTickerError{Industry: industry, Ticker: t}
		}
		idx[k] = i
	}

	values := make([][]float64, len(idx))
	for r, i := range idx {
		row := make([]float64, len(idx))
		for c, j := range idx {
			row[c] = m.At(i, j)
		}
		values[r] = row
	}

	return &models.Submatrix{
		Industry: industry,
		Tickers:  append([]string(nil), tickers...),
		Values:   values,
	}, nil
}
