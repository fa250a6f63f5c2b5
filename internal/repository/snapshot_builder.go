package repository

import (
	"fmt"
	"regexp"
	"sort"

	"CovDash/internal/domain/models"
)

// covCell is one row of the long-format covariance table.
type covCell struct {
	Row   string  `db:"row_ticker"`
	Col   string  `db:"col_ticker"`
	Value float64 `db:"value"`
}

// memberRow is one row of the industry membership table.
type memberRow struct {
	Industry string `db:"industry"`
	Position int    `db:"position"`
	Ticker   string `db:"ticker"`
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// checkTable rejects table names that are not plain (optionally
// database-qualified) identifiers, since they are interpolated into SQL.
func checkTable(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// buildMatrix pivots long-format cells into a square matrix. The axis is
// the sorted set of tickers seen in either column; every pair must be
// present exactly once.
func buildMatrix(cells []covCell) (*models.CovarianceMatrix, error) {
	seen := make(map[string]struct{})
	for _, c := range cells {
		seen[c.Row] = struct{}{}
		seen[c.Col] = struct{}{}
	}
	tickers := make([]string, 0, len(seen))
	for t := range seen {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	n := len(tickers)
	pos := make(map[string]int, n)
	for i, t := range tickers {
		pos[t] = i
	}

	values := make([][]float64, n)
	filled := make([][]bool, n)
	for i := range values {
		values[i] = make([]float64, n)
		filled[i] = make([]bool, n)
	}
	for _, c := range cells {
		i, j := pos[c.Row], pos[c.Col]
		if filled[i][j] {
			return nil, fmt.Errorf("duplicate covariance cell (%s, %s)", c.Row, c.Col)
		}
		values[i][j] = c.Value
		filled[i][j] = true
	}
	for i := range filled {
		for j, ok := range filled[i] {
			if !ok {
				return nil, fmt.Errorf("missing covariance cell (%s, %s)", tickers[i], tickers[j])
			}
		}
	}
	return models.NewCovarianceMatrix(tickers, values)
}

// buildIndustries groups membership rows by industry, ordering tickers by
// position. Rows need not arrive sorted.
func buildIndustries(rows []memberRow) models.IndustryMap {
	sorted := append([]memberRow(nil), rows...)
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a].Industry != sorted[b].Industry {
			return sorted[a].Industry < sorted[b].Industry
		}
		return sorted[a].Position < sorted[b].Position
	})

	im := make(models.IndustryMap)
	for _, r := range sorted {
		im[r.Industry] = append(im[r.Industry], r.Ticker)
	}
	return im
}
