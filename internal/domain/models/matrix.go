package models

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
)

// CovarianceMatrix is a square table labelled by ticker on both axes.
// It is never mutated after construction and is safe for concurrent reads.
type CovarianceMatrix struct {
	tickers []string
	index   map[string]int
	data    *mat.Dense // nil when the matrix has no tickers
}

// NewCovarianceMatrix builds a matrix from row-major values. len(values) and
// every row must match len(tickers); tickers must be unique.
func NewCovarianceMatrix(tickers []string, values [][]float64) (*CovarianceMatrix, error) {
	n := len(tickers)
	if len(values) != n {
		return nil, fmt.Errorf("covariance matrix: %d rows for %d tickers", len(values), n)
	}
	flat := make([]float64, 0, n*n)
	for i, row := range values {
		if len(row) != n {
			return nil, fmt.Errorf("covariance matrix: row %q has %d columns, want %d", tickers[i], len(row), n)
		}
		flat = append(flat, row...)
	}
	var d *mat.Dense
	if n > 0 {
		d = mat.NewDense(n, n, flat)
	}
	return newMatrix(tickers, d)
}

// NewCovarianceMatrixDense wraps an existing square dense matrix.
func NewCovarianceMatrixDense(tickers []string, d *mat.Dense) (*CovarianceMatrix, error) {
	if len(tickers) == 0 {
		return newMatrix(nil, nil)
	}
	if d == nil {
		return nil, fmt.Errorf("covariance matrix: nil data for %d tickers", len(tickers))
	}
	r, c := d.Dims()
	if r != c || r != len(tickers) {
		return nil, fmt.Errorf("covariance matrix: %dx%d data for %d tickers", r, c, len(tickers))
	}
	return newMatrix(tickers, mat.DenseCopyOf(d))
}

func newMatrix(tickers []string, d *mat.Dense) (*CovarianceMatrix, error) {
	index := make(map[string]int, len(tickers))
	for i, t := range tickers {
		if _, dup := index[t]; dup {
			return nil, fmt.Errorf("covariance matrix: duplicate ticker %q", t)
		}
		index[t] = i
	}
	return &CovarianceMatrix{
		tickers: append([]string(nil), tickers...),
		index:   index,
		data:    d,
	}, nil
}

// Len returns the number of tickers on each axis.
func (m *CovarianceMatrix) Len() int { return len(m.tickers) }

// Tickers returns a copy of the axis labels in matrix order.
func (m *CovarianceMatrix) Tickers() []string { return append([]string(nil), m.tickers...) }

// Index returns the position of ticker on both axes.
func (m *CovarianceMatrix) Index(ticker string) (int, bool) {
	i, ok := m.index[ticker]
	return i, ok
}

// At returns the cell at row i, column j.
func (m *CovarianceMatrix) At(i, j int) float64 { return m.data.At(i, j) }

// Values returns every cell in row-major order.
func (m *CovarianceMatrix) Values() []float64 {
	n := m.Len()
	out := make([]float64, 0, n*n)
	for i := 0; i < n; i++ {
		out = append(out, m.data.RawRowView(i)...)
	}
	return out
}

// IndustryMap maps an industry name to its ordered ticker list.
type IndustryMap map[string][]string

// Names returns the industry names in lexical order.
func (im IndustryMap) Names() []string {
	names := make([]string, 0, len(im))
	for name := range im {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ColorRange is the fixed colour-scale domain shared by every heatmap.
type ColorRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Submatrix is the covariance matrix restricted to one industry's tickers.
type Submatrix struct {
	Industry string      `json:"industry"`
	Tickers  []string    `json:"tickers"`
	Values   [][]float64 `json:"values"`
}

// Size returns the number of rows (and columns).
func (s *Submatrix) Size() int { return len(s.Tickers) }

// Snapshot is one loaded generation of the dashboard inputs.
type Snapshot struct {
	Matrix     *CovarianceMatrix
	Industries IndustryMap
	Range      ColorRange
	Version    uint64
	Source     string
	LoadedAt   time.Time
}

// IndustryOption is a dropdown entry.
type IndustryOption struct {
	Name    string `json:"name"`
	Tickers int    `json:"tickers"`
}
