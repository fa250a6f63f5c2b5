package heatmap

import (
	"math"

	"CovDash/internal/domain/models"
	"CovDash/internal/services/covariance"
)

// Columns is the number of heatmaps per row on a dashboard page.
const Columns = 2

// FigureOptions controls how a submatrix is turned into a figure.
type FigureOptions struct {
	ColorScale  string
	ShowValues  bool
	Decimals    int
	Position    int
	Columns     int
	DownloadURL string
}

// GridFor returns the subplot grid for n figures.
func GridFor(n, cols int) models.Grid {
	if cols <= 0 {
		cols = Columns
	}
	if n < cols {
		cols = max(n, 1)
	}
	return models.Grid{Rows: (n + cols - 1) / cols, Cols: cols}
}

// BuildFigure turns a submatrix into a heatmap figure on the fixed domain rng.
func BuildFigure(sub *models.Submatrix, rng models.ColorRange, opts FigureOptions) models.HeatmapFigure {
	cols := opts.Columns
	if cols <= 0 {
		cols = Columns
	}
	scale := opts.ColorScale
	if scale == "" {
		scale = DefaultScale
	}

	fig := models.HeatmapFigure{
		Industry:    sub.Industry,
		Title:       "Covariance Heatmap: " + sub.Industry,
		X:           sub.Tickers,
		Y:           sub.Tickers,
		Z:           sub.Values,
		ZMin:        rng.Min,
		ZMax:        rng.Max,
		ColorScale:  scale,
		Summary:     covariance.Summarize(sub),
		Row:         opts.Position/cols + 1,
		Col:         opts.Position%cols + 1,
		DownloadURL: opts.DownloadURL,
	}
	if opts.ShowValues {
		fig.Annotations = Annotate(sub, opts.Decimals)
	}
	return fig
}

// Annotate returns one text label per cell, rounded to decimals places.
func Annotate(sub *models.Submatrix, decimals int) []models.Annotation {
	out := make([]models.Annotation, 0, sub.Size()*sub.Size())
	for i, y := range sub.Tickers {
		for j, x := range sub.Tickers {
			out = append(out, models.Annotation{
				X:    x,
				Y:    y,
				Text: covariance.FormatFloat(round(sub.Values[i][j], decimals)),
			})
		}
	}
	return out
}

func round(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
