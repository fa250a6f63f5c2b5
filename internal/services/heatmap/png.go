package heatmap

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"CovDash/internal/domain/models"
)

// RenderPNG rasterises sub as a cell×cell pixel grid coloured on rng.
func RenderPNG(sub *models.Submatrix, rng models.ColorRange, scaleName string, cell int) ([]byte, error) {
	if sub.Size() == 0 {
		return nil, fmt.Errorf("render %q: no tickers", sub.Industry)
	}
	if cell <= 0 {
		cell = 1
	}
	scale, err := LookupScale(scaleName)
	if err != nil {
		return nil, err
	}

	n := sub.Size()
	img := image.NewRGBA(image.Rect(0, 0, n*cell, n*cell))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c := scale.At(sub.Values[i][j], rng.Min, rng.Max)
			for y := i * cell; y < (i+1)*cell; y++ {
				for x := j * cell; x < (j+1)*cell; x++ {
					img.Set(x, y, c)
				}
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
