package covariance

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"CovDash/internal/domain/models"
)

// CSVFilename is the download name of one industry's export.
func CSVFilename(industry string) string {
	return industry + "_covariance_matrix.csv"
}

// FormatCSV renders a labelled square table: an empty corner cell and the
// tickers as the header, then one line per ticker with its row values.
// Every line ends in "\n".
func FormatCSV(tickers []string, values [][]float64) string {
	var b strings.Builder
	_ = writeTable(&b, tickers, values)
	return b.String()
}

// WriteCSV streams sub to w in the FormatCSV layout.
func WriteCSV(w io.Writer, sub *models.Submatrix) error {
	bw := bufio.NewWriter(w)
	if err := writeTable(bw, sub.Tickers, sub.Values); err != nil {
		return err
	}
	return bw.Flush()
}

type stringWriter interface {
	WriteString(s string) (int, error)
}

func writeTable(w stringWriter, tickers []string, values [][]float64) error {
	line := make([]string, 0, len(tickers)+1)
	for _, t := range tickers {
		line = append(line, csvField(t))
	}
	if _, err := w.WriteString("," + strings.Join(line, ",") + "\n"); err != nil {
		return err
	}

	for i, t := range tickers {
		line = line[:0]
		line = append(line, csvField(t))
		for _, v := range values[i] {
			line = append(line, FormatFloat(v))
		}
		if _, err := w.WriteString(strings.Join(line, ",") + "\n"); err != nil {
			return err
		}
	}
	return nil
}

func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\r\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ParseCSV reads a table written by FormatCSV. The header labels and row
// labels must match in the same order and the table must be square.
func ParseCSV(r io.Reader) (*models.Submatrix, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: missing header", models.ErrMalformedCSV)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedCSV, err)
	}
	if len(header) == 0 || header[0] != "" {
		return nil, fmt.Errorf("%w: header must start with an empty cell", models.ErrMalformedCSV)
	}
	tickers := header[1:]
	// An empty table is written as a lone "," header.
	if len(tickers) == 1 && tickers[0] == "" {
		tickers = nil
	}

	values := make([][]float64, 0, len(tickers))
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrMalformedCSV, err)
		}
		i := len(values)
		if i >= len(tickers) {
			return nil, fmt.Errorf("%w: %d rows for %d columns", models.ErrMalformedCSV, i+1, len(tickers))
		}
		if len(rec) != len(tickers)+1 {
			return nil, fmt.Errorf("%w: row %d has %d fields, want %d", models.ErrMalformedCSV, i+1, len(rec), len(tickers)+1)
		}
		if rec[0] != tickers[i] {
			return nil, fmt.Errorf("%w: row label %q does not match column %q", models.ErrMalformedCSV, rec[0], tickers[i])
		}
		row := make([]float64, len(tickers))
		for j, cell := range rec[1:] {
			v, err := ParseFloat(cell)
			if err != nil {
				return nil, fmt.Errorf("%w: row %q column %q: %v", models.ErrMalformedCSV, rec[0], tickers[j], err)
			}
			row[j] = v
		}
		values = append(values, row)
	}
	if len(values) != len(tickers) {
		return nil, fmt.Errorf("%w: %d rows for %d columns", models.ErrMalformedCSV, len(values), len(tickers))
	}

	return &models.Submatrix{Tickers: append([]string(nil), tickers...), Values: values}, nil
}

// ParseMatrixCSV reads a full covariance matrix stored in the CSV layout.
// Unlike ParseCSV it rejects nan and inf cells and repeated tickers.
func ParseMatrixCSV(r io.Reader) (*models.CovarianceMatrix, error) {
	sub, err := ParseCSV(r)
	if err != nil {
		return nil, err
	}
	for i, row := range sub.Values {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: row %q column %q is not finite", models.ErrMalformedCSV, sub.Tickers[i], sub.Tickers[j])
			}
		}
	}
	m, err := models.NewCovarianceMatrix(sub.Tickers, sub.Values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedCSV, err)
	}
	return m, nil
}
