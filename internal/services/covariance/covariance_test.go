package covariance

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"CovDash/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMatrix(t *testing.T, tickers []string, values [][]float64) *models.CovarianceMatrix {
	t.Helper()
	m, err := models.NewCovarianceMatrix(tickers, values)
	require.NoError(t, err)
	return m
}

func techMatrix(t *testing.T) *models.CovarianceMatrix {
	return mustMatrix(t, []string{"AAPL", "MSFT"}, [][]float64{{1.0, 0.5}, {0.5, 2.0}})
}

func fourMatrix(t *testing.T) *models.CovarianceMatrix {
	return mustMatrix(t,
		[]string{"AAPL", "MSFT", "XOM", "CVX"},
		[][]float64{
			{1.0, 0.5, 0.1, 0.2},
			{0.5, 2.0, 0.3, 0.4},
			{0.1, 0.3, 3.0, 1.5},
			{0.2, 0.4, 1.5, 4.0},
		})
}

func TestComputeRange(t *testing.T) {
	m := fourMatrix(t)
	vals := m.Values()
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var ss float64
	for _, v := range vals {
		ss += (v - mean) * (v - mean)
	}
	std := math.Sqrt(ss / float64(len(vals)))

	r, err := ComputeRange(m)
	require.NoError(t, err)
	assert.InDelta(t, mean-2*std, r.Min, 1e-12)
	assert.InDelta(t, mean+2*std, r.Max, 1e-12)
}

func TestComputeRangeSingleCell(t *testing.T) {
	r, err := ComputeRange(mustMatrix(t, []string{"AAPL"}, [][]float64{{0.25}}))
	require.NoError(t, err)
	assert.Equal(t, models.ColorRange{Min: 0.25, Max: 0.25}, r)
}

func TestComputeRangeEmpty(t *testing.T) {
	_, err := ComputeRange(mustMatrix(t, nil, nil))
	assert.ErrorIs(t, err, models.ErrEmptyMatrix)

	_, err = ComputeRange(nil)
	assert.ErrorIs(t, err, models.ErrEmptyMatrix)
}

func TestComputeRangeNonFinite(t *testing.T) {
	cases := map[string]float64{
		"nan":  math.NaN(),
		"+inf": math.Inf(1),
		"-inf": math.Inf(-1),
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			m := mustMatrix(t, []string{"AAPL", "MSFT"}, [][]float64{{1.0, v}, {v, 2.0}})
			_, err := ComputeRange(m)
			assert.ErrorIs(t, err, models.ErrNonFiniteMatrix)
		})
	}
}

func TestExtract(t *testing.T) {
	m := fourMatrix(t)
	im := models.IndustryMap{"Energy": {"CVX", "XOM"}, "Tech": {"AAPL", "MSFT"}}

	sub, err := Extract("Energy", im, m)
	require.NoError(t, err)
	assert.Equal(t, "Energy", sub.Industry)
	assert.Equal(t, []string{"CVX", "XOM"}, sub.Tickers)
	require.Equal(t, 2, sub.Size())
	for i, ti := range sub.Tickers {
		require.Len(t, sub.Values[i], 2)
		for j, tj := range sub.Tickers {
			a, _ := m.Index(ti)
			b, _ := m.Index(tj)
			assert.Equal(t, m.At(a, b), sub.Values[i][j])
		}
	}
	assert.Equal(t, [][]float64{{4.0, 1.5}, {1.5, 3.0}}, sub.Values)
}

func TestExtractUnknownIndustry(t *testing.T) {
	_, err := Extract("Unknown", models.IndustryMap{"Tech": {"AAPL"}}, techMatrix(t))
	var ue *models.UnknownIndustryError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "Unknown", ue.Industry)
}

func TestExtractUnknownTicker(t *testing.T) {
	im := models.IndustryMap{"Tech": {"AAPL", "GOOG", "NVDA"}}
	_, err := Extract("Tech", im, techMatrix(t))
	var te *models.UnknownTickerError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "GOOG", te.Ticker)
	assert.Equal(t, "Tech", te.Industry)
	assert.Contains(t, err.Error(), "GOOG")
}

func TestExtractEmptyTickerList(t *testing.T) {
	sub, err := Extract("Empty", models.IndustryMap{"Empty": {}}, techMatrix(t))
	require.NoError(t, err)
	assert.Equal(t, 0, sub.Size())
}

func TestFormatCSVExample(t *testing.T) {
	sub, err := Extract("Tech", models.IndustryMap{"Tech": {"AAPL", "MSFT"}}, techMatrix(t))
	require.NoError(t, err)
	assert.Equal(t, ",AAPL,MSFT\nAAPL,1.0,0.5\nMSFT,0.5,2.0\n", FormatCSV(sub.Tickers, sub.Values))

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sub))
	assert.Equal(t, ",AAPL,MSFT\nAAPL,1.0,0.5\nMSFT,0.5,2.0\n", buf.String())
}

func TestFormatFloat(t *testing.T) {
	cases := map[float64]string{
		1:                     "1.0",
		0.5:                   "0.5",
		-2:                    "-2.0",
		0:                     "0.0",
		0.0001:                "0.0001",
		0.00001:               "1e-05",
		1.5e-7:                "1.5e-07",
		123456789:             "123456789.0",
		1e16:                  "1e+16",
		0.0003167329141784931: "0.0003167329141784931",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatFloat(in), "FormatFloat(%v)", in)
	}
	a, b := 0.1, 0.2
	assert.Equal(t, "0.30000000000000004", FormatFloat(a+b))
	assert.Equal(t, "nan", FormatFloat(math.NaN()))
	assert.Equal(t, "inf", FormatFloat(math.Inf(1)))
	assert.Equal(t, "-inf", FormatFloat(math.Inf(-1)))
}

func TestCSVRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		tickers []string
		values  [][]float64
	}{
		{"1x1", []string{"AAPL"}, [][]float64{{0.000123456789}}},
		{"2x2", []string{"AAPL", "MSFT"}, [][]float64{{1.0 / 3, 0.5}, {0.5, 2e-9}}},
		{"0x0", nil, [][]float64{}},
		{"quoted", []string{"BRK,B", `A"B`}, [][]float64{{1, 2}, {2, 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := FormatCSV(tc.tickers, tc.values)
			assert.True(t, strings.HasSuffix(out, "\n"))
			assert.False(t, strings.HasSuffix(out, "\n\n"))

			got, err := ParseCSV(strings.NewReader(out))
			require.NoError(t, err)
			require.Equal(t, len(tc.tickers), got.Size())
			for i := range tc.tickers {
				assert.Equal(t, tc.tickers[i], got.Tickers[i])
				for j := range tc.tickers {
					assert.InDelta(t, tc.values[i][j], got.Values[i][j], 1e-15)
				}
			}
		})
	}
}

func TestParseCSVRejectsMislabelledTable(t *testing.T) {
	cases := map[string]string{
		"row label mismatch": ",AAPL,MSFT\nAAPL,1.0,0.5\nXOM,0.5,2.0\n",
		"missing row":        ",AAPL,MSFT\nAAPL,1.0,0.5\n",
		"extra row":          ",AAPL\nAAPL,1.0\nMSFT,2.0\n",
		"short row":          ",AAPL,MSFT\nAAPL,1.0\nMSFT,0.5,2.0\n",
		"corner not empty":   "x,AAPL\nAAPL,1.0\n",
		"bad number":         ",AAPL\nAAPL,abc\n",
		"empty input":        "",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(in))
			assert.ErrorIs(t, err, models.ErrMalformedCSV)
		})
	}
}

func TestParseMatrixCSV(t *testing.T) {
	m, err := ParseMatrixCSV(strings.NewReader(",AAPL,MSFT\nAAPL,1.0,0.5\nMSFT,0.5,2.0\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, m.Tickers())
	assert.Equal(t, 0.5, m.At(0, 1))

	cases := map[string]string{
		"nan cell":         ",AAPL\nAAPL,nan\n",
		"inf cell":         ",AAPL,MSFT\nAAPL,1.0,inf\nMSFT,0.5,2.0\n",
		"negative inf":     ",AAPL\nAAPL,-inf\n",
		"duplicate ticker": ",AAPL,AAPL\nAAPL,1.0,0.5\nAAPL,0.5,2.0\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMatrixCSV(strings.NewReader(in))
			assert.ErrorIs(t, err, models.ErrMalformedCSV)
		})
	}
}

func readArchive(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		assert.Equal(t, zip.Deflate, f.Method)
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = string(b)
	}
	return out
}

func TestBuildArchive(t *testing.T) {
	m := fourMatrix(t)
	im := models.IndustryMap{"A": {"AAPL", "MSFT"}, "B": {"XOM", "CVX"}}

	art, err := BuildArchive([]string{"A", "B"}, im, m)
	require.NoError(t, err)
	assert.Equal(t, []string{"A_covariance_matrix.csv", "B_covariance_matrix.csv"}, art.Entries)
	assert.Empty(t, art.Skipped)
	assert.Equal(t, "application/zip", art.ContentType)

	files := readArchive(t, art.Data)
	require.Len(t, files, 2)
	for name, body := range files {
		sub, err := ParseCSV(strings.NewReader(body))
		require.NoError(t, err, name)
		assert.Equal(t, 2, sub.Size())
	}
	assert.Equal(t, ",XOM,CVX\nXOM,3.0,1.5\nCVX,1.5,4.0\n", files["B_covariance_matrix.csv"])

	zr, err := zip.NewReader(bytes.NewReader(art.Data), int64(len(art.Data)))
	require.NoError(t, err)
	assert.Equal(t, "A_covariance_matrix.csv", zr.File[0].Name)
	assert.Equal(t, "B_covariance_matrix.csv", zr.File[1].Name)
}

func TestBuildArchiveSkipsUnresolvable(t *testing.T) {
	m := fourMatrix(t)
	im := models.IndustryMap{
		"A":       {"AAPL", "MSFT"},
		"Empty":   {},
		"Missing": {"AAPL", "ZZZZ"},
	}

	art, err := BuildArchive([]string{"A", "Unknown", "Empty", "Missing", "A"}, im, m)
	require.NoError(t, err)
	assert.Equal(t, []string{"A_covariance_matrix.csv"}, art.Entries)
	assert.Len(t, readArchive(t, art.Data), 1)
	assert.Equal(t, []models.SkippedIndustry{
		{Industry: "Unknown", Reason: models.SkipUnknownIndustry},
		{Industry: "Empty", Reason: models.SkipNoTickers},
		{Industry: "Missing", Reason: models.SkipUnknownTicker, Detail: "ZZZZ"},
		{Industry: "A", Reason: models.SkipDuplicate},
	}, art.Skipped)
}

func TestBuildArchiveIsReproducible(t *testing.T) {
	m := fourMatrix(t)
	im := models.IndustryMap{"A": {"AAPL", "MSFT"}}
	a, err := BuildArchive([]string{"A"}, im, m)
	require.NoError(t, err)
	b, err := BuildArchive([]string{"A"}, im, m)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
}

func TestBuildArchiveEntryTimestamps(t *testing.T) {
	m := fourMatrix(t)
	im := models.IndustryMap{"A": {"AAPL", "MSFT"}}

	modified := func(art *models.Artifact) time.Time {
		zr, err := zip.NewReader(bytes.NewReader(art.Data), int64(len(art.Data)))
		require.NoError(t, err)
		require.Len(t, zr.File, 1)
		return zr.File[0].Modified
	}

	art, err := BuildArchive([]string{"A"}, im, m)
	require.NoError(t, err)
	got := modified(art)
	assert.True(t, got.Equal(ArchiveEpoch), "entry time %v", got)
	assert.Equal(t, time.January, got.Month())
	assert.Equal(t, 1, got.Day())

	stamp := time.Date(2024, time.March, 15, 9, 30, 0, 0, time.UTC)
	art, err = BuildArchive([]string{"A"}, im, m, WithModified(stamp))
	require.NoError(t, err)
	got = modified(art)
	assert.True(t, got.Equal(stamp), "entry time %v", got)
}

func TestBuildArchiveEmptySelection(t *testing.T) {
	art, err := BuildArchive([]string{"Nope"}, models.IndustryMap{}, techMatrix(t))
	require.NoError(t, err)
	assert.Empty(t, art.Entries)
	assert.Empty(t, readArchive(t, art.Data))
}

func TestSummarize(t *testing.T) {
	s := Summarize(&models.Submatrix{Tickers: []string{"A", "B"}, Values: [][]float64{{1, 2}, {2, 5}}})
	require.NotNil(t, s)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 5.0, s.Max)
	assert.Equal(t, 2.5, s.Mean)
	assert.Equal(t, 2.0, s.Median)

	assert.Nil(t, Summarize(&models.Submatrix{}))
}

func TestDataURI(t *testing.T) {
	assert.Equal(t, "data:text/csv;base64,LEEKQSwxLjAK", DataURI("text/csv", []byte(",A\nA,1.0\n")))
}
