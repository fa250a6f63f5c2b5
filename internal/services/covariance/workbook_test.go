package covariance

import (
	"bytes"
	"strings"
	"testing"

	"CovDash/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestBuildWorkbook(t *testing.T) {
	m := fourMatrix(t)
	im := models.IndustryMap{
		"Tech":            {"AAPL", "MSFT"},
		"Oil/Gas [Major]": {"XOM", "CVX"},
	}

	art, err := BuildWorkbook([]string{"Tech", "Unknown", "Oil/Gas [Major]"}, im, m)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tech", "Oil_Gas _Major_"}, art.Entries)
	assert.Equal(t, []models.SkippedIndustry{{Industry: "Unknown", Reason: models.SkipUnknownIndustry}}, art.Skipped)

	f, err := excelize.OpenReader(bytes.NewReader(art.Data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Tech", "Oil_Gas _Major_"}, f.GetSheetList())

	rows, err := f.GetRows("Tech")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"", "AAPL", "MSFT"}, rows[0])
	assert.Equal(t, "AAPL", rows[1][0])
	assert.Equal(t, "0.5", rows[1][2])
}

func TestUniqueSheetName(t *testing.T) {
	used := map[string]struct{}{}
	long := strings.Repeat("x", 40)

	first := uniqueSheetName(long, used)
	assert.Len(t, first, 31)
	second := uniqueSheetName(long, used)
	assert.Len(t, second, 31)
	assert.True(t, strings.HasSuffix(second, "~2"))
	assert.Equal(t, "industry", uniqueSheetName("''", used))
}
