package covariance

import (
	"fmt"
	"strconv"
	"strings"

	"CovDash/internal/domain/models"

	"github.com/xuri/excelize/v2"
)

// WorkbookFilename is the download name of a multi-industry workbook.
const WorkbookFilename = "selected_industries.xlsx"

const maxSheetName = 31

// BuildWorkbook writes one sheet per resolvable industry, laid out like the
// CSV export. Industries are resolved with the same leniency as BuildArchive.
func BuildWorkbook(industries []string, im models.IndustryMap, m *models.CovarianceMatrix) (*models.Artifact, error) {
	subs, skipped := Select(industries, im, m)

	f := excelize.NewFile()
	defer f.Close()

	const defaultSheet = "Sheet1"
	used := make(map[string]struct{}, len(subs))
	entries := make([]string, 0, len(subs))
	for i, sub := range subs {
		name := uniqueSheetName(sub.Industry, used)
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, name); err != nil {
				return nil, fmt.Errorf("workbook sheet %s: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("workbook sheet %s: %w", name, err)
		}
		if err := writeSheet(f, name, sub); err != nil {
			return nil, fmt.Errorf("workbook sheet %s: %w", name, err)
		}
		entries = append(entries, name)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("workbook write: %w", err)
	}
	return &models.Artifact{
		Format:      models.FormatXLSX,
		Filename:    WorkbookFilename,
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Data:        buf.Bytes(),
		Entries:     entries,
		Skipped:     skipped,
	}, nil
}

func writeSheet(f *excelize.File, sheet string, sub *models.Submatrix) error {
	header := make([]interface{}, 0, sub.Size()+1)
	header = append(header, "")
	for _, t := range sub.Tickers {
		header = append(header, t)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, t := range sub.Tickers {
		row := make([]interface{}, 0, sub.Size()+1)
		row = append(row, t)
		for _, v := range sub.Values[i] {
			row = append(row, v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// uniqueSheetName strips characters Excel rejects, truncates to 31 runes and
// suffixes repeats with ~N.
func uniqueSheetName(industry string, used map[string]struct{}) string {
	base := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, industry)
	base = strings.Trim(base, "'")
	if base == "" {
		base = "industry"
	}
	base = truncateRunes(base, maxSheetName)

	name := base
	for n := 2; ; n++ {
		if _, taken := used[strings.ToLower(name)]; !taken {
			break
		}
		suffix := "~" + strconv.Itoa(n)
		name = truncateRunes(base, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = struct{}{}
	return name
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
