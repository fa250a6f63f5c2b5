package covariance

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"time"

	"CovDash/internal/domain/models"
)

// ArchiveFilename is the download name of a multi-industry archive.
const ArchiveFilename = "selected_industries.zip"

// ArchiveOption configures BuildArchive.
type ArchiveOption func(*archiveConfig)

type archiveConfig struct {
	modified time.Time
}

// ArchiveEpoch is the entry timestamp used unless WithModified overrides it.
// It is the earliest valid DOS date, so the archive bytes stay reproducible.
var ArchiveEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// WithModified stamps every archive entry with t.
func WithModified(t time.Time) ArchiveOption {
	return func(c *archiveConfig) {
		c.modified = t
	}
}

// Select resolves a batch of industries leniently: unknown industries,
// industries without tickers, industries naming tickers absent from m, and
// repeated names are skipped and reported rather than failing the batch.
// The remaining submatrices keep the input order.
func Select(industries []string, im models.IndustryMap, m *models.CovarianceMatrix) ([]*models.Submatrix, []models.SkippedIndustry) {
	subs := make([]*models.Submatrix, 0, len(industries))
	var skipped []models.SkippedIndustry
	seen := make(map[string]struct{}, len(industries))

	for _, name := range industries {
		if _, dup := seen[name]; dup {
			skipped = append(skipped, models.SkippedIndustry{Industry: name, Reason: models.SkipDuplicate})
			continue
		}
		seen[name] = struct{}{}

		tickers, ok := im[name]
		if !ok {
			skipped = append(skipped, models.SkippedIndustry{Industry: name, Reason: models.SkipUnknownIndustry})
			continue
		}
		if len(tickers) == 0 {
			skipped = append(skipped, models.SkippedIndustry{Industry: name, Reason: models.SkipNoTickers})
			continue
		}

		sub, err := ExtractTickers(name, tickers, m)
		if err != nil {
			var te *models.UnknownTickerError
			if errors.As(err, &te) {
				skipped = append(skipped, models.SkippedIndustry{Industry: name, Reason: models.SkipUnknownTicker, Detail: te.Ticker})
				continue
			}
			skipped = append(skipped, models.SkippedIndustry{Industry: name, Reason: err.Error()})
			continue
		}
		subs = append(subs, sub)
	}
	return subs, skipped
}

// BuildArchive writes one deflated CSV entry per resolvable industry into an
// in-memory ZIP. Nothing is written to disk.
func BuildArchive(industries []string, im models.IndustryMap, m *models.CovarianceMatrix, opts ...ArchiveOption) (*models.Artifact, error) {
	cfg := &archiveConfig{modified: ArchiveEpoch}
	for _, opt := range opts {
		opt(cfg)
	}

	subs, skipped := Select(industries, im, m)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries := make([]string, 0, len(subs))
	for _, sub := range subs {
		name := CSVFilename(sub.Industry)
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: cfg.modified}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("archive entry %s: %w", name, err)
		}
		if err := WriteCSV(w, sub); err != nil {
			return nil, fmt.Errorf("archive entry %s: %w", name, err)
		}
		entries = append(entries, name)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive close: %w", err)
	}

	return &models.Artifact{
		Format:      models.FormatZIP,
		Filename:    ArchiveFilename,
		ContentType: "application/zip",
		Data:        buf.Bytes(),
		Entries:     entries,
		Skipped:     skipped,
	}, nil
}
