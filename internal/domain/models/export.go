package models

import "time"

// Skip reasons recorded by the lenient batch exporters.
const (
	SkipUnknownIndustry = "unknown_industry"
	SkipNoTickers       = "no_tickers"
	SkipUnknownTicker   = "unknown_ticker"
	SkipDuplicate       = "duplicate"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatZIP  = "zip"
	FormatXLSX = "xlsx"
)

// SkippedIndustry is an industry left out of a batch export.
type SkippedIndustry struct {
	Industry string `json:"industry"`
	Reason   string `json:"reason"`
	Detail   string `json:"detail,omitempty"`
}

// Artifact is an exported file held in memory.
type Artifact struct {
	Format      string            `json:"format"`
	Filename    string            `json:"filename"`
	ContentType string            `json:"content_type"`
	Data        []byte            `json:"data"`
	Entries     []string          `json:"entries,omitempty"`
	Skipped     []SkippedIndustry `json:"skipped,omitempty"`
}

// ExportEvent is the audit record published for every served export.
type ExportEvent struct {
	Format     string            `json:"format"`
	Industries []string          `json:"industries"`
	Entries    []string          `json:"entries"`
	Skipped    []SkippedIndustry `json:"skipped,omitempty"`
	Bytes      int               `json:"bytes"`
	Version    uint64            `json:"snapshot_version"`
	Session    string            `json:"session,omitempty"`
	CachedHit  bool              `json:"cache_hit"`
	At         time.Time         `json:"at"`
}

// DownloadLink is an inline data-URI link to an export.
type DownloadLink struct {
	Industry string `json:"industry,omitempty"`
	Filename string `json:"filename"`
	Href     string `json:"href"`
}

// DownloadLinks bundles per-industry CSV links with one archive link for the
// whole selection.
type DownloadLinks struct {
	CSV     []DownloadLink    `json:"csv"`
	Archive *DownloadLink     `json:"archive,omitempty"`
	Skipped []SkippedIndustry `json:"skipped,omitempty"`
}
