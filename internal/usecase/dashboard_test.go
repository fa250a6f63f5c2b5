package usecase

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"CovDash/internal/domain/models"
	"CovDash/internal/repository"
	"CovDash/internal/services/covariance"
	"CovDash/pkg/cache"
	applogger "CovDash/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu    sync.Mutex
	calls int
	errs  []error
	im    models.IndustryMap
	m     *models.CovarianceMatrix
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Load(_ context.Context) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return nil, s.errs[s.calls-1]
	}
	return &models.Snapshot{Matrix: s.m, Industries: s.im}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.ExportEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev *models.ExportEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) last() *models.ExportEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}

type fakeMetrics struct {
	mu       sync.Mutex
	exports  map[string]int
	hits     int
	skipped  map[string]int
	errors   map[string]int
	snapshot uint64
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{exports: map[string]int{}, skipped: map[string]int{}, errors: map[string]int{}}
}

func (m *fakeMetrics) RecordExport(format string, _ int, cacheHit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports[format]++
	if cacheHit {
		m.hits++
	}
}

func (m *fakeMetrics) RecordSkipped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped[reason]++
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordLatency(string, float64) {}

func (m *fakeMetrics) RecordSnapshot(_, _ int, version uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = version
}

type fixture struct {
	d       *Dashboard
	src     *fakeSource
	events  *recordingPublisher
	metrics *fakeMetrics
	cache   *cache.MemoryCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m, err := models.NewCovarianceMatrix(
		[]string{"A", "B", "C"},
		[][]float64{
			{1.0, 0.5, -0.2},
			{0.5, 2.0, 0.3},
			{-0.2, 0.3, 4.0},
		},
	)
	require.NoError(t, err)

	src := &fakeSource{
		m: m,
		im: models.IndustryMap{
			"Tech":   {"B", "A"},
			"Energy": {"C"},
			"Empty":  {},
			"Broken": {"A", "Z"},
		},
	}
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	f := &fixture{
		src:     src,
		events:  &recordingPublisher{},
		metrics: newFakeMetrics(),
		cache:   mc,
	}
	f.d = NewDashboard(
		src,
		repository.NewCacheArtifactStore(mc, time.Minute),
		repository.NewCacheSessionStore(mc, time.Hour),
		f.events,
		f.metrics,
		applogger.Nop(),
		DashboardConfig{
			Decimals: 2,
			Retry:    RetryConfig{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxElapsed: time.Second},
		},
	)
	return f
}

func loadedFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	_, err := f.d.Reload(context.Background())
	require.NoError(t, err)
	return f
}

func TestDashboardBeforeLoad(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Snapshot()
	assert.ErrorIs(t, err, models.ErrNoSnapshot)
	_, err = f.d.Industries()
	assert.ErrorIs(t, err, models.ErrNoSnapshot)
	_, err = f.d.CSV(context.Background(), "", "Tech")
	assert.ErrorIs(t, err, models.ErrNoSnapshot)
}

func TestDashboardReload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.d.Reload(ctx)
	require.NoError(t, err)
	want, err := covariance.ComputeRange(f.src.m)
	require.NoError(t, err)
	assert.Equal(t, want, snap.Range)
	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, "fake", snap.Source)
	assert.Equal(t, uint64(1), f.metrics.snapshot)

	_, err = f.d.CSV(ctx, "", "Tech")
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.Len())

	snap, err = f.d.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Version)
	assert.Equal(t, 0, f.cache.Len(), "reload purges artifacts of the previous snapshot")
}

func TestDashboardReloadRetriesTransientErrors(t *testing.T) {
	f := newFixture(t)
	f.src.errs = []error{errors.New("connection refused"), errors.New("timeout")}

	snap, err := f.d.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, f.src.calls)
	assert.Equal(t, uint64(1), snap.Version)
}

func TestDashboardReloadPermanentErrorKeepsSnapshot(t *testing.T) {
	f := loadedFixture(t)
	f.src.errs = []error{nil, models.ErrMalformedCSV}

	_, err := f.d.Reload(context.Background())
	assert.ErrorIs(t, err, models.ErrMalformedCSV)
	assert.Equal(t, 2, f.src.calls, "malformed input is not retried")
	assert.Equal(t, 1, f.metrics.errors["snapshot_load"])

	snap, err := f.d.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Version)
}

func TestDashboardReloadRejectsEmptyMatrix(t *testing.T) {
	f := newFixture(t)
	empty, err := models.NewCovarianceMatrix(nil, nil)
	require.NoError(t, err)
	f.src.m = empty

	_, err = f.d.Reload(context.Background())
	assert.ErrorIs(t, err, models.ErrEmptyMatrix)
	assert.Equal(t, 1, f.src.calls)
}

func TestDashboardReloadRejectsNonFiniteMatrix(t *testing.T) {
	f := newFixture(t)
	m, err := models.NewCovarianceMatrix([]string{"A", "B"}, [][]float64{{1, math.NaN()}, {math.NaN(), 2}})
	require.NoError(t, err)
	f.src.m = m

	_, err = f.d.Reload(context.Background())
	assert.ErrorIs(t, err, models.ErrNonFiniteMatrix)
	assert.Equal(t, 1, f.src.calls, "non-finite data is not retried")

	_, err = f.d.Range()
	assert.ErrorIs(t, err, models.ErrNoSnapshot)
}

func TestDashboardIndustries(t *testing.T) {
	f := loadedFixture(t)

	opts, err := f.d.Industries()
	require.NoError(t, err)
	assert.Equal(t, []models.IndustryOption{
		{Name: "Broken", Tickers: 2},
		{Name: "Empty", Tickers: 0},
		{Name: "Energy", Tickers: 1},
		{Name: "Tech", Tickers: 2},
	}, opts)
}

func TestDashboardSubmatrix(t *testing.T) {
	f := loadedFixture(t)

	sub, err := f.d.Submatrix("Tech")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, sub.Tickers)
	assert.Equal(t, [][]float64{{2.0, 0.5}, {0.5, 1.0}}, sub.Values)

	_, err = f.d.Submatrix("Nope")
	var ie *models.UnknownIndustryError
	assert.ErrorAs(t, err, &ie)

	_, err = f.d.Submatrix("Broken")
	var te *models.UnknownTickerError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Z", te.Ticker)
}

func TestDashboardHeatmapsEmptySelection(t *testing.T) {
	f := loadedFixture(t)

	page, err := f.d.Heatmaps(context.Background(), "s1", models.HeatmapQuery{})
	require.NoError(t, err)
	assert.Equal(t, EmptySelectionMessage, page.Message)
	assert.Empty(t, page.Figures)
}

func TestDashboardHeatmaps(t *testing.T) {
	f := loadedFixture(t)
	ctx := context.Background()

	page, err := f.d.Heatmaps(ctx, "s1", models.HeatmapQuery{
		Industries: []string{"Nope", "Tech", "Energy"},
		ColorScale: "RdBu",
		ShowValues: true,
	})
	require.NoError(t, err)
	require.Len(t, page.Figures, 2)
	assert.Equal(t, models.Grid{Rows: 2, Cols: 2}, page.Grid)
	require.Len(t, page.Skipped, 1)
	assert.Equal(t, models.SkipUnknownIndustry, page.Skipped[0].Reason)

	tech := page.Figures[0]
	assert.Equal(t, "Tech", tech.Industry)
	assert.Equal(t, "RdBu", tech.ColorScale)
	assert.Equal(t, 1, tech.Row)
	assert.Equal(t, 2, tech.Col)
	assert.Equal(t, "/download/Tech", tech.DownloadURL)
	assert.Len(t, tech.Annotations, 4)
	assert.Equal(t, page.Range.Min, tech.ZMin)

	energy := page.Figures[1]
	assert.Equal(t, 2, energy.Row)
	assert.Equal(t, 1, energy.Col)

	// The stored choice applies when the next request names no scale.
	page, err = f.d.Heatmaps(ctx, "s1", models.HeatmapQuery{Industries: []string{"Tech", "Broken"}})
	require.NoError(t, err)
	require.Len(t, page.Figures, 1)
	assert.Equal(t, "RdBu", page.Figures[0].ColorScale)
	assert.Nil(t, page.Figures[0].Annotations)

	// Other sessions keep the default.
	page, err = f.d.Heatmaps(ctx, "s2", models.HeatmapQuery{Industries: []string{"Tech"}})
	require.NoError(t, err)
	assert.Equal(t, "Viridis", page.Figures[0].ColorScale)
}

func TestDashboardHeatmapPNG(t *testing.T) {
	f := loadedFixture(t)

	b, err := f.d.HeatmapPNG(context.Background(), "", "Tech", "", 8)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("\x89PNG\r\n\x1a\n")))

	_, err = f.d.HeatmapPNG(context.Background(), "", "Nope", "", 8)
	var ie *models.UnknownIndustryError
	assert.ErrorAs(t, err, &ie)
}

func TestDashboardCSV(t *testing.T) {
	f := loadedFixture(t)
	ctx := context.Background()

	art, err := f.d.CSV(ctx, "s1", "Tech")
	require.NoError(t, err)
	assert.Equal(t, "Tech_covariance_matrix.csv", art.Filename)
	assert.Equal(t, "text/csv", art.ContentType)
	assert.Equal(t, covariance.FormatCSV([]string{"B", "A"}, [][]float64{{2.0, 0.5}, {0.5, 1.0}}), string(art.Data))

	ev := f.events.last()
	require.NotNil(t, ev)
	assert.Equal(t, models.FormatCSV, ev.Format)
	assert.Equal(t, "s1", ev.Session)
	assert.Equal(t, uint64(1), ev.Version)
	assert.False(t, ev.CachedHit)

	again, err := f.d.CSV(ctx, "s1", "Tech")
	require.NoError(t, err)
	assert.Equal(t, art.Data, again.Data)
	assert.True(t, f.events.last().CachedHit)
	assert.Equal(t, 1, f.metrics.hits)
	assert.Equal(t, 2, f.metrics.exports[models.FormatCSV])

	_, err = f.d.CSV(ctx, "s1", "Nope")
	var ie *models.UnknownIndustryError
	assert.ErrorAs(t, err, &ie)
	assert.Equal(t, 1, f.metrics.errors["export_csv"])
}

func TestDashboardArchiveIsLenient(t *testing.T) {
	f := loadedFixture(t)

	art, err := f.d.Archive(context.Background(), "", []string{"Tech", "Empty", "Broken", "Nope", "Energy", "Tech"})
	require.NoError(t, err)
	assert.Equal(t, covariance.ArchiveFilename, art.Filename)
	assert.Equal(t, []string{"Tech_covariance_matrix.csv", "Energy_covariance_matrix.csv"}, art.Entries)
	assert.Len(t, art.Skipped, 4)

	assert.Equal(t, 1, f.metrics.skipped[models.SkipNoTickers])
	assert.Equal(t, 1, f.metrics.skipped[models.SkipUnknownTicker])
	assert.Equal(t, 1, f.metrics.skipped[models.SkipUnknownIndustry])
	assert.Equal(t, 1, f.metrics.skipped[models.SkipDuplicate])
}

func TestDashboardExportBuildsOncePerKey(t *testing.T) {
	f := loadedFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			art, err := f.d.Workbook(ctx, "", []string{"Tech", "Energy"})
			if err == nil {
				results[i] = art.Data
			}
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
	assert.Equal(t, 1, f.cache.Len())
	assert.Equal(t, 8, f.metrics.exports[models.FormatXLSX])
}

func TestDashboardPublishFailureDoesNotFailExport(t *testing.T) {
	f := loadedFixture(t)
	f.events.err = errors.New("broker down")

	_, err := f.d.CSV(context.Background(), "", "Energy")
	require.NoError(t, err)
	assert.Equal(t, 1, f.metrics.errors["export_publish"])
}

func TestDashboardLinks(t *testing.T) {
	f := loadedFixture(t)
	ctx := context.Background()

	links, err := f.d.Links(ctx, "", []string{"Tech", "Nope"})
	require.NoError(t, err)
	require.Len(t, links.CSV, 1)
	assert.Equal(t, "Tech_covariance_matrix.csv", links.CSV[0].Filename)
	assert.Contains(t, links.CSV[0].Href, "data:text/csv;base64,")
	require.NotNil(t, links.Archive)
	assert.Contains(t, links.Archive.Href, "data:application/zip;base64,")
	assert.Len(t, links.Skipped, 1)

	links, err = f.d.Links(ctx, "", []string{"Nope"})
	require.NoError(t, err)
	assert.Empty(t, links.CSV)
	assert.Nil(t, links.Archive)
}

func TestSnapshotListener(t *testing.T) {
	f := loadedFixture(t)
	h := NewSnapshotListener("covdash.snapshots", f.d, nil)

	assert.Equal(t, "covdash.snapshots", h.Topic())
	require.NoError(t, h.Handle(context.Background(), []byte(`{"source":"nightly","reason":"recomputed"}`)))
	require.NoError(t, h.Handle(context.Background(), []byte("not json")))

	snap, err := f.d.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.Version)
}
