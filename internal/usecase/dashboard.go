package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"CovDash/internal/domain/models"
	domrepo "CovDash/internal/domain/repository"
	"CovDash/internal/services/covariance"
	"CovDash/internal/services/heatmap"
	pkgcache "CovDash/pkg/cache"
	applogger "CovDash/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"
)

// EmptySelectionMessage is returned in place of figures when nothing is selected.
const EmptySelectionMessage = "Select industries to view heatmaps."

// RetryConfig bounds the backoff used while loading a snapshot.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// DashboardConfig holds presentation and loading settings.
type DashboardConfig struct {
	DefaultScale string
	Decimals     int
	Columns      int
	LoadTimeout  time.Duration
	Retry        RetryConfig
}

// Dashboard serves heatmaps and exports from the current covariance snapshot.
// Readers never block on a reload: the snapshot is swapped atomically.
type Dashboard struct {
	source    domrepo.SnapshotSource
	artifacts domrepo.ArtifactCache
	sessions  domrepo.SessionStore
	events    domrepo.ExportPublisher
	metrics   domrepo.Metrics
	l         *applogger.Logger
	cfg       DashboardConfig

	snap     atomic.Pointer[models.Snapshot]
	reloadMu sync.Mutex
	version  uint64 // guarded by reloadMu
	builds   singleflight.Group
	now      func() time.Time
}

func NewDashboard(
	source domrepo.SnapshotSource,
	artifacts domrepo.ArtifactCache,
	sessions domrepo.SessionStore,
	events domrepo.ExportPublisher,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg DashboardConfig,
) *Dashboard {
	if cfg.DefaultScale == "" || !heatmap.IsScale(cfg.DefaultScale) {
		cfg.DefaultScale = heatmap.DefaultScale
	}
	if cfg.Columns <= 0 {
		cfg.Columns = heatmap.Columns
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Dashboard{
		source:    source,
		artifacts: artifacts,
		sessions:  sessions,
		events:    events,
		metrics:   metrics,
		l:         l,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Snapshot returns the current snapshot or ErrNoSnapshot before the first load.
func (d *Dashboard) Snapshot() (*models.Snapshot, error) {
	s := d.snap.Load()
	if s == nil {
		return nil, models.ErrNoSnapshot
	}
	return s, nil
}

// Reload loads a fresh snapshot from the source, computes its colour range
// and swaps it in. Transient source errors are retried with exponential
// backoff; malformed or empty inputs fail immediately. The previous snapshot
// keeps serving when a reload fails.
func (d *Dashboard) Reload(ctx context.Context) (*models.Snapshot, error) {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()

	start := d.now()
	var loaded *models.Snapshot
	op := func() error {
		lctx := ctx
		if d.cfg.LoadTimeout > 0 {
			var cancel context.CancelFunc
			lctx, cancel = context.WithTimeout(ctx, d.cfg.LoadTimeout)
			defer cancel()
		}
		s, err := d.source.Load(lctx)
		if err != nil {
			if errors.Is(err, models.ErrMalformedCSV) || errors.Is(err, models.ErrEmptyMatrix) {
				return backoff.Permanent(err)
			}
			return err
		}
		rng, err := covariance.ComputeRange(s.Matrix)
		if err != nil {
			return backoff.Permanent(err)
		}
		s.Range = rng
		loaded = s
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	if d.cfg.Retry.InitialInterval > 0 {
		eb.InitialInterval = d.cfg.Retry.InitialInterval
	}
	if d.cfg.Retry.MaxInterval > 0 {
		eb.MaxInterval = d.cfg.Retry.MaxInterval
	}
	eb.MaxElapsedTime = d.cfg.Retry.MaxElapsed

	notify := func(err error, wait time.Duration) {
		d.l.Warn("snapshot load failed, retrying",
			applogger.String("source", d.source.Name()),
			applogger.Duration("wait", wait),
			applogger.Error(err),
		)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(eb, ctx), notify); err != nil {
		d.metrics.RecordError("snapshot_load")
		return nil, fmt.Errorf("load snapshot from %s: %w", d.source.Name(), err)
	}

	d.version++
	loaded.Version = d.version
	loaded.LoadedAt = d.now()
	if loaded.Source == "" {
		loaded.Source = d.source.Name()
	}
	d.snap.Store(loaded)

	if err := d.artifacts.Purge(ctx); err != nil {
		d.l.Warn("artifact purge failed", applogger.Error(err))
	}

	d.metrics.RecordSnapshot(loaded.Matrix.Len(), len(loaded.Industries), loaded.Version)
	d.metrics.RecordLatency("snapshot_load", d.now().Sub(start).Seconds())
	d.l.Info("snapshot loaded",
		applogger.String("source", loaded.Source),
		applogger.Uint64("version", loaded.Version),
		applogger.Int("tickers", loaded.Matrix.Len()),
		applogger.Int("industries", len(loaded.Industries)),
		applogger.Float64("zmin", loaded.Range.Min),
		applogger.Float64("zmax", loaded.Range.Max),
	)
	return loaded, nil
}

// Industries lists the dropdown options in name order.
func (d *Dashboard) Industries() ([]models.IndustryOption, error) {
	snap, err := d.Snapshot()
	if err != nil {
		return nil, err
	}
	names := snap.Industries.Names()
	out := make([]models.IndustryOption, 0, len(names))
	for _, name := range names {
		out = append(out, models.IndustryOption{Name: name, Tickers: len(snap.Industries[name])})
	}
	return out, nil
}

// Range returns the colour domain of the current snapshot.
func (d *Dashboard) Range() (models.ColorRange, error) {
	snap, err := d.Snapshot()
	if err != nil {
		return models.ColorRange{}, err
	}
	return snap.Range, nil
}

// Submatrix extracts one industry strictly.
func (d *Dashboard) Submatrix(industry string) (*models.Submatrix, error) {
	snap, err := d.Snapshot()
	if err != nil {
		return nil, err
	}
	return covariance.Extract(industry, snap.Industries, snap.Matrix)
}

// Heatmaps builds one figure per resolvable selected industry. A chosen
// colour scale is remembered for every selected industry in the session;
// each figure then uses its industry's remembered scale.
func (d *Dashboard) Heatmaps(ctx context.Context, session string, q models.HeatmapQuery) (*models.HeatmapPage, error) {
	snap, err := d.Snapshot()
	if err != nil {
		return nil, err
	}
	if len(q.Industries) == 0 {
		return &models.HeatmapPage{
			Figures: []models.HeatmapFigure{},
			Range:   snap.Range,
			Message: EmptySelectionMessage,
		}, nil
	}
	start := d.now()

	scales := d.sessionScales(ctx, session)
	if q.ColorScale != "" {
		for _, name := range q.Industries {
			scales[name] = q.ColorScale
		}
		if session != "" {
			if err := d.sessions.SaveScales(ctx, session, scales); err != nil {
				d.l.Warn("session save failed", applogger.String("session", session), applogger.Error(err))
			}
		}
	}

	position := make(map[string]int, len(q.Industries))
	for i, name := range q.Industries {
		if _, ok := position[name]; !ok {
			position[name] = i
		}
	}

	subs, skipped := covariance.Select(q.Industries, snap.Industries, snap.Matrix)
	figures := make([]models.HeatmapFigure, 0, len(subs))
	for _, sub := range subs {
		figures = append(figures, heatmap.BuildFigure(sub, snap.Range, heatmap.FigureOptions{
			ColorScale:  d.scaleFor(scales, sub.Industry),
			ShowValues:  q.ShowValues,
			Decimals:    d.cfg.Decimals,
			Position:    position[sub.Industry],
			Columns:     d.cfg.Columns,
			DownloadURL: "/download/" + url.PathEscape(sub.Industry),
		}))
	}

	d.metrics.RecordLatency("heatmaps", d.now().Sub(start).Seconds())
	return &models.HeatmapPage{
		Figures: figures,
		Grid:    heatmap.GridFor(len(q.Industries), d.cfg.Columns),
		Range:   snap.Range,
		Skipped: skipped,
	}, nil
}

// HeatmapPNG renders one industry strictly. An empty scale falls back to the
// session's choice for that industry.
func (d *Dashboard) HeatmapPNG(ctx context.Context, session, industry, scale string, cell int) ([]byte, error) {
	snap, err := d.Snapshot()
	if err != nil {
		return nil, err
	}
	sub, err := covariance.Extract(industry, snap.Industries, snap.Matrix)
	if err != nil {
		return nil, err
	}
	if scale == "" {
		scale = d.scaleFor(d.sessionScales(ctx, session), industry)
	}
	start := d.now()
	b, err := heatmap.RenderPNG(sub, snap.Range, scale, cell)
	if err != nil {
		d.metrics.RecordError("render_png")
		return nil, err
	}
	d.metrics.RecordLatency("render_png", d.now().Sub(start).Seconds())
	return b, nil
}

// CSV exports one industry strictly.
func (d *Dashboard) CSV(ctx context.Context, session, industry string) (*models.Artifact, error) {
	snap, err := d.Snapshot()
	if err != nil {
		return nil, err
	}
	return d.export(ctx, session, snap, models.FormatCSV, []string{industry}, func() (*models.Artifact, error) {
		sub, err := covariance.Extract(industry, snap.Industries, snap.Matrix)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := covariance.WriteCSV(&buf, sub); err != nil {
			return nil, err
		}
		name := covariance.CSVFilename(industry)
		return &models.Artifact{
			Format:      models.FormatCSV,
			Filename:    name,
			ContentType: "text/csv",
			Data:        buf.Bytes(),
			Entries:     []string{name},
		}, nil
	})
}

// Archive exports the selection leniently as a ZIP of CSVs.
func (d *Dashboard) Archive(ctx context.Context, session string, industries []string) (*models.Artifact, error) {
	snap, err := d.Snapshot()
	if err != nil {
		return nil, err
	}
	return d.export(ctx, session, snap, models.FormatZIP, industries, func() (*models.Artifact, error) {
		return covariance.BuildArchive(industries, snap.Industries, snap.Matrix)
	})
}

// Workbook exports the selection leniently as an XLSX workbook.
func (d *Dashboard) Workbook(ctx context.Context, session string, industries []string) (*models.Artifact, error) {
	snap, err := d.Snapshot()
	if err != nil {
		return nil, err
	}
	return d.export(ctx, session, snap, models.FormatXLSX, industries, func() (*models.Artifact, error) {
		return covariance.BuildWorkbook(industries, snap.Industries, snap.Matrix)
	})
}

// Links returns inline data-URI download links: one CSV per resolvable
// industry and one archive covering all of them.
func (d *Dashboard) Links(ctx context.Context, session string, industries []string) (*models.DownloadLinks, error) {
	snap, err := d.Snapshot()
	if err != nil {
		return nil, err
	}
	subs, skipped := covariance.Select(industries, snap.Industries, snap.Matrix)
	out := &models.DownloadLinks{
		CSV:     make([]models.DownloadLink, 0, len(subs)),
		Skipped: skipped,
	}
	for _, sub := range subs {
		out.CSV = append(out.CSV, models.DownloadLink{
			Industry: sub.Industry,
			Filename: covariance.CSVFilename(sub.Industry),
			Href:     covariance.DataURI("text/csv", []byte(covariance.FormatCSV(sub.Tickers, sub.Values))),
		})
	}
	if len(subs) == 0 {
		return out, nil
	}

	art, err := d.Archive(ctx, session, industries)
	if err != nil {
		return nil, err
	}
	out.Archive = &models.DownloadLink{
		Filename: art.Filename,
		Href:     covariance.DataURI(art.ContentType, art.Data),
	}
	return out, nil
}

// export serves an artifact from the cache or builds it once per key,
// however many callers ask concurrently.
func (d *Dashboard) export(
	ctx context.Context,
	session string,
	snap *models.Snapshot,
	format string,
	industries []string,
	build func() (*models.Artifact, error),
) (*models.Artifact, error) {
	start := d.now()
	key := fmt.Sprintf("v%d:%s:%s", snap.Version, format, pkgcache.HashKey(industries...))

	art, hit, err := d.artifacts.Get(ctx, key)
	if err != nil {
		d.l.Warn("artifact cache read failed", applogger.String("key", key), applogger.Error(err))
		hit = false
	}
	if !hit {
		v, err, _ := d.builds.Do(key, func() (interface{}, error) {
			a, err := build()
			if err != nil {
				return nil, err
			}
			if err := d.artifacts.Put(ctx, key, a); err != nil {
				d.l.Warn("artifact cache write failed", applogger.String("key", key), applogger.Error(err))
			}
			return a, nil
		})
		if err != nil {
			d.metrics.RecordError("export_" + format)
			return nil, err
		}
		art = v.(*models.Artifact)
	}

	d.metrics.RecordExport(format, len(art.Data), hit)
	for _, s := range art.Skipped {
		d.metrics.RecordSkipped(s.Reason)
	}
	d.metrics.RecordLatency("export_"+format, d.now().Sub(start).Seconds())

	ev := &models.ExportEvent{
		Format:     format,
		Industries: industries,
		Entries:    art.Entries,
		Skipped:    art.Skipped,
		Bytes:      len(art.Data),
		Version:    snap.Version,
		Session:    session,
		CachedHit:  hit,
		At:         d.now().UTC(),
	}
	if err := d.events.Publish(ctx, ev); err != nil {
		d.metrics.RecordError("export_publish")
		d.l.Warn("export event publish failed", applogger.String("format", format), applogger.Error(err))
	}
	return art, nil
}

func (d *Dashboard) sessionScales(ctx context.Context, session string) map[string]string {
	if session == "" {
		return map[string]string{}
	}
	scales, err := d.sessions.Scales(ctx, session)
	if err != nil {
		d.l.Warn("session read failed", applogger.String("session", session), applogger.Error(err))
		return map[string]string{}
	}
	if scales == nil {
		scales = map[string]string{}
	}
	return scales
}

func (d *Dashboard) scaleFor(scales map[string]string, industry string) string {
	if s, ok := scales[industry]; ok && heatmap.IsScale(s) {
		return s
	}
	return d.cfg.DefaultScale
}
