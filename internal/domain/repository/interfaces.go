package repository

import (
	"context"

	"CovDash/internal/domain/models"
)

// SnapshotSource loads the covariance matrix and industry map. The returned
// snapshot carries Matrix, Industries and Source; range and version are
// assigned by the caller.
type SnapshotSource interface {
	Name() string
	Load(ctx context.Context) (*models.Snapshot, error)
}

// ExportPublisher emits an audit event for every served export.
type ExportPublisher interface {
	Publish(ctx context.Context, ev *models.ExportEvent) error
	Close() error
}

// SessionStore keeps the per-session industry → colour scale choices.
type SessionStore interface {
	Scales(ctx context.Context, session string) (map[string]string, error)
	SaveScales(ctx context.Context, session string, scales map[string]string) error
}

// ArtifactCache memoises built exports. Get reports a miss with ok=false.
type ArtifactCache interface {
	Get(ctx context.Context, key string) (a *models.Artifact, ok bool, err error)
	Put(ctx context.Context, key string, a *models.Artifact) error
	Purge(ctx context.Context) error
}

type Metrics interface {
	RecordExport(format string, bytes int, cacheHit bool)
	RecordSkipped(reason string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordSnapshot(tickers, industries int, version uint64)
}
