package repository

import (
	"context"
	"fmt"

	"CovDash/internal/domain/models"
	applogger "CovDash/pkg/logger"
	pkgpg "CovDash/pkg/postgres"

	"github.com/jmoiron/sqlx"
)

// PGSnapshotSource loads the snapshot from the same two tables as the
// ClickHouse source, stored in Postgres.
type PGSnapshotSource struct {
	db            *sqlx.DB
	matrixTable   string
	industryTable string
	l             *applogger.Logger
}

func NewPGSnapshotSource(pg *pkgpg.Client, matrixTable, industryTable string, l *applogger.Logger) (*PGSnapshotSource, error) {
	for _, t := range []string{matrixTable, industryTable} {
		if err := checkTable(t); err != nil {
			return nil, err
		}
	}
	return &PGSnapshotSource{db: pg.DB(), matrixTable: matrixTable, industryTable: industryTable, l: l}, nil
}

func (s *PGSnapshotSource) Name() string { return "postgres" }

func (s *PGSnapshotSource) Load(ctx context.Context) (*models.Snapshot, error) {
	var cells []covCell
	q := fmt.Sprintf(`SELECT row_ticker, col_ticker, value FROM %s`, s.matrixTable)
	if err := s.db.SelectContext(ctx, &cells, q); err != nil {
		s.l.Error("postgres covariance query error", applogger.String("table", s.matrixTable), applogger.Error(err))
		return nil, fmt.Errorf("query covariance: %w", err)
	}

	var members []memberRow
	q = fmt.Sprintf(`SELECT industry, position, ticker FROM %s ORDER BY industry, position`, s.industryTable)
	if err := s.db.SelectContext(ctx, &members, q); err != nil {
		s.l.Error("postgres industry query error", applogger.String("table", s.industryTable), applogger.Error(err))
		return nil, fmt.Errorf("query industries: %w", err)
	}

	m, err := buildMatrix(cells)
	if err != nil {
		return nil, fmt.Errorf("postgres %s: %w", s.matrixTable, err)
	}
	return &models.Snapshot{Matrix: m, Industries: buildIndustries(members), Source: s.Name()}, nil
}
