package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CovDash/internal/domain/models"
	pkgch "CovDash/pkg/clickhouse"
	applogger "CovDash/pkg/logger"
)

// CHSnapshotSource loads the snapshot from ClickHouse tables
// covariance(row_ticker, col_ticker, value) and
// industry_tickers(industry, position, ticker).
type CHSnapshotSource struct {
	db            *sql.DB
	matrixTable   string
	industryTable string
	l             *applogger.Logger
}

func NewCHSnapshotSource(ch *pkgch.Client, matrixTable, industryTable string, l *applogger.Logger) (*CHSnapshotSource, error) {
	for _, t := range []string{matrixTable, industryTable} {
		if err := checkTable(t); err != nil {
			return nil, err
		}
	}
	return &CHSnapshotSource{db: ch.DB(), matrixTable: matrixTable, industryTable: industryTable, l: l}, nil
}

func (s *CHSnapshotSource) Name() string { return "clickhouse" }

func (s *CHSnapshotSource) Load(ctx context.Context) (*models.Snapshot, error) {
	start := time.Now()

	cells, err := s.cells(ctx)
	if err != nil {
		s.l.Error("clickhouse covariance query error", applogger.String("table", s.matrixTable), applogger.Error(err))
		return nil, err
	}
	members, err := s.members(ctx)
	if err != nil {
		s.l.Error("clickhouse industry query error", applogger.String("table", s.industryTable), applogger.Error(err))
		return nil, err
	}

	m, err := buildMatrix(cells)
	if err != nil {
		return nil, fmt.Errorf("clickhouse %s: %w", s.matrixTable, err)
	}
	s.l.Debug("clickhouse snapshot read",
		applogger.Int("cells", len(cells)),
		applogger.Int("memberships", len(members)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return &models.Snapshot{Matrix: m, Industries: buildIndustries(members), Source: s.Name()}, nil
}

func (s *CHSnapshotSource) cells(ctx context.Context) ([]covCell, error) {
	q := fmt.Sprintf(`SELECT row_ticker, col_ticker, value FROM %s`, s.matrixTable)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query covariance: %w", err)
	}
	defer rows.Close()

	out := make([]covCell, 0, 4096)
	for rows.Next() {
		var c covCell
		if err := rows.Scan(&c.Row, &c.Col, &c.Value); err != nil {
			return nil, fmt.Errorf("scan covariance: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHSnapshotSource) members(ctx context.Context) ([]memberRow, error) {
	q := fmt.Sprintf(`SELECT industry, position, ticker FROM %s ORDER BY industry, position`, s.industryTable)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query industries: %w", err)
	}
	defer rows.Close()

	out := make([]memberRow, 0, 512)
	for rows.Next() {
		var r memberRow
		if err := rows.Scan(&r.Industry, &r.Position, &r.Ticker); err != nil {
			return nil, fmt.Errorf("scan industry: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
