package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rivalapex/vra/internal/model"
	"github.com/rivalapex/vra/internal/proofs"
)

var _ proofs.Store = (*Store)(nil)

// MonthDeltas is Deltas over a month.
func (s *Store) MonthDeltas(ctx context.Context, from, to time.Time) ([]model.ReconcileDelta, error) {
	return s.Deltas(ctx, from, to)
}

// MonthCoverage sums expected USD in [from, to), and the part of it linked to
// a statement.
func (s *Store) MonthCoverage(ctx context.Context, from, to time.Time) (linked, expected decimal.Decimal, err error) {
	var l, e int64
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT
		CAST(COALESCE(SUM(CASE WHEN EXISTS (SELECT 1 FROM match_links l WHERE l.request_id = e.request_id)
			THEN e.expected_micros ELSE 0 END), 0) AS BIGINT),
		CAST(COALESCE(SUM(e.expected_micros), 0) AS BIGINT)
		FROM expected_rows e WHERE e.ts >= ? AND e.ts < ?`), formatTS(from), formatTS(to))
	if err := row.Scan(&l, &e); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("summing coverage: %w", err)
	}
	return fromMicros(l), fromMicros(e), nil
}

// GetDigest returns the month's digest, or nil when none was issued.
func (s *Store) GetDigest(ctx context.Context, month string) (*model.MonthlyDigest, error) {
	var (
		d                model.MonthlyDigest
		coverage         string
		created, updated string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT month, digest, signature, coverage_pct, notes, created_at, updated_at
		FROM vra_monthly_digests WHERE month = ?`), month).
		Scan(&d.Month, &d.Digest, &d.Signature, &coverage, &d.Notes, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading digest %s: %w", month, err)
	}
	if d.CoveragePct, err = decimal.NewFromString(coverage); err != nil {
		return nil, fmt.Errorf("digest %s coverage: %w", month, err)
	}
	if d.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &d, nil
}

// InsertDigest stores a new month digest.
func (s *Store) InsertDigest(ctx context.Context, d model.MonthlyDigest) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO vra_monthly_digests
		(month, digest, signature, coverage_pct, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.Month, d.Digest, d.Signature, d.CoveragePct.String(), d.Notes, formatTS(d.CreatedAt), formatTS(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting digest %s: %w", d.Month, err)
	}
	return nil
}

// UpdateDigest overwrites the month's digest in place. created_at is kept.
func (s *Store) UpdateDigest(ctx context.Context, d model.MonthlyDigest) error {
	res, err := s.exec(ctx, s.db, `UPDATE vra_monthly_digests
		SET digest = ?, signature = ?, coverage_pct = ?, notes = ?, updated_at = ?
		WHERE month = ?`,
		d.Digest, d.Signature, d.CoveragePct.String(), d.Notes, formatTS(d.UpdatedAt), d.Month)
	if err != nil {
		return fmt.Errorf("updating digest %s: %w", d.Month, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("updating digest %s: no such month", d.Month)
	}
	return nil
}
