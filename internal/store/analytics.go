package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rivalapex/vra/internal/model"
	"github.com/rivalapex/vra/internal/reconcile"
)

var (
	_ reconcile.Analytics   = (*Store)(nil)
	_ reconcile.DeltaWriter = (*Store)(nil)
)

// WindowTotals aggregates expected and paid USD for [from, to). Any linked
// statement counts as paid, whatever its bucket.
func (s *Store) WindowTotals(ctx context.Context, from, to time.Time) (reconcile.Totals, error) {
	f, t := formatTS(from), formatTS(to)
	var (
		expected, paid, unmatched, late int64
		statements                      int
	)

	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT CAST(COALESCE(SUM(expected_micros), 0) AS BIGINT)
		FROM expected_rows WHERE ts >= ? AND ts < ?`), f, t)
	if err := row.Scan(&expected); err != nil {
		return reconcile.Totals{}, fmt.Errorf("summing expected: %w", err)
	}

	row = s.db.QueryRowContext(ctx, s.rebind(`SELECT
		COUNT(*),
		CAST(COALESCE(SUM(CASE WHEN l.request_id IS NOT NULL THEN st.paid_micros ELSE 0 END), 0) AS BIGINT),
		CAST(COALESCE(SUM(CASE WHEN l.request_id IS NULL THEN st.paid_micros ELSE 0 END), 0) AS BIGINT)
		FROM statement_rows st
		LEFT JOIN match_links l ON l.network = st.network AND l.statement_id = st.statement_id
		WHERE st.event_date >= ? AND st.event_date < ?`), f, t)
	if err := row.Scan(&statements, &paid, &unmatched); err != nil {
		return reconcile.Totals{}, fmt.Errorf("summing statements: %w", err)
	}

	row = s.db.QueryRowContext(ctx, s.rebind(`SELECT CAST(COALESCE(SUM(st.paid_micros), 0) AS BIGINT)
		FROM statement_rows st
		JOIN match_links l ON l.network = st.network AND l.statement_id = st.statement_id
		JOIN expected_rows e ON e.request_id = l.request_id
		WHERE st.event_date >= ? AND e.ts >= ? AND e.ts < ?`), t, f, t)
	if err := row.Scan(&late); err != nil {
		return reconcile.Totals{}, fmt.Errorf("summing late payments: %w", err)
	}

	return reconcile.Totals{
		Expected:   fromMicros(expected),
		Paid:       fromMicros(paid),
		Unmatched:  fromMicros(unmatched),
		LatePaid:   fromMicros(late),
		Statements: statements,
	}, nil
}

// SignalSamples returns samples of one signal with from <= day < to.
func (s *Store) SignalSamples(ctx context.Context, signal model.SignalKind, from, to time.Time) ([]model.SignalSample, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT key, day, rate FROM signal_daily
		WHERE signal = ? AND day >= ? AND day < ? ORDER BY key, day`), string(signal), formatTS(from), formatTS(to))
	if err != nil {
		return nil, fmt.Errorf("querying %s samples: %w", signal, err)
	}
	defer rows.Close()

	var out []model.SignalSample
	for rows.Next() {
		var key, day, rate string
		if err := rows.Scan(&key, &day, &rate); err != nil {
			return nil, fmt.Errorf("scanning %s sample: %w", signal, err)
		}
		t, err := parseTS(day)
		if err != nil {
			return nil, err
		}
		r, err := decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("parsing %s rate %q: %w", signal, rate, err)
		}
		out = append(out, model.SignalSample{Signal: signal, Key: key, Day: t, Rate: r})
	}
	return out, rows.Err()
}

// InsertDeltas writes deltas in one transaction. Existing evidence ids are
// left untouched, so the returned count is the number of new rows.
func (s *Store) InsertDeltas(ctx context.Context, deltas []model.ReconcileDelta) (int, error) {
	now := formatTS(s.now())
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, d := range deltas {
			res, err := s.exec(ctx, tx, `INSERT INTO recon_deltas
				(evidence_id, kind, amount, currency, reason_code, window_start, window_end, confidence, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (evidence_id) DO NOTHING`,
				d.EvidenceID, string(d.Kind), d.Amount.String(), d.Currency, d.ReasonCode,
				formatTS(d.WindowStart), formatTS(d.WindowEnd), d.Confidence.String(), now)
			if err != nil {
				return fmt.Errorf("inserting delta %s: %w", d.EvidenceID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("inserting delta %s: %w", d.EvidenceID, err)
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Deltas returns deltas whose window starts in [from, to), ordered by
// evidence id.
func (s *Store) Deltas(ctx context.Context, from, to time.Time) ([]model.ReconcileDelta, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT evidence_id, kind, amount, currency, reason_code,
		window_start, window_end, confidence
		FROM recon_deltas WHERE window_start >= ? AND window_start < ?
		ORDER BY evidence_id`), formatTS(from), formatTS(to))
	if err != nil {
		return nil, fmt.Errorf("querying deltas: %w", err)
	}
	defer rows.Close()

	var out []model.ReconcileDelta
	for rows.Next() {
		var (
			d                              model.ReconcileDelta
			kind, amount, start, end, conf string
		)
		if err := rows.Scan(&d.EvidenceID, &kind, &amount, &d.Currency, &d.ReasonCode, &start, &end, &conf); err != nil {
			return nil, fmt.Errorf("scanning delta: %w", err)
		}
		d.Kind = model.DeltaKind(kind)
		if d.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("delta %s amount: %w", d.EvidenceID, err)
		}
		if d.Confidence, err = decimal.NewFromString(conf); err != nil {
			return nil, fmt.Errorf("delta %s confidence: %w", d.EvidenceID, err)
		}
		if d.WindowStart, err = parseTS(start); err != nil {
			return nil, err
		}
		if d.WindowEnd, err = parseTS(end); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
