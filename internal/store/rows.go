package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rivalapex/vra/internal/model"
)

// InsertStatements stores new statement rows. A statement is immutable once
// ingested: a row whose (network, statement_id) is already stored is left
// untouched and reported as a conflict when its content differs.
func (s *Store) InsertStatements(ctx context.Context, rows []model.StatementRow) (model.InsertResult, error) {
	const insert = `INSERT INTO statement_rows
		(network, statement_id, event_date, app_id, ad_unit_id, country, format, paid_micros, request_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (network, statement_id) DO NOTHING`
	const stored = `SELECT event_date, app_id, ad_unit_id, country, format, paid_micros, request_id
		FROM statement_rows WHERE network = ? AND statement_id = ?`

	var res model.InsertResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			key := []any{r.Network, r.StatementID}
			cols := []any{formatTS(r.EventDate), r.AppID, r.AdUnitID, r.Country, r.Format, toMicros(r.PaidUSD), r.RequestID}
			if err := s.insertImmutable(ctx, tx, insert, stored, key, cols, r.Key(), &res); err != nil {
				return fmt.Errorf("inserting statement %s: %w", r.Key(), err)
			}
		}
		return nil
	})
	return res, err
}

// InsertExpected stores new expected rows keyed by request id, with the same
// immutability rule as InsertStatements.
func (s *Store) InsertExpected(ctx context.Context, rows []model.ExpectedRow) (model.InsertResult, error) {
	const insert = `INSERT INTO expected_rows
		(request_id, ts, expected_micros, app_id_hint, ad_unit_id_hint, country_hint, format_hint)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (request_id) DO NOTHING`
	const stored = `SELECT ts, expected_micros, app_id_hint, ad_unit_id_hint, country_hint, format_hint
		FROM expected_rows WHERE request_id = ?`

	var res model.InsertResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			key := []any{r.RequestID}
			cols := []any{formatTS(r.TS), toMicros(r.ExpectedUSD), r.AppIDHint, r.AdUnitIDHint, r.CountryHint, r.FormatHint}
			if err := s.insertImmutable(ctx, tx, insert, stored, key, cols, r.RequestID, &res); err != nil {
				return fmt.Errorf("inserting expected row %s: %w", r.RequestID, err)
			}
		}
		return nil
	})
	return res, err
}

// insertImmutable runs insert with key+cols. When the key already exists the
// stored columns are compared as text against cols.
func (s *Store) insertImmutable(ctx context.Context, tx *sql.Tx, insert, stored string, key, cols []any, name string, res *model.InsertResult) error {
	r, err := s.exec(ctx, tx, insert, append(append([]any{}, key...), cols...)...)
	if err != nil {
		return err
	}
	n, err := r.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		res.Inserted++
		return nil
	}

	got := make([]string, len(cols))
	dest := make([]any, len(cols))
	for i := range got {
		dest[i] = &got[i]
	}
	if err := tx.QueryRowContext(ctx, s.rebind(stored), key...).Scan(dest...); err != nil {
		return fmt.Errorf("reading stored row: %w", err)
	}
	for i, c := range cols {
		if got[i] != fmt.Sprint(c) {
			res.Conflicts = append(res.Conflicts, name)
			return nil
		}
	}
	return nil
}

// UpsertSignals inserts or replaces daily signal samples.
func (s *Store) UpsertSignals(ctx context.Context, samples []model.SignalSample) (int, error) {
	const q = `INSERT INTO signal_daily (signal, key, day, rate) VALUES (?, ?, ?, ?)
		ON CONFLICT (signal, key, day) DO UPDATE SET rate = excluded.rate`
	n := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, smp := range samples {
			if _, err := s.exec(ctx, tx, q, string(smp.Signal), smp.Key, formatTS(smp.Day), smp.Rate.String()); err != nil {
				return fmt.Errorf("upserting %s sample for %s: %w", smp.Signal, smp.Day.Format(time.DateOnly), err)
			}
			n++
		}
		return nil
	})
	return n, err
}

// MatchInputs loads the statements of [from, to) and their candidate expected
// rows, those within tw of the window. Expected rows already linked to
// statements outside the window are excluded so reruns of neighbouring
// windows cannot steal them.
func (s *Store) MatchInputs(ctx context.Context, from, to time.Time, tw time.Duration) ([]model.StatementRow, []model.ExpectedRow, error) {
	f, t := formatTS(from), formatTS(to)

	stmtRows, err := s.db.QueryContext(ctx, s.rebind(`SELECT network, statement_id, event_date, app_id, ad_unit_id,
		country, format, paid_micros, request_id
		FROM statement_rows WHERE event_date >= ? AND event_date < ?
		ORDER BY event_date, network, statement_id`), f, t)
	if err != nil {
		return nil, nil, fmt.Errorf("querying statements: %w", err)
	}
	statements, err := scanStatements(stmtRows)
	if err != nil {
		return nil, nil, err
	}

	expRows, err := s.db.QueryContext(ctx, s.rebind(`SELECT e.request_id, e.ts, e.expected_micros, e.app_id_hint,
		e.ad_unit_id_hint, e.country_hint, e.format_hint
		FROM expected_rows e
		WHERE e.ts >= ? AND e.ts <= ?
		AND NOT EXISTS (
			SELECT 1 FROM match_links l
			JOIN statement_rows st ON st.network = l.network AND st.statement_id = l.statement_id
			WHERE l.request_id = e.request_id AND (st.event_date < ? OR st.event_date >= ?))
		ORDER BY e.ts, e.request_id`),
		formatTS(from.Add(-tw)), formatTS(to.Add(tw)), f, t)
	if err != nil {
		return nil, nil, fmt.Errorf("querying expected rows: %w", err)
	}
	expected, err := scanExpected(expRows)
	if err != nil {
		return nil, nil, err
	}
	return statements, expected, nil
}

// ReplaceLinks swaps the match links of the window's statements for the
// claimed results in one transaction. Unmatched results carry no link.
func (s *Store) ReplaceLinks(ctx context.Context, from, to time.Time, results []model.MatchResult) (int, error) {
	now := formatTS(s.now())
	n := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `DELETE FROM match_links WHERE EXISTS (
			SELECT 1 FROM statement_rows st
			WHERE st.network = match_links.network AND st.statement_id = match_links.statement_id
			AND st.event_date >= ? AND st.event_date < ?)`, formatTS(from), formatTS(to)); err != nil {
			return fmt.Errorf("clearing window links: %w", err)
		}
		for _, r := range results {
			if r.RequestID == "" || r.Bucket == model.BucketUnmatched {
				continue
			}
			if _, err := s.exec(ctx, tx, `INSERT INTO match_links
				(network, statement_id, request_id, confidence, keys_used, bucket, notes, matched_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				r.Network, r.StatementID, r.RequestID, r.Confidence, string(r.KeysUsed), string(r.Bucket),
				strings.Join(r.Notes, "; "), now); err != nil {
				return fmt.Errorf("linking %s/%s to %s: %w", r.Network, r.StatementID, r.RequestID, err)
			}
			n++
		}
		return nil
	})
	return n, err
}

// Links returns the persisted links of statements in [from, to).
func (s *Store) Links(ctx context.Context, from, to time.Time) ([]model.MatchResult, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT l.network, l.statement_id, l.request_id, l.confidence,
		l.keys_used, l.bucket, l.notes
		FROM match_links l
		JOIN statement_rows st ON st.network = l.network AND st.statement_id = l.statement_id
		WHERE st.event_date >= ? AND st.event_date < ?
		ORDER BY l.network, l.statement_id`), formatTS(from), formatTS(to))
	if err != nil {
		return nil, fmt.Errorf("querying links: %w", err)
	}
	defer rows.Close()

	var out []model.MatchResult
	for rows.Next() {
		var (
			r            model.MatchResult
			keys, bucket string
			notes        string
		)
		if err := rows.Scan(&r.Network, &r.StatementID, &r.RequestID, &r.Confidence, &keys, &bucket, &notes); err != nil {
			return nil, fmt.Errorf("scanning link: %w", err)
		}
		r.KeysUsed = model.KeysUsed(keys)
		r.Bucket = model.Bucket(bucket)
		if notes != "" {
			r.Notes = strings.Split(notes, "; ")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanStatements(rows *sql.Rows) ([]model.StatementRow, error) {
	defer rows.Close()
	var out []model.StatementRow
	for rows.Next() {
		var (
			r      model.StatementRow
			ts     string
			micros int64
		)
		if err := rows.Scan(&r.Network, &r.StatementID, &ts, &r.AppID, &r.AdUnitID, &r.Country, &r.Format,
			&micros, &r.RequestID); err != nil {
			return nil, fmt.Errorf("scanning statement: %w", err)
		}
		t, err := parseTS(ts)
		if err != nil {
			return nil, err
		}
		r.EventDate = t
		r.PaidUSD = fromMicros(micros)
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanExpected(rows *sql.Rows) ([]model.ExpectedRow, error) {
	defer rows.Close()
	var out []model.ExpectedRow
	for rows.Next() {
		var (
			r      model.ExpectedRow
			ts     string
			micros int64
		)
		if err := rows.Scan(&r.RequestID, &ts, &micros, &r.AppIDHint, &r.AdUnitIDHint, &r.CountryHint,
			&r.FormatHint); err != nil {
			return nil, fmt.Errorf("scanning expected row: %w", err)
		}
		t, err := parseTS(ts)
		if err != nil {
			return nil, err
		}
		r.TS = t
		r.ExpectedUSD = fromMicros(micros)
		out = append(out, r)
	}
	return out, rows.Err()
}
