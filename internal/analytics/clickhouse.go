// Package analytics keeps the daily IVT, FX and viewability samples in a
// ClickHouse rollup for deployments where the signal series outgrow the
// relational store.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"github.com/rivalapex/vra/internal/logger"
	"github.com/rivalapex/vra/internal/model"
)

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS vra_signal_daily (
		signal LowCardinality(String),
		key String,
		day Date,
		rate Decimal64(8),
		updated_at DateTime
	) ENGINE = ReplacingMergeTree(updated_at)
	PARTITION BY toYYYYMM(day)
	ORDER BY (signal, key, day)
	`

// FINAL collapses replaced samples so a reimported day reads its latest rate.
const samplesSQL = `
	SELECT key, day, toString(rate)
	FROM vra_signal_daily FINAL
	WHERE signal = ? AND day >= toDate(?) AND day < toDate(?)
	ORDER BY key, day
	`

const insertSQL = `INSERT INTO vra_signal_daily (signal, key, day, rate, updated_at)`

// ClickHouse serves and stores signal samples.
type ClickHouse struct {
	conn driver.Conn
	now  func() time.Time
}

// Open connects to a clickhouse:// DSN and creates the rollup table.
func Open(ctx context.Context, dsn string) (*ClickHouse, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing clickhouse dsn: %w", err)
	}
	if opts.Compression == nil {
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to clickhouse: %w", err)
	}
	if err := conn.Exec(ctx, schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating vra_signal_daily: %w", err)
	}
	logger.FromContext(ctx).WithField("addr", opts.Addr).Debug("connected to clickhouse")
	return &ClickHouse{conn: conn, now: time.Now}, nil
}

// Close closes the connection.
func (c *ClickHouse) Close() error {
	return c.conn.Close()
}

// SignalSamples returns daily samples with from <= day < to.
func (c *ClickHouse) SignalSamples(ctx context.Context, signal model.SignalKind, from, to time.Time) ([]model.SignalSample, error) {
	rows, err := c.conn.Query(ctx, samplesSQL, string(signal), dayArg(from), dayArg(to))
	if err != nil {
		return nil, fmt.Errorf("querying %s samples: %w", signal, err)
	}
	defer rows.Close()
	return scanSamples(signal, rows)
}

// UpsertSignals appends samples in one batch. The table keeps the newest
// rate per (signal, key, day).
func (c *ClickHouse) UpsertSignals(ctx context.Context, samples []model.SignalSample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	batch, err := c.conn.PrepareBatch(ctx, insertSQL)
	if err != nil {
		return 0, fmt.Errorf("preparing signal batch: %w", err)
	}
	now := c.now().UTC().Truncate(time.Second)
	for _, smp := range samples {
		if err := batch.Append(string(smp.Signal), smp.Key, smp.Day.UTC(), smp.Rate, now); err != nil {
			batch.Abort()
			return 0, fmt.Errorf("appending %s sample for %s: %w", smp.Signal, smp.Day.Format(time.DateOnly), err)
		}
	}
	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("sending signal batch: %w", err)
	}
	return len(samples), nil
}

// sampleRows is the part of driver.Rows the scanner reads.
type sampleRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanSamples(signal model.SignalKind, rows sampleRows) ([]model.SignalSample, error) {
	var out []model.SignalSample
	for rows.Next() {
		var (
			key, rate string
			day       time.Time
		)
		if err := rows.Scan(&key, &day, &rate); err != nil {
			return nil, fmt.Errorf("scanning %s sample: %w", signal, err)
		}
		r, err := decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("parsing %s rate %q: %w", signal, rate, err)
		}
		out = append(out, model.SignalSample{Signal: signal, Key: key, Day: day.UTC(), Rate: r})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s samples: %w", signal, err)
	}
	return out, nil
}

// dayArg binds a bound as a date literal. Days are midnight samples, so a
// bound inside a day rounds up to the next one.
func dayArg(t time.Time) string {
	t = t.UTC()
	day := t.Truncate(24 * time.Hour)
	if day.Before(t) {
		day = day.Add(24 * time.Hour)
	}
	return day.Format(time.DateOnly)
}
