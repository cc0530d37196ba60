package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalapex/vra/internal/model"
)

var day0 = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func openTest(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "data", "vra.db")
	s, err := Open(context.Background(), "sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.now = func() time.Time { return day0.Add(72 * time.Hour) }
	return s
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	_, err := s.InsertExpected(ctx, []model.ExpectedRow{
		{RequestID: "req-1", TS: day0.Add(1 * time.Hour), ExpectedUSD: dec("1.25"), CountryHint: "US"},
		{RequestID: "req-2", TS: day0.Add(2 * time.Hour), ExpectedUSD: dec("2.00")},
		{RequestID: "req-3", TS: day0.Add(23 * time.Hour), ExpectedUSD: dec("0.75")},
		{RequestID: "req-next", TS: day0.Add(30 * time.Hour), ExpectedUSD: dec("9.00")},
	})
	require.NoError(t, err)
	_, err = s.InsertStatements(ctx, []model.StatementRow{
		{Network: "admob", StatementID: "s-1", EventDate: day0.Add(1 * time.Hour), PaidUSD: dec("1.25"), Country: "US"},
		{Network: "admob", StatementID: "s-2", EventDate: day0.Add(5 * time.Hour), PaidUSD: dec("0.40")},
		// req-3 is paid the next day
		{Network: "unity", StatementID: "s-3", EventDate: day0.Add(26 * time.Hour), PaidUSD: dec("0.70"), RequestID: "req-3"},
	})
	require.NoError(t, err)
}

func TestOpen_MigratesOnce(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "vra.db")
	s, err := Open(context.Background(), "sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), "SQLite", dsn)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestOpen_SchemaDrift(t *testing.T) {
	tests := []struct {
		name   string
		update string
	}{
		{"dirty", `UPDATE schema_migrations SET dirty = 1`},
		{"newer than build", `UPDATE schema_migrations SET version = 99`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := filepath.Join(t.TempDir(), "vra.db")
			s, err := Open(context.Background(), "sqlite", dsn)
			require.NoError(t, err)
			_, err = s.db.Exec(tt.update)
			require.NoError(t, err)
			require.NoError(t, s.Close())

			_, err = Open(context.Background(), "sqlite", dsn)
			assert.ErrorIs(t, err, ErrSchemaDrift)
		})
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: dialects["pgx"]}
	assert.Equal(t, "a = $1 AND b IN ($2, $3)", pg.rebind("a = ? AND b IN (?, ?)"))
	lite := &Store{dialect: dialects["sqlite"]}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestMicros(t *testing.T) {
	assert.Equal(t, int64(1250000), toMicros(dec("1.25")))
	assert.Equal(t, int64(1), toMicros(dec("0.0000005")))
	assert.Equal(t, "1.25", fromMicros(1250000).String())
}

func TestInsert_RowsAreImmutable(t *testing.T) {
	s := openTest(t)
	seed(t, s)
	ctx := context.Background()

	res, err := s.InsertStatements(ctx, []model.StatementRow{
		{Network: "admob", StatementID: "s-1", EventDate: day0.Add(1 * time.Hour), PaidUSD: dec("1.25"), Country: "US"},
		{Network: "admob", StatementID: "s-2", EventDate: day0.Add(5 * time.Hour), PaidUSD: dec("99.00")},
		{Network: "admob", StatementID: "s-4", EventDate: day0.Add(6 * time.Hour), PaidUSD: dec("0.10")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, []string{"admob/s-2"}, res.Conflicts, "an identical re-import is not a conflict")

	statements, _, err := s.MatchInputs(ctx, day0, day0.Add(24*time.Hour), time.Hour)
	require.NoError(t, err)
	require.Len(t, statements, 3)
	assert.Equal(t, "s-2", statements[1].StatementID)
	assert.True(t, statements[1].PaidUSD.Equal(dec("0.40")), "stored amount kept, got %s", statements[1].PaidUSD)

	res, err = s.InsertExpected(ctx, []model.ExpectedRow{
		{RequestID: "req-1", TS: day0.Add(1 * time.Hour), ExpectedUSD: dec("5.00"), CountryHint: "US"},
	})
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)
	assert.Equal(t, []string{"req-1"}, res.Conflicts)

	totals, err := s.WindowTotals(ctx, day0, day0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, totals.Expected.Equal(dec("4.00")), "got %s", totals.Expected)
}

func TestMatchInputsAndLinks(t *testing.T) {
	s := openTest(t)
	seed(t, s)
	ctx := context.Background()

	statements, expected, err := s.MatchInputs(ctx, day0, day0.Add(24*time.Hour), time.Hour)
	require.NoError(t, err)
	require.Len(t, statements, 2)
	assert.Equal(t, "s-1", statements[0].StatementID)
	assert.True(t, statements[0].PaidUSD.Equal(dec("1.25")))
	var ids []string
	for _, e := range expected {
		ids = append(ids, e.RequestID)
	}
	assert.Equal(t, []string{"req-1", "req-2", "req-3"}, ids)

	// day two: s-3 echoes req-3, but req-3 lies outside the time range
	_, expected, err = s.MatchInputs(ctx, day0.Add(24*time.Hour), day0.Add(48*time.Hour), 30*time.Minute)
	require.NoError(t, err)
	ids = nil
	for _, e := range expected {
		ids = append(ids, e.RequestID)
	}
	assert.Equal(t, []string{"req-next"}, ids)

	n, err := s.ReplaceLinks(ctx, day0.Add(24*time.Hour), day0.Add(48*time.Hour), []model.MatchResult{
		{Network: "unity", StatementID: "s-3", RequestID: "req-3", Confidence: 1, KeysUsed: model.KeysExact, Bucket: model.BucketAuto},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// req-3 is now claimed by a statement outside day one
	_, expected, err = s.MatchInputs(ctx, day0, day0.Add(24*time.Hour), time.Hour)
	require.NoError(t, err)
	assert.Len(t, expected, 2)

	n, err = s.ReplaceLinks(ctx, day0, day0.Add(24*time.Hour), []model.MatchResult{
		{Network: "admob", StatementID: "s-1", RequestID: "req-1", Confidence: 0.97, KeysUsed: model.KeysFuzzy, Bucket: model.BucketAuto},
		{Network: "admob", StatementID: "s-2", Confidence: 0.2, KeysUsed: model.KeysFuzzy, Bucket: model.BucketUnmatched},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	links, err := s.Links(ctx, day0, day0.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "req-1", links[0].RequestID)

	// rerun replaces rather than duplicates
	n, err = s.ReplaceLinks(ctx, day0, day0.Add(24*time.Hour), []model.MatchResult{
		{Network: "admob", StatementID: "s-1", RequestID: "req-1", Confidence: 0.97, KeysUsed: model.KeysFuzzy,
			Bucket: model.BucketAuto, Notes: []string{"a", "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	links, err = s.Links(ctx, day0, day0.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, []string{"a", "b"}, links[0].Notes)
}

func TestWindowTotals(t *testing.T) {
	s := openTest(t)
	seed(t, s)
	ctx := context.Background()

	_, err := s.ReplaceLinks(ctx, day0, day0.Add(24*time.Hour), []model.MatchResult{
		{Network: "admob", StatementID: "s-1", RequestID: "req-1", Confidence: 1, KeysUsed: model.KeysFuzzy, Bucket: model.BucketAuto},
	})
	require.NoError(t, err)
	_, err = s.ReplaceLinks(ctx, day0.Add(24*time.Hour), day0.Add(48*time.Hour), []model.MatchResult{
		{Network: "unity", StatementID: "s-3", RequestID: "req-3", Confidence: 1, KeysUsed: model.KeysExact, Bucket: model.BucketAuto},
	})
	require.NoError(t, err)

	totals, err := s.WindowTotals(ctx, day0, day0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "4", totals.Expected.String())
	assert.Equal(t, "1.25", totals.Paid.String())
	assert.Equal(t, "0.4", totals.Unmatched.String())
	assert.Equal(t, "0.7", totals.LatePaid.String())
	assert.Equal(t, 2, totals.Statements)

	empty, err := s.WindowTotals(ctx, day0.Add(-48*time.Hour), day0)
	require.NoError(t, err)
	assert.True(t, empty.Expected.IsZero())
	assert.Zero(t, empty.Statements)
}

func TestSignalSamples(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	_, err := s.UpsertSignals(ctx, []model.SignalSample{
		{Signal: model.SignalFX, Key: "EUR", Day: day0.AddDate(0, 0, -1), Rate: dec("1.08")},
		{Signal: model.SignalFX, Key: "EUR", Day: day0, Rate: dec("1.10")},
		{Signal: model.SignalIVT, Day: day0, Rate: dec("0.02")},
	})
	require.NoError(t, err)
	// upsert replaces the rate
	_, err = s.UpsertSignals(ctx, []model.SignalSample{{Signal: model.SignalFX, Key: "EUR", Day: day0, Rate: dec("1.11")}})
	require.NoError(t, err)

	got, err := s.SignalSamples(ctx, model.SignalFX, day0, day0.Add(12*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1.11", got[0].Rate.String())
	assert.Equal(t, "EUR", got[0].Key)

	got, err = s.SignalSamples(ctx, model.SignalFX, day0.AddDate(0, 0, -28), day0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1.08", got[0].Rate.String())
}

func TestInsertDeltas_Idempotent(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	deltas := []model.ReconcileDelta{
		{Kind: model.DeltaUnderpay, Amount: dec("2.5"), Currency: "USD", ReasonCode: "paid_below_expected",
			WindowStart: day0, WindowEnd: day0.Add(24 * time.Hour), EvidenceID: "ev-1", Confidence: dec("0.75")},
		{Kind: model.DeltaIVTOutlier, Amount: decimal.Zero, Currency: "USD", ReasonCode: "ivt_above_p95",
			WindowStart: day0, WindowEnd: day0.Add(24 * time.Hour), EvidenceID: "ev-2", Confidence: dec("0.7")},
	}

	n, err := s.InsertDeltas(ctx, deltas)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.InsertDeltas(ctx, deltas)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := s.Deltas(ctx, day0, day0.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ev-1", got[0].EvidenceID)
	assert.True(t, got[0].Amount.Equal(dec("2.5")))
	assert.Equal(t, day0.Add(24*time.Hour), got[0].WindowEnd)
	assert.NoError(t, got[0].Validate())
}

func TestDigests(t *testing.T) {
	s := openTest(t)
	seed(t, s)
	ctx := context.Background()

	got, err := s.GetDigest(ctx, "2025-03")
	require.NoError(t, err)
	assert.Nil(t, got)

	created := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	d := model.MonthlyDigest{Month: "2025-03", Digest: "abc", Signature: "sig", CoveragePct: dec("66.5"),
		CreatedAt: created, UpdatedAt: created}
	require.NoError(t, s.InsertDigest(ctx, d))
	assert.Error(t, s.InsertDigest(ctx, d), "month is unique")

	d.Digest = "def"
	d.UpdatedAt = created.Add(time.Hour)
	require.NoError(t, s.UpdateDigest(ctx, d))

	got, err = s.GetDigest(ctx, "2025-03")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "def", got.Digest)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, created.Add(time.Hour), got.UpdatedAt)
	assert.Equal(t, "66.5", got.CoveragePct.String())

	assert.Error(t, s.UpdateDigest(ctx, model.MonthlyDigest{Month: "2025-04"}))

	_, err = s.ReplaceLinks(ctx, day0, day0.Add(24*time.Hour), []model.MatchResult{
		{Network: "admob", StatementID: "s-1", RequestID: "req-1", Confidence: 1, KeysUsed: model.KeysFuzzy, Bucket: model.BucketAuto},
	})
	require.NoError(t, err)
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	linked, expected, err := s.MonthCoverage(ctx, from, from.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, "1.25", linked.String())
	assert.Equal(t, "13", expected.String())
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("VRA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VRA_TEST_POSTGRES_DSN not set")
	}
	s, err := Open(context.Background(), "pgx", dsn)
	require.NoError(t, err)
	defer s.Close()

	totals, err := s.WindowTotals(context.Background(), day0, day0.Add(time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, totals.Statements, 0)
}
