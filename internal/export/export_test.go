package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/rivalapex/vra/internal/model"
)

var (
	from = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	to   = from.Add(24 * time.Hour)
)

func fixture() []model.ReconcileDelta {
	return []model.ReconcileDelta{
		{
			Kind: model.DeltaUnderpay, Amount: decimal.RequireFromString("12.5"), Currency: "USD",
			ReasonCode: "paid_below_expected unmatched=3.000000", WindowStart: from, WindowEnd: to,
			EvidenceID: "bbbb", Confidence: decimal.RequireFromString("0.75"),
		},
		{
			Kind: model.DeltaFXMismatch, Amount: decimal.Zero, Currency: "EUR",
			ReasonCode: "fx_deviation pct=3.10", WindowStart: from, WindowEnd: to,
			EvidenceID: "aaaa", Confidence: decimal.RequireFromString("0.8"),
		},
	}
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	files, err := Write(dir, from, to, fixture())
	require.NoError(t, err)
	assert.Equal(t, 2, files.Rows)
	assert.Equal(t, filepath.Join(dir, "vra-evidence-20250310T000000Z-20250311T000000Z.csv"), files.CSV)

	f, err := os.Open(files.CSV)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "evidence_id", records[0][0])
	assert.Equal(t, "aaaa", records[1][0], "sorted by evidence id within a window")
	assert.Equal(t, "12.500000", records[2][5])
	assert.Equal(t, "0.7500", records[2][6])

	fr, err := local.NewLocalFileReader(files.Parquet)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(Row), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.EqualValues(t, 2, pr.GetNumRows())
	rows := make([]Row, 2)
	require.NoError(t, pr.Read(&rows))
	assert.Equal(t, "aaaa", rows[0].EvidenceID)
	assert.Equal(t, "fx_mismatch", rows[0].Kind)
	assert.Equal(t, int64(12_500_000), rows[1].AmountMicros)
	assert.Equal(t, "2025-03-10T00:00:00Z", rows[1].WindowStart)
}

func TestWrite_Empty(t *testing.T) {
	files, err := Write(t.TempDir(), from, to, nil)
	require.NoError(t, err)
	assert.Zero(t, files.Rows)
	assert.FileExists(t, files.CSV)
	assert.FileExists(t, files.Parquet)
}
