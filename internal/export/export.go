// Package export writes a window's reconciliation deltas as evidence files
// for compliance consumers.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/rivalapex/vra/internal/model"
)

// Header is the CSV header of an evidence file.
const Header = "evidence_id,kind,window_start,window_end,currency,amount,confidence,reason_code"

// Files names the written evidence files.
type Files struct {
	CSV     string
	Parquet string
	Rows    int
}

// Row is the parquet schema. Amounts stay decimal strings so nothing is
// lost to float rounding; AmountMicros is for columnar aggregation.
type Row struct {
	EvidenceID   string `parquet:"name=evidence_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Kind         string `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	WindowStart  string `parquet:"name=window_start, type=BYTE_ARRAY, convertedtype=UTF8"`
	WindowEnd    string `parquet:"name=window_end, type=BYTE_ARRAY, convertedtype=UTF8"`
	Currency     string `parquet:"name=currency, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount       string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	AmountMicros int64  `parquet:"name=amount_micros, type=INT64"`
	Confidence   string `parquet:"name=confidence, type=BYTE_ARRAY, convertedtype=UTF8"`
	ReasonCode   string `parquet:"name=reason_code, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// BaseName is the file name shared by both outputs, without extension.
func BaseName(from, to time.Time) string {
	const layout = "20060102T150405Z"
	return fmt.Sprintf("vra-evidence-%s-%s", from.UTC().Format(layout), to.UTC().Format(layout))
}

// Write writes deltas to <dir>/<BaseName>.csv and .parquet, ordered by
// window start then evidence id.
func Write(dir string, from, to time.Time, deltas []model.ReconcileDelta) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("creating export dir: %w", err)
	}
	sorted := append([]model.ReconcileDelta(nil), deltas...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].WindowStart.Equal(sorted[j].WindowStart) {
			return sorted[i].WindowStart.Before(sorted[j].WindowStart)
		}
		return sorted[i].EvidenceID < sorted[j].EvidenceID
	})

	base := filepath.Join(dir, BaseName(from, to))
	files := Files{CSV: base + ".csv", Parquet: base + ".parquet", Rows: len(sorted)}
	if err := writeCSV(files.CSV, sorted); err != nil {
		return Files{}, err
	}
	if err := writeParquet(files.Parquet, sorted); err != nil {
		return Files{}, err
	}
	return files, nil
}

// ToRow converts a delta to its export form.
func ToRow(d model.ReconcileDelta) Row {
	return Row{
		EvidenceID:   d.EvidenceID,
		Kind:         string(d.Kind),
		WindowStart:  d.WindowStart.UTC().Format(time.RFC3339),
		WindowEnd:    d.WindowEnd.UTC().Format(time.RFC3339),
		Currency:     d.Currency,
		Amount:       d.Amount.StringFixed(6),
		AmountMicros: d.Amount.Shift(6).Round(0).IntPart(),
		Confidence:   d.Confidence.StringFixed(4),
		ReasonCode:   d.ReasonCode,
	}
}

func (r Row) record() []string {
	return []string{r.EvidenceID, r.Kind, r.WindowStart, r.WindowEnd, r.Currency, r.Amount, r.Confidence, r.ReasonCode}
}

func writeCSV(path string, deltas []model.ReconcileDelta) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating csv: %w", err)
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		f.Close()
		return fmt.Errorf("writing csv header: %w", err)
	}
	for i, d := range deltas {
		if err := cw.Write(ToRow(d).record()); err != nil {
			f.Close()
			return fmt.Errorf("writing csv row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flushing csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing csv: %w", err)
	}
	return nil
}

func writeParquet(path string, deltas []model.ReconcileDelta) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("creating parquet: %w", err)
	}
	pw, err := writer.NewParquetWriter(fw, new(Row), 1)
	if err != nil {
		fw.Close()
		return fmt.Errorf("parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, d := range deltas {
		row := ToRow(d)
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			fw.Close()
			return fmt.Errorf("writing parquet row %s: %w", d.EvidenceID, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("flushing parquet: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("closing parquet: %w", err)
	}
	return nil
}
