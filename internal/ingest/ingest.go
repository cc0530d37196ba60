// Package ingest loads normalized statement, expected and signal CSV files
// into the store.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rivalapex/vra/internal/model"
)

// ErrNetworkBlocked means a statement names a network outside the import allowlist.
var ErrNetworkBlocked = errors.New("network is not allowed")

// Sink receives parsed rows. The store implements it. Statements and
// expected rows are immutable once stored; signal samples are replaced.
type Sink interface {
	InsertStatements(ctx context.Context, rows []model.StatementRow) (model.InsertResult, error)
	InsertExpected(ctx context.Context, rows []model.ExpectedRow) (model.InsertResult, error)
	UpsertSignals(ctx context.Context, rows []model.SignalSample) (int, error)
}

// Options tune an import.
type Options struct {
	Network         string   // fills statements whose network column is empty
	AllowedNetworks []string // empty allows every network
}

// Report summarizes one import.
type Report struct {
	Kind     string
	Rows     int
	Stored   int
	Warnings []string // one per skipped row
}

// Importer loads one kind of CSV.
type Importer interface {
	Kind() string
	Header() string
	Import(ctx context.Context, r io.Reader, sink Sink, opts Options) (Report, error)
}

// Registry holds importers by kind.
type Registry struct {
	importers map[string]Importer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{importers: make(map[string]Importer)}
}

// Register adds an importer. Panics on duplicate kind.
func (r *Registry) Register(imp Importer) {
	key := strings.ToLower(imp.Kind())
	if _, ok := r.importers[key]; ok {
		panic("duplicate import kind: " + key)
	}
	r.importers[key] = imp
}

// Get returns the importer for kind, or nil.
func (r *Registry) Get(kind string) Importer {
	return r.importers[strings.ToLower(kind)]
}

// Kinds lists registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.importers))
	for k := range r.importers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// DefaultRegistry returns a registry with every built-in kind.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(StatementImporter{})
	r.Register(ExpectedImporter{})
	r.Register(SignalImporter{})
	return r
}

// readRecords checks the header and returns the data rows. Warnings refer
// to file lines, so data row i is line i+2.
func readRecords(r io.Reader, header string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	got := strings.ToLower(strings.Join(records[0], ","))
	if strings.TrimPrefix(got, "\ufeff") != header {
		return nil, fmt.Errorf("unexpected header %q, want %q", strings.Join(records[0], ","), header)
	}
	return records[1:], nil
}

func rowWarning(i int, err error) string {
	return fmt.Sprintf("row %d: %v", i+2, err)
}

// StatementImporter loads statement CSVs.
type StatementImporter struct{}

func (StatementImporter) Kind() string   { return "statements" }
func (StatementImporter) Header() string { return StatementHeader }

// Import rejects the whole file when any row names a network outside
// opts.AllowedNetworks. Malformed rows are skipped with a warning.
func (StatementImporter) Import(ctx context.Context, r io.Reader, sink Sink, opts Options) (Report, error) {
	rep := Report{Kind: "statements"}
	records, err := readRecords(r, StatementHeader)
	if err != nil {
		return rep, err
	}
	allowed := make(map[string]bool, len(opts.AllowedNetworks))
	for _, n := range opts.AllowedNetworks {
		allowed[strings.ToLower(strings.TrimSpace(n))] = true
	}

	var rows []model.StatementRow
	for i, rec := range records {
		rep.Rows++
		s, err := UnmarshalStatement(rec)
		if err != nil {
			rep.Warnings = append(rep.Warnings, rowWarning(i, err))
			continue
		}
		if s.Network == "" {
			s.Network = opts.Network
		}
		if s.Network == "" {
			rep.Warnings = append(rep.Warnings, rowWarning(i, errors.New("network is empty and no --network given")))
			continue
		}
		if len(allowed) > 0 && !allowed[strings.ToLower(s.Network)] {
			return rep, fmt.Errorf("row %d: %w: %s", i+2, ErrNetworkBlocked, s.Network)
		}
		rows = append(rows, s)
	}
	if len(rows) == 0 {
		return rep, nil
	}
	res, err := sink.InsertStatements(ctx, rows)
	if err != nil {
		return rep, fmt.Errorf("storing statements: %w", err)
	}
	rep.addInsert("statement", res)
	return rep, nil
}

// ExpectedImporter loads expected revenue CSVs.
type ExpectedImporter struct{}

func (ExpectedImporter) Kind() string   { return "expected" }
func (ExpectedImporter) Header() string { return ExpectedHeader }

func (ExpectedImporter) Import(ctx context.Context, r io.Reader, sink Sink, _ Options) (Report, error) {
	rep := Report{Kind: "expected"}
	records, err := readRecords(r, ExpectedHeader)
	if err != nil {
		return rep, err
	}
	var rows []model.ExpectedRow
	for i, rec := range records {
		rep.Rows++
		e, err := UnmarshalExpected(rec)
		if err != nil {
			rep.Warnings = append(rep.Warnings, rowWarning(i, err))
			continue
		}
		rows = append(rows, e)
	}
	if len(rows) == 0 {
		return rep, nil
	}
	res, err := sink.InsertExpected(ctx, rows)
	if err != nil {
		return rep, fmt.Errorf("storing expected rows: %w", err)
	}
	rep.addInsert("expected row", res)
	return rep, nil
}

// SignalImporter loads daily signal CSVs.
type SignalImporter struct{}

func (SignalImporter) Kind() string   { return "signals" }
func (SignalImporter) Header() string { return SignalHeader }

func (SignalImporter) Import(ctx context.Context, r io.Reader, sink Sink, _ Options) (Report, error) {
	rep := Report{Kind: "signals"}
	records, err := readRecords(r, SignalHeader)
	if err != nil {
		return rep, err
	}
	var rows []model.SignalSample
	for i, rec := range records {
		rep.Rows++
		s, err := UnmarshalSignal(rec)
		if err != nil {
			rep.Warnings = append(rep.Warnings, rowWarning(i, err))
			continue
		}
		rows = append(rows, s)
	}
	if len(rows) == 0 {
		return rep, nil
	}
	n, err := sink.UpsertSignals(ctx, rows)
	if err != nil {
		return rep, fmt.Errorf("storing signals: %w", err)
	}
	rep.Stored = n
	return rep, nil
}

func (rep *Report) addInsert(what string, res model.InsertResult) {
	rep.Stored = res.Inserted
	for _, key := range res.Conflicts {
		rep.Warnings = append(rep.Warnings,
			fmt.Sprintf("%s %s already stored with different content, kept the stored row", what, key))
	}
}

// WriteStatements writes statements with a header row.
func WriteStatements(w io.Writer, rows []model.StatementRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(StatementHeader, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, s := range rows {
		if err := cw.Write(MarshalStatement(s)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteExpected writes expected rows with a header row.
func WriteExpected(w io.Writer, rows []model.ExpectedRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(ExpectedHeader, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, e := range rows {
		if err := cw.Write(MarshalExpected(e)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
