package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rivalapex/vra/internal/model"
)

// StatementHeader is the CSV header for normalized statement files.
const StatementHeader = "network,statement_id,event_date,app_id,ad_unit_id,country,format,paid_usd,request_id"

const (
	numStatementFields = 9
	colSNetwork        = 0
	colSStatementID    = 1
	colSEventDate      = 2
	colSAppID          = 3
	colSAdUnitID       = 4
	colSCountry        = 5
	colSFormat         = 6
	colSPaid           = 7
	colSRequestID      = 8
)

// ExpectedHeader is the CSV header for expected revenue files.
const ExpectedHeader = "request_id,ts,expected_usd,app_id_hint,ad_unit_id_hint,country_hint,format_hint"

const (
	numExpectedFields = 7
	colERequestID     = 0
	colETS            = 1
	colEExpected      = 2
	colEAppID         = 3
	colEAdUnitID      = 4
	colECountry       = 5
	colEFormat        = 6
)

// SignalHeader is the CSV header for daily signal files.
const SignalHeader = "signal,key,day,rate"

const (
	numSignalFields = 4
	colGSignal      = 0
	colGKey         = 1
	colGDay         = 2
	colGRate        = 3
)

const dateFormat = "2006-01-02"

// parseTime accepts RFC 3339 or a bare date, always returning UTC.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s %q: %w", field, s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s %s is negative", field, d)
	}
	return d, nil
}

// MarshalStatement converts a StatementRow to a CSV row.
func MarshalStatement(s model.StatementRow) []string {
	row := make([]string, numStatementFields)
	row[colSNetwork] = s.Network
	row[colSStatementID] = s.StatementID
	row[colSEventDate] = s.EventDate.UTC().Format(time.RFC3339)
	row[colSAppID] = s.AppID
	row[colSAdUnitID] = s.AdUnitID
	row[colSCountry] = s.Country
	row[colSFormat] = s.Format
	row[colSPaid] = s.PaidUSD.String()
	row[colSRequestID] = s.RequestID
	return row
}

// UnmarshalStatement converts a CSV row to a StatementRow.
func UnmarshalStatement(record []string) (model.StatementRow, error) {
	if len(record) != numStatementFields {
		return model.StatementRow{}, fmt.Errorf("expected %d fields, got %d", numStatementFields, len(record))
	}
	if strings.TrimSpace(record[colSStatementID]) == "" {
		return model.StatementRow{}, fmt.Errorf("statement_id is empty")
	}
	at, err := parseTime(record[colSEventDate])
	if err != nil {
		return model.StatementRow{}, err
	}
	paid, err := parseAmount("paid_usd", record[colSPaid])
	if err != nil {
		return model.StatementRow{}, err
	}
	return model.StatementRow{
		Network:     strings.TrimSpace(record[colSNetwork]),
		StatementID: strings.TrimSpace(record[colSStatementID]),
		EventDate:   at,
		AppID:       record[colSAppID],
		AdUnitID:    record[colSAdUnitID],
		Country:     record[colSCountry],
		Format:      record[colSFormat],
		PaidUSD:     paid,
		RequestID:   strings.TrimSpace(record[colSRequestID]),
	}, nil
}

// MarshalExpected converts an ExpectedRow to a CSV row.
func MarshalExpected(e model.ExpectedRow) []string {
	row := make([]string, numExpectedFields)
	row[colERequestID] = e.RequestID
	row[colETS] = e.TS.UTC().Format(time.RFC3339)
	row[colEExpected] = e.ExpectedUSD.String()
	row[colEAppID] = e.AppIDHint
	row[colEAdUnitID] = e.AdUnitIDHint
	row[colECountry] = e.CountryHint
	row[colEFormat] = e.FormatHint
	return row
}

// UnmarshalExpected converts a CSV row to an ExpectedRow.
func UnmarshalExpected(record []string) (model.ExpectedRow, error) {
	if len(record) != numExpectedFields {
		return model.ExpectedRow{}, fmt.Errorf("expected %d fields, got %d", numExpectedFields, len(record))
	}
	if strings.TrimSpace(record[colERequestID]) == "" {
		return model.ExpectedRow{}, fmt.Errorf("request_id is empty")
	}
	ts, err := parseTime(record[colETS])
	if err != nil {
		return model.ExpectedRow{}, err
	}
	amount, err := parseAmount("expected_usd", record[colEExpected])
	if err != nil {
		return model.ExpectedRow{}, err
	}
	return model.ExpectedRow{
		RequestID:    strings.TrimSpace(record[colERequestID]),
		TS:           ts,
		ExpectedUSD:  amount,
		AppIDHint:    record[colEAppID],
		AdUnitIDHint: record[colEAdUnitID],
		CountryHint:  record[colECountry],
		FormatHint:   record[colEFormat],
	}, nil
}

// UnmarshalSignal converts a CSV row to a SignalSample.
func UnmarshalSignal(record []string) (model.SignalSample, error) {
	if len(record) != numSignalFields {
		return model.SignalSample{}, fmt.Errorf("expected %d fields, got %d", numSignalFields, len(record))
	}
	kind := model.SignalKind(strings.ToLower(strings.TrimSpace(record[colGSignal])))
	switch kind {
	case model.SignalIVT, model.SignalFX, model.SignalViewability:
	default:
		return model.SignalSample{}, fmt.Errorf("unknown signal %q", record[colGSignal])
	}
	day, err := parseTime(record[colGDay])
	if err != nil {
		return model.SignalSample{}, err
	}
	rate, err := parseAmount("rate", record[colGRate])
	if err != nil {
		return model.SignalSample{}, err
	}
	key := strings.TrimSpace(record[colGKey])
	if kind == model.SignalFX {
		key = strings.ToUpper(key)
	}
	return model.SignalSample{
		Signal: kind,
		Key:    key,
		Day:    time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
		Rate:   rate,
	}, nil
}
