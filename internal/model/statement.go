package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatementRow is one line of a network payout report after normalization.
type StatementRow struct {
	Network     string
	StatementID string // unique within network + window
	EventDate   time.Time
	AppID       string
	AdUnitID    string
	Country     string
	Format      string
	PaidUSD     decimal.Decimal
	RequestID   string // empty unless the network echoes our request id
}

// Key identifies a statement across networks.
func (s StatementRow) Key() string {
	return s.Network + "/" + s.StatementID
}

// InsertResult reports a batch write of immutable rows. Rows already stored
// with identical content are neither inserted nor conflicts.
type InsertResult struct {
	Inserted  int
	Conflicts []string // keys of rows stored earlier with different content
}

// ExpectedRow is the platform's own record of a billable ad event.
type ExpectedRow struct {
	RequestID    string
	TS           time.Time
	ExpectedUSD  decimal.Decimal
	AppIDHint    string
	AdUnitIDHint string
	CountryHint  string
	FormatHint   string
}

// SignalKind names an analytics sample series.
type SignalKind string

const (
	SignalIVT         SignalKind = "ivt"
	SignalFX          SignalKind = "fx"
	SignalViewability SignalKind = "viewability"
)

// Viewability sources.
const (
	ViewabilityVerified  = "verified"
	ViewabilityStatement = "statement"
)

// SignalSample is one daily analytics observation (IVT rate, FX rate or
// viewability rate). Key is the currency for fx and the source for viewability.
type SignalSample struct {
	Signal SignalKind
	Key    string
	Day    time.Time
	Rate   decimal.Decimal
}
