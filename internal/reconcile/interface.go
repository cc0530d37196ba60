package reconcile

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rivalapex/vra/internal/model"
)

// Totals are the USD aggregates for one window.
type Totals struct {
	Expected   decimal.Decimal // expected rows with ts in the window
	Paid       decimal.Decimal // statements in the window linked to an expected row
	Unmatched  decimal.Decimal // statements in the window with no link
	LatePaid   decimal.Decimal // statements after the window linked to this window's expected rows
	Statements int
}

// TotalsSource aggregates statements, expected rows and their links.
type TotalsSource interface {
	WindowTotals(ctx context.Context, from, to time.Time) (Totals, error)
}

// SignalSource serves the daily analytics samples.
type SignalSource interface {
	// SignalSamples returns daily samples with from <= day < to.
	SignalSamples(ctx context.Context, signal model.SignalKind, from, to time.Time) ([]model.SignalSample, error)
}

// Analytics reads the inputs of a reconciliation run. The engine depends on
// this interface, not on a concrete store.
//
//go:generate mockgen -destination=mocks/mock_interface.go -package=mocks -source=interface.go Analytics,DeltaWriter
type Analytics interface {
	TotalsSource
	SignalSource
}

// CombineAnalytics serves totals and signal samples from different stores,
// e.g. the relational store and a ClickHouse rollup.
func CombineAnalytics(totals TotalsSource, signals SignalSource) Analytics {
	return combined{totals, signals}
}

type combined struct {
	TotalsSource
	SignalSource
}

// DeltaWriter persists the deltas of one window in a single transaction and
// returns how many rows were new.
type DeltaWriter interface {
	InsertDeltas(ctx context.Context, deltas []model.ReconcileDelta) (int, error)
}
