package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DeltaKind classifies a reconciliation anomaly.
type DeltaKind string

const (
	DeltaUnderpay       DeltaKind = "underpay"
	DeltaMissing        DeltaKind = "missing"
	DeltaViewabilityGap DeltaKind = "viewability_gap"
	DeltaIVTOutlier     DeltaKind = "ivt_outlier"
	DeltaFXMismatch     DeltaKind = "fx_mismatch"
	DeltaTimingLag      DeltaKind = "timing_lag"
)

// DeltaKinds lists every kind in reporting order.
var DeltaKinds = []DeltaKind{
	DeltaUnderpay,
	DeltaMissing,
	DeltaTimingLag,
	DeltaIVTOutlier,
	DeltaFXMismatch,
	DeltaViewabilityGap,
}

// Valid reports whether k is a known kind.
func (k DeltaKind) Valid() bool {
	for _, known := range DeltaKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ReconcileDelta is one anomaly found for a window. Rows are never edited
// after creation; corrections are new deltas.
type ReconcileDelta struct {
	Kind        DeltaKind
	Amount      decimal.Decimal // zero for rate-only anomalies
	Currency    string
	ReasonCode  string
	WindowStart time.Time
	WindowEnd   time.Time
	EvidenceID  string
	Confidence  decimal.Decimal
}

// Validate enforces the delta invariants.
func (d ReconcileDelta) Validate() error {
	if !d.Kind.Valid() {
		return fmt.Errorf("delta %s: unknown kind %q", d.EvidenceID, d.Kind)
	}
	if !d.WindowEnd.After(d.WindowStart) {
		return fmt.Errorf("delta %s: window end %s not after start %s", d.EvidenceID,
			d.WindowEnd.Format(time.RFC3339), d.WindowStart.Format(time.RFC3339))
	}
	if d.Amount.IsNegative() {
		return fmt.Errorf("delta %s: negative amount %s", d.EvidenceID, d.Amount)
	}
	if d.Confidence.IsNegative() || d.Confidence.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("delta %s: confidence %s outside [0,1]", d.EvidenceID, d.Confidence)
	}
	if d.EvidenceID == "" {
		return fmt.Errorf("delta %s: missing evidence id", d.Kind)
	}
	return nil
}
