package reconcile

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/rivalapex/vra/internal/model"
)

// Fixed confidences for rate-based anomalies and timing lag.
var (
	confTimingLag   = decimal.RequireFromString("0.9")
	confIVT         = decimal.RequireFromString("0.7")
	confFX          = decimal.RequireFromString("0.8")
	confViewability = decimal.RequireFromString("0.6")
	half            = decimal.RequireFromString("0.5")
)

// finding is a delta before window bounds and evidence id are attached.
type finding struct {
	kind       model.DeltaKind
	amount     decimal.Decimal
	currency   string
	reason     string
	confidence decimal.Decimal
}

// attributeGap splits the revenue gap into timing_lag, missing and underpay.
// Late payments are credited first. The rest is missing when the window has no
// statements at all and underpay otherwise.
func attributeGap(t Totals, currency string) (findings []finding, warnings []string) {
	gap := t.Expected.Sub(t.Paid).Sub(t.Unmatched)
	if !gap.IsPositive() {
		return nil, nil
	}

	lag := decimal.Min(gap, t.LatePaid)
	if lag.IsPositive() {
		findings = append(findings, finding{
			kind:       model.DeltaTimingLag,
			amount:     lag,
			currency:   currency,
			reason:     "paid_after_window",
			confidence: confTimingLag,
		})
	}

	rest := gap.Sub(lag)
	if t.Statements == 0 && t.LatePaid.IsPositive() {
		warnings = append(warnings, fmt.Sprintf(
			"no statements in window but %s paid late: missing vs timing_lag attribution is ambiguous", t.LatePaid.StringFixed(2)))
	}
	if !rest.IsPositive() {
		return findings, warnings
	}

	if t.Statements == 0 {
		findings = append(findings, finding{
			kind:       model.DeltaMissing,
			amount:     rest,
			currency:   currency,
			reason:     "no_statement_rows",
			confidence: decimal.NewFromInt(1),
		})
		return findings, warnings
	}

	conf := half
	if covered := t.Paid.Add(t.Unmatched); covered.IsPositive() {
		conf = half.Add(half.Mul(t.Paid).Div(covered))
	}
	findings = append(findings, finding{
		kind:       model.DeltaUnderpay,
		amount:     rest,
		currency:   currency,
		reason:     fmt.Sprintf("paid_below_expected unmatched=%s", t.Unmatched.StringFixed(2)),
		confidence: conf.Round(4),
	})
	return findings, warnings
}

// ivtOutlier flags a window whose mean IVT rate is strictly above the p95 of
// the baseline days. Missing data on either side skips the rule.
func ivtOutlier(current, baseline []model.SignalSample, currency string) (finding, bool) {
	if len(current) == 0 || len(baseline) == 0 {
		return finding{}, false
	}
	cur := mean(rates(current))
	p95 := percentile(rates(baseline), 95)
	if !cur.GreaterThan(p95) {
		return finding{}, false
	}
	return finding{
		kind:       model.DeltaIVTOutlier,
		amount:     decimal.Zero,
		currency:   currency,
		reason:     fmt.Sprintf("ivt_above_p95 mean=%s p95=%s", cur.StringFixed(4), p95.StringFixed(4)),
		confidence: confIVT,
	}, true
}

// fxMismatches compares each currency's mean rate in the window against its
// baseline median. Only deviations strictly above band emit.
func fxMismatches(current, baseline []model.SignalSample, band decimal.Decimal) []finding {
	cur := byKey(current)
	base := byKey(baseline)

	keys := make([]string, 0, len(cur))
	for k := range cur {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []finding
	for _, ccy := range keys {
		b, ok := base[ccy]
		if !ok {
			continue
		}
		med := median(b)
		if med.IsZero() {
			continue
		}
		c := mean(cur[ccy])
		dev := c.Sub(med).Abs().Div(med).Mul(hundred)
		if !dev.GreaterThan(band) {
			continue
		}
		out = append(out, finding{
			kind:       model.DeltaFXMismatch,
			amount:     decimal.Zero,
			currency:   ccy,
			reason:     fmt.Sprintf("fx_outside_band dev_pct=%s band_pct=%s", dev.StringFixed(4), band.String()),
			confidence: confFX,
		})
	}
	return out
}

// viewabilityGap compares verified viewability with the rate networks report,
// both as fractions. The gap is in percentage points.
func viewabilityGap(current []model.SignalSample, threshold decimal.Decimal, currency string) (finding, bool) {
	groups := byKey(current)
	verified, okV := groups[model.ViewabilityVerified]
	reported, okR := groups[model.ViewabilityStatement]
	if !okV || !okR {
		return finding{}, false
	}
	v, r := mean(verified), mean(reported)
	gap := v.Sub(r).Abs().Mul(hundred)
	if !gap.GreaterThan(threshold) {
		return finding{}, false
	}
	return finding{
		kind:       model.DeltaViewabilityGap,
		amount:     decimal.Zero,
		currency:   currency,
		reason:     fmt.Sprintf("viewability_gap_pp=%s verified=%s reported=%s", gap.StringFixed(2), v.StringFixed(4), r.StringFixed(4)),
		confidence: confViewability,
	}, true
}

func rates(samples []model.SignalSample) []decimal.Decimal {
	out := make([]decimal.Decimal, len(samples))
	for i, s := range samples {
		out[i] = s.Rate
	}
	return out
}

func byKey(samples []model.SignalSample) map[string][]decimal.Decimal {
	out := make(map[string][]decimal.Decimal)
	for _, s := range samples {
		out[s.Key] = append(out[s.Key], s.Rate)
	}
	return out
}
