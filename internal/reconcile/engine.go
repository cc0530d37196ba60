// Package reconcile compares a window's expected revenue with what networks
// paid and records anomalies as immutable delta evidence.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rivalapex/vra/internal/id"
	"github.com/rivalapex/vra/internal/logger"
	"github.com/rivalapex/vra/internal/model"
	"github.com/rivalapex/vra/internal/tracing"
)

// Engine computes deltas for a window.
type Engine struct {
	analytics Analytics
	writer    DeltaWriter
	cfg       Config
}

// NewEngine creates an Engine. writer may be nil when only dry runs are made.
func NewEngine(analytics Analytics, writer DeltaWriter, cfg Config) *Engine {
	return &Engine{analytics: analytics, writer: writer, cfg: cfg}
}

// Result summarizes a reconciliation run.
type Result struct {
	Inserted int
	Deltas   []model.ReconcileDelta
	Amounts  map[model.DeltaKind]decimal.Decimal
	Warnings []string
}

// ReconcileWindow computes the deltas for w and, unless w.DryRun, persists
// them. Re-running a window inserts nothing new because evidence ids are
// derived from delta content.
func (e *Engine) ReconcileWindow(ctx context.Context, w Window) (Result, error) {
	ctx, span := tracing.Start(ctx, "reconcile.window",
		attribute.String("vra.window_from", w.From.Format(time.RFC3339)),
		attribute.String("vra.window_to", w.To.Format(time.RFC3339)),
		attribute.Bool("vra.dry_run", w.DryRun),
	)
	res, err := e.reconcileWindow(ctx, w)
	span.SetAttributes(attribute.Int("vra.deltas", len(res.Deltas)), attribute.Int("vra.inserted", res.Inserted))
	tracing.End(span, err)
	return res, err
}

func (e *Engine) reconcileWindow(ctx context.Context, w Window) (Result, error) {
	log := logger.FromContext(ctx).WithFields(logrus.Fields{"from": w.From, "to": w.To})
	if !w.From.Before(w.To) {
		return Result{}, ErrInvalidWindow
	}

	res := Result{Amounts: make(map[model.DeltaKind]decimal.Decimal)}

	totals, err := e.analytics.WindowTotals(ctx, w.From, w.To)
	if err != nil {
		return Result{}, fmt.Errorf("loading window totals: %w", err)
	}
	if totals.Expected.IsZero() {
		log.Info("no expected revenue in window")
		return res, nil
	}

	findings, warnings := attributeGap(totals, e.cfg.Currency)
	res.Warnings = append(res.Warnings, warnings...)

	signalFindings, err := e.signalFindings(ctx, w)
	if err != nil {
		return Result{}, err
	}
	findings = append(findings, signalFindings...)

	for _, f := range findings {
		d := e.toDelta(w, f)
		if err := d.Validate(); err != nil {
			return Result{}, fmt.Errorf("building delta: %w", err)
		}
		res.Deltas = append(res.Deltas, d)
		res.Amounts[d.Kind] = res.Amounts[d.Kind].Add(d.Amount)
	}

	if w.DryRun || len(res.Deltas) == 0 {
		log.WithFields(logrus.Fields{"deltas": len(res.Deltas), "dry_run": w.DryRun}).Info("window reconciled")
		return res, nil
	}
	if e.writer == nil {
		return Result{}, fmt.Errorf("reconcile: no delta writer configured")
	}

	n, err := e.writer.InsertDeltas(ctx, res.Deltas)
	if err != nil {
		return Result{}, fmt.Errorf("persisting deltas: %w", err)
	}
	res.Inserted = n
	log.WithFields(logrus.Fields{"deltas": len(res.Deltas), "inserted": n}).Info("window reconciled")
	return res, nil
}

func (e *Engine) signalFindings(ctx context.Context, w Window) ([]finding, error) {
	curFrom := dayStart(w.From)
	baseFrom := curFrom.AddDate(0, 0, -e.cfg.BaselineDays)

	load := func(kind model.SignalKind, from, to time.Time) ([]model.SignalSample, error) {
		samples, err := e.analytics.SignalSamples(ctx, kind, from, to)
		if err != nil {
			return nil, fmt.Errorf("loading %s samples: %w", kind, err)
		}
		return samples, nil
	}

	var out []finding

	ivtCur, err := load(model.SignalIVT, curFrom, w.To)
	if err != nil {
		return nil, err
	}
	ivtBase, err := load(model.SignalIVT, baseFrom, curFrom)
	if err != nil {
		return nil, err
	}
	if f, ok := ivtOutlier(ivtCur, ivtBase, e.cfg.Currency); ok {
		out = append(out, f)
	}

	fxCur, err := load(model.SignalFX, curFrom, w.To)
	if err != nil {
		return nil, err
	}
	fxBase, err := load(model.SignalFX, baseFrom, curFrom)
	if err != nil {
		return nil, err
	}
	out = append(out, fxMismatches(fxCur, fxBase, e.cfg.FXBandPct)...)

	view, err := load(model.SignalViewability, curFrom, w.To)
	if err != nil {
		return nil, err
	}
	if f, ok := viewabilityGap(view, e.cfg.ViewabilityGapPP, e.cfg.Currency); ok {
		out = append(out, f)
	}
	return out, nil
}

func (e *Engine) toDelta(w Window, f finding) model.ReconcileDelta {
	reason := sanitizeReason(f.reason)
	from := w.From.UTC()
	to := w.To.UTC()
	amount := f.amount.Round(6)
	return model.ReconcileDelta{
		Kind:        f.kind,
		Amount:      amount,
		Currency:    f.currency,
		ReasonCode:  reason,
		WindowStart: from,
		WindowEnd:   to,
		EvidenceID: id.EvidenceID(string(f.kind), from.Format(time.RFC3339), to.Format(time.RFC3339),
			f.currency, amount.StringFixed(6), reason),
		Confidence: f.confidence,
	}
}
