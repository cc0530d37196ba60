package commands

import (
	"context"
	"fmt"

	"github.com/rivalapex/vra/internal/analytics"
	"github.com/rivalapex/vra/internal/model"
	"github.com/rivalapex/vra/internal/reconcile"
	"github.com/rivalapex/vra/internal/store"
)

// openAnalytics returns the reconcile inputs: st alone, or st's totals with
// signal samples from ClickHouse when a DSN is configured.
func (e *runEnv) openAnalytics(ctx context.Context, st *store.Store) (reconcile.Analytics, func() error, error) {
	dsn := e.cfg.Analytics.ClickHouseDSN
	if dsn == "" {
		return st, func() error { return nil }, nil
	}
	ch, err := analytics.Open(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("opening analytics: %w", err)
	}
	return reconcile.CombineAnalytics(st, ch), ch.Close, nil
}

// signalSink stores statements and expected rows relationally and sends
// signal samples to ClickHouse.
type signalSink struct {
	*store.Store
	ch *analytics.ClickHouse
}

func (s signalSink) UpsertSignals(ctx context.Context, rows []model.SignalSample) (int, error) {
	return s.ch.UpsertSignals(ctx, rows)
}
