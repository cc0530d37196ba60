package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rivalapex/vra/internal/model"
	"github.com/rivalapex/vra/internal/reconcile"
)

type reconcileOptions struct {
	window windowFlags
	dryRun bool
	force  bool
	yes    bool
}

func (a *App) newReconcileCommand() *cobra.Command {
	var opts reconcileOptions

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compute reconciliation deltas for a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "reconcile", func(ctx context.Context, env *runEnv) (result, error) {
				return runReconcile(ctx, env, opts)
			})
		},
	}

	opts.window.register(cmd.Flags())
	boolVar(cmd.Flags(), &opts.dryRun, "dry-run", "compute deltas without writing them")
	boolVar(cmd.Flags(), &opts.force, "force", "allow a window above the maximum span (needs --yes)")
	boolVar(cmd.Flags(), &opts.yes, "yes", "confirm --force")

	return cmd
}

func runReconcile(ctx context.Context, env *runEnv, opts reconcileOptions) (result, error) {
	from, to, err := opts.window.parse()
	if err != nil {
		return result{}, err
	}
	maxSpan := time.Duration(env.cfg.Reconcile.MaxWindowHours) * time.Hour
	if err := reconcile.CheckWindow(from, to, maxSpan, opts.force, opts.yes); err != nil {
		return result{}, err
	}

	st, err := env.openStore(ctx)
	if err != nil {
		return result{}, err
	}
	defer st.Close()

	inputs, closeInputs, err := env.openAnalytics(ctx, st)
	if err != nil {
		return result{}, err
	}
	defer closeInputs()

	engine := reconcile.NewEngine(inputs, st, reconcile.ConfigFrom(env.cfg.Reconcile))
	res, err := engine.ReconcileWindow(ctx, reconcile.Window{From: from, To: to, DryRun: opts.dryRun})
	if err != nil {
		return result{}, err
	}

	env.printf("window %s .. %s\n", from.Format(time.RFC3339), to.Format(time.RFC3339))
	for _, kind := range model.DeltaKinds {
		if amt, ok := res.Amounts[kind]; ok {
			env.printf("  %-16s %s\n", kind, amt.StringFixed(6))
		}
	}
	for _, w := range res.Warnings {
		env.printf("  warning: %s\n", w)
	}
	env.printf("deltas=%d inserted=%d dry_run=%t\n", len(res.Deltas), res.Inserted, opts.dryRun)

	details := fmt.Sprintf("from=%s to=%s deltas=%d inserted=%d dry_run=%t",
		from.Format(time.RFC3339), to.Format(time.RFC3339), len(res.Deltas), res.Inserted, opts.dryRun)
	return result{
		outcome: reconcileOutcome(opts.dryRun, len(res.Deltas), res.Inserted, len(res.Warnings)),
		details: details,
	}, nil
}
