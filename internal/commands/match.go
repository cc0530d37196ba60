package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rivalapex/vra/internal/matching"
)

type matchOptions struct {
	window        windowFlags
	dryRun        bool
	timeWindowSec int
}

func (a *App) newMatchCommand() *cobra.Command {
	var opts matchOptions

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match statements to expected rows and store the links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "match", func(ctx context.Context, env *runEnv) (result, error) {
				return runMatch(ctx, env, opts)
			})
		},
	}

	opts.window.register(cmd.Flags())
	boolVar(cmd.Flags(), &opts.dryRun, "dry-run", "match without replacing stored links")
	cmd.Flags().IntVar(&opts.timeWindowSec, "time-window-sec", 0, "candidate window in seconds (default matching.time_window_sec)")

	return cmd
}

func runMatch(ctx context.Context, env *runEnv, opts matchOptions) (result, error) {
	from, to, err := opts.window.parse()
	if err != nil {
		return result{}, err
	}
	if !from.Before(to) {
		return result{}, fmt.Errorf("--from %s must be before --to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	mopts := matching.Options{
		TimeWindowSec:   env.cfg.Matching.TimeWindowSec,
		AutoThreshold:   env.cfg.Matching.AutoThreshold,
		ReviewThreshold: env.cfg.Matching.ReviewThreshold,
	}
	if opts.timeWindowSec != 0 {
		if opts.timeWindowSec < 0 {
			return result{}, fmt.Errorf("--time-window-sec must be positive, got %d", opts.timeWindowSec)
		}
		mopts.TimeWindowSec = opts.timeWindowSec
	}

	st, err := env.openStore(ctx)
	if err != nil {
		return result{}, err
	}
	defer st.Close()

	statements, expected, err := st.MatchInputs(ctx, from, to, mopts.Window())
	if err != nil {
		return result{}, err
	}
	res, err := matching.MatchStatementsToExpected(ctx, statements, expected, mopts)
	if err != nil {
		return result{}, err
	}

	stored := 0
	if !opts.dryRun {
		if stored, err = st.ReplaceLinks(ctx, from, to, res.Claimed()); err != nil {
			return result{}, err
		}
	}

	env.printf("statements=%d expected=%d auto=%d review=%d unmatched=%d stored=%d dry_run=%t\n",
		len(statements), len(expected), len(res.Auto), len(res.Review), len(res.Unmatched), stored, opts.dryRun)
	for _, r := range res.Review {
		env.printf("  review %s/%s -> %s confidence=%.3f %v\n", r.Network, r.StatementID, r.RequestID, r.Confidence, r.Notes)
	}

	return result{
		outcome: matchOutcome(opts.dryRun, len(res.Claimed()), len(res.Review)),
		details: fmt.Sprintf("from=%s to=%s auto=%d review=%d unmatched=%d stored=%d dry_run=%t",
			from.Format(time.RFC3339), to.Format(time.RFC3339), len(res.Auto), len(res.Review), len(res.Unmatched), stored, opts.dryRun),
	}, nil
}
