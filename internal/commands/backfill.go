package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rivalapex/vra/internal/checkpoint"
	"github.com/rivalapex/vra/internal/config"
	"github.com/rivalapex/vra/internal/logger"
	"github.com/rivalapex/vra/internal/reconcile"
	"github.com/rivalapex/vra/internal/stage"
	"github.com/rivalapex/vra/internal/tracing"
)

type backfillOptions struct {
	window     windowFlags
	step       time.Duration
	limit      int
	limitSet   bool
	checkpoint string
	only       string
	dryRun     bool
	force      bool
	yes        bool
}

func (a *App) newBackfillCommand() *cobra.Command {
	var opts backfillOptions

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Run the match and reconcile stages over consecutive windows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.limitSet = cmd.Flags().Changed("limit")
			return a.run(cmd, "backfill", func(ctx context.Context, env *runEnv) (result, error) {
				return a.runBackfill(ctx, env, opts)
			})
		},
	}

	opts.window.register(cmd.Flags())
	cmd.Flags().DurationVar(&opts.step, "window", 0, "sub-window length (default backfill.window_hours)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "process at most this many windows")
	cmd.Flags().StringVar(&opts.checkpoint, "checkpoint", "", "checkpoint file (default backfill.checkpoint_path)")
	cmd.Flags().StringVar(&opts.only, "step", "", "run only this stage (match or reconcile)")
	boolVar(cmd.Flags(), &opts.dryRun, "dry-run", "run stages in dry-run mode and leave the checkpoint alone")
	boolVar(cmd.Flags(), &opts.force, "force", "reprocess windows already in the checkpoint (needs --yes)")
	boolVar(cmd.Flags(), &opts.yes, "yes", "confirm --force")

	return cmd
}

// validateBackfill checks the flags before any stage or checkpoint I/O.
func validateBackfill(opts backfillOptions, maxSpan time.Duration) (from, to time.Time, err error) {
	if opts.force && !opts.yes {
		return from, to, errors.New("--force requires --yes")
	}
	if opts.limitSet && opts.limit <= 0 {
		return from, to, fmt.Errorf("--limit must be positive, got %d", opts.limit)
	}
	if opts.only != "" && !stage.Valid(opts.only) {
		return from, to, fmt.Errorf("unknown --step %q (want one of %v)", opts.only, stage.All)
	}
	if opts.step <= 0 || opts.step > maxSpan {
		return from, to, fmt.Errorf("--window %s must be positive and at most %s", opts.step, maxSpan)
	}
	if from, to, err = opts.window.parse(); err != nil {
		return from, to, err
	}
	if !from.Before(to) {
		return from, to, fmt.Errorf("%w: from %s, to %s", reconcile.ErrInvalidWindow,
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return from, to, nil
}

func (a *App) runBackfill(ctx context.Context, env *runEnv, opts backfillOptions) (result, error) {
	maxSpan := time.Duration(env.cfg.Reconcile.MaxWindowHours) * time.Hour
	if opts.step == 0 {
		opts.step = time.Duration(env.cfg.Backfill.WindowHours) * time.Hour
	}
	from, to, err := validateBackfill(opts, maxSpan)
	if err != nil {
		return result{}, err
	}

	stages := stage.All
	if opts.only != "" {
		stages = []string{opts.only}
	}
	cp, closeCP, err := openCheckpoint(ctx, env.cfg.Backfill, opts.checkpoint)
	if err != nil {
		return result{}, err
	}
	defer closeCP()

	unlock, err := cp.Lock(ctx)
	if err != nil {
		return result{}, err
	}
	defer func() {
		if err := unlock(); err != nil {
			env.log.WithError(err).Warn("failed to release checkpoint lock")
		}
	}()

	state, err := cp.Load(ctx)
	if err != nil {
		return result{}, err
	}

	runner, err := a.stageRunner(env)
	if err != nil {
		return result{}, err
	}

	outcome := OK
	processed, skipped := 0, 0
	for _, w := range reconcile.Split(from, to, opts.step) {
		if opts.limitSet && processed >= opts.limit {
			break
		}
		if !opts.force && state.Done(w.From, w.To) {
			skipped++
			continue
		}
		processed++

		log := logger.FromContext(ctx).WithFields(logrus.Fields{
			"from": w.From.Format(time.RFC3339),
			"to":   w.To.Format(time.RFC3339),
		})
		params := stage.Params{From: w.From, To: w.To, DryRun: opts.dryRun, ConfigPath: a.configPath, DBPath: a.dbPath}
		for _, name := range stages {
			stageCtx, span := tracing.Start(ctx, "backfill.stage",
				attribute.String("vra.stage", name),
				attribute.String("vra.window_from", w.From.Format(time.RFC3339)),
			)
			code, err := runner.Run(stageCtx, stage.Args(name, params))
			span.SetAttributes(attribute.Int("vra.exit_code", code))
			tracing.End(span, err)
			if err != nil {
				return result{}, fmt.Errorf("window %s stage %s: %w", w.From.Format(time.RFC3339), name, err)
			}
			switch stageOutcome(code) {
			case OK:
			case Warnings:
				outcome = Warnings
			default:
				return result{}, fmt.Errorf("window %s stage %s exited %d", w.From.Format(time.RFC3339), name, code)
			}
			log.WithFields(logrus.Fields{"stage": name, "exit": code}).Info("stage finished")
		}

		// Only a full, real pass marks the window complete.
		if opts.dryRun || opts.only != "" {
			continue
		}
		if err := cp.MarkDone(ctx, w.From, w.To, env.runID); err != nil {
			return result{}, err
		}
	}

	env.printf("windows processed=%d skipped=%d checkpoint=%s\n", processed, skipped, cp.Location())
	return result{
		outcome: outcome,
		details: joinDetails(
			fmt.Sprintf("from=%s to=%s processed=%d skipped=%d", from.Format(time.RFC3339), to.Format(time.RFC3339), processed, skipped),
			stepDetail(opts.only),
		),
	}, nil
}

// redisCheckpointPrefix namespaces the backfill keys in a shared Redis.
const redisCheckpointPrefix = "vra:backfill"

// openCheckpoint picks the checkpoint backend. --checkpoint always names a
// file; otherwise backfill.checkpoint_redis_url wins over checkpoint_path.
func openCheckpoint(ctx context.Context, cfg config.BackfillConfig, path string) (checkpoint.Backend, func() error, error) {
	if path == "" && cfg.CheckpointRedisURL != "" {
		r, err := checkpoint.OpenRedis(ctx, cfg.CheckpointRedisURL, redisCheckpointPrefix)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	}
	if path == "" {
		path = cfg.CheckpointPath
	}
	return checkpoint.New(path), func() error { return nil }, nil
}

func (a *App) stageRunner(env *runEnv) (stage.Runner, error) {
	r := a.Runner
	if r == nil {
		self, err := stage.Self(a.Stdout, a.Stderr)
		if err != nil {
			return nil, err
		}
		r = self
	}
	return stage.Throttle(r, env.cfg.Backfill.StagesPerSec), nil
}

func stepDetail(only string) string {
	if only == "" {
		return ""
	}
	return "step=" + only
}
