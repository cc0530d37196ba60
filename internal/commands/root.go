// Package commands is the vra command line: reconcile, backfill and
// issue-proofs orchestrators plus the stage and operator commands around them.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rivalapex/vra/internal/buildinfo"
	"github.com/rivalapex/vra/internal/config"
	"github.com/rivalapex/vra/internal/id"
	"github.com/rivalapex/vra/internal/logger"
	"github.com/rivalapex/vra/internal/runlog"
	"github.com/rivalapex/vra/internal/stage"
	"github.com/rivalapex/vra/internal/store"
	"github.com/rivalapex/vra/internal/tracing"
)

// App holds the process streams and collaborators shared by every command.
type App struct {
	Stdout io.Writer
	Stderr io.Writer
	// Runner runs backfill stages. Nil re-executes the running binary.
	Runner stage.Runner

	configPath string
	dbPath     string
	outcome    Outcome
	now        func() time.Time
}

// Execute runs the CLI with args and returns the outcome. It never exits.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) Outcome {
	app := &App{Stdout: stdout, Stderr: stderr}
	return app.Execute(ctx, args)
}

// Execute runs one command line against a.
func (a *App) Execute(ctx context.Context, args []string) Outcome {
	if a.now == nil {
		a.now = time.Now
	}
	a.outcome = OK
	root := a.NewRootCommand()
	root.SetArgs(args)
	root.SetOut(a.Stdout)
	root.SetErr(a.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(a.Stderr, "error: %v\n", err)
		return Error
	}
	return a.outcome
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func (a *App) NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "vra",
		Short:   "Verified revenue attestation: match, reconcile and prove ad network payouts",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ./"+config.DefaultPath+" when present)")
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "store DSN, overrides store.dsn")

	rootCmd.AddCommand(
		a.newReconcileCommand(),
		a.newBackfillCommand(),
		a.newIssueProofsCommand(),
		a.newVerifyProofsCommand(),
		a.newMatchCommand(),
		a.newImportCommand(),
		a.newExportCommand(),
		a.newConfigCommand(),
	)
	return rootCmd
}

// runEnv is what a command body gets once config and logging are set up.
type runEnv struct {
	cfg   *config.Config
	log   *logrus.Entry
	runID string
	app   *App
}

// openStore connects using --db when given, else the configured DSN.
func (e *runEnv) openStore(ctx context.Context) (*store.Store, error) {
	dsn := e.cfg.Store.DSN
	if e.app.dbPath != "" {
		dsn = e.app.dbPath
	}
	st, err := store.Open(ctx, e.cfg.Store.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return st, nil
}

func (e *runEnv) printf(format string, args ...any) {
	fmt.Fprintf(e.app.Stdout, format, args...)
}

// result is what a command body reports back.
type result struct {
	outcome Outcome
	details string
}

type runFunc func(ctx context.Context, env *runEnv) (result, error)

// run loads config, sets up logging, runs fn, records the outcome and
// appends the run log. Errors are reported here, never returned to cobra.
func (a *App) run(cmd *cobra.Command, tool string, fn runFunc) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := a.loadConfig()
	if err != nil {
		fmt.Fprintf(a.Stderr, "error: %v\n", err)
		a.outcome = Error
		return nil
	}

	env := &runEnv{cfg: cfg, runID: id.NewRunID(), app: a}
	env.log = logger.New(a.Stderr, cfg.Log.Level, cfg.Log.Format).WithFields(logrus.Fields{"tool": tool, "run_id": env.runID})

	shutdown, err := tracing.Setup(ctx, cfg.Tracing, buildinfo.Version)
	if err != nil {
		env.log.WithError(err).Warn("tracing disabled")
		shutdown = func(context.Context) error { return nil }
	}
	ctx, span := tracing.Start(ctx, "vra "+tool, attribute.String("vra.run_id", env.runID))
	if traceID := tracing.TraceID(ctx); traceID != "" {
		env.log = env.log.WithField("trace_id", traceID)
	}
	ctx = logger.ToContext(ctx, env.log)

	res, err := fn(ctx, env)
	if err != nil {
		res = result{outcome: classify(err), details: err.Error()}
		env.log.WithError(err).WithField("outcome", res.outcome.String()).Error("run failed")
		fmt.Fprintf(a.Stderr, "error: %v\n", err)
	} else {
		env.log.WithFields(logrus.Fields{"outcome": res.outcome.String(), "details": res.details}).Info("run finished")
	}
	a.outcome = res.outcome

	span.SetAttributes(
		attribute.String("vra.outcome", res.outcome.String()),
		attribute.Int("vra.exit_code", res.outcome.ExitCode()),
	)
	tracing.End(span, err)
	if err := shutdown(context.WithoutCancel(ctx)); err != nil {
		env.log.WithError(err).Warn("failed to flush spans")
	}

	entry := runlog.Entry{
		Timestamp: a.now().UTC(),
		RunID:     env.runID,
		Tool:      tool,
		Outcome:   res.outcome.String(),
		ExitCode:  res.outcome.ExitCode(),
		Details:   res.details,
	}
	if err := runlog.Append(cfg.Backfill.RunLogPath, []runlog.Entry{entry}); err != nil {
		env.log.WithError(err).WithField("path", cfg.Backfill.RunLogPath).Warn("failed to write run log")
	}
	return nil
}

// loadConfig reads --config, or ./vra.yaml when present, or defaults.
func (a *App) loadConfig() (*config.Config, error) {
	path := a.configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			path = config.DefaultPath
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("checking %s: %w", config.DefaultPath, err)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func joinDetails(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
