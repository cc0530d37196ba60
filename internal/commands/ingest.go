package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rivalapex/vra/internal/analytics"
	"github.com/rivalapex/vra/internal/ingest"
)

func (a *App) newImportCommand() *cobra.Command {
	reg := ingest.DefaultRegistry()
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Load normalized CSV files into the store",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return fmt.Errorf("unknown import kind %q (want one of %v)", args[0], reg.Kinds())
		},
	}
	for _, kind := range reg.Kinds() {
		importCmd.AddCommand(a.newImportKindCommand(reg.Get(kind)))
	}
	return importCmd
}

func (a *App) newImportKindCommand(imp ingest.Importer) *cobra.Command {
	var network string

	cmd := &cobra.Command{
		Use:   imp.Kind() + " <file.csv>",
		Short: fmt.Sprintf("Import %s rows (header: %s)", imp.Kind(), imp.Header()),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "import-"+imp.Kind(), func(ctx context.Context, env *runEnv) (result, error) {
				return runImport(ctx, env, imp, args[0], network)
			})
		},
	}
	cmd.Flags().StringVar(&network, "network", "", "network for rows whose network column is empty")
	return cmd
}

func runImport(ctx context.Context, env *runEnv, imp ingest.Importer, path, network string) (result, error) {
	f, err := os.Open(path)
	if err != nil {
		return result{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	st, err := env.openStore(ctx)
	if err != nil {
		return result{}, err
	}
	defer st.Close()

	var sink ingest.Sink = st
	if dsn := env.cfg.Analytics.ClickHouseDSN; dsn != "" && imp.Kind() == "signals" {
		ch, err := analytics.Open(ctx, dsn)
		if err != nil {
			return result{}, fmt.Errorf("opening analytics: %w", err)
		}
		defer ch.Close()
		sink = signalSink{Store: st, ch: ch}
	}

	rep, err := imp.Import(ctx, f, sink, ingest.Options{
		Network:         network,
		AllowedNetworks: env.cfg.Import.AllowedNetworks,
	})
	if err != nil {
		return result{}, fmt.Errorf("importing %s: %w", path, err)
	}

	for _, w := range rep.Warnings {
		fmt.Fprintf(env.app.Stderr, "warning: %s\n", w)
		env.log.WithFields(logrus.Fields{"file": path, "reason": w}).Warn("row skipped")
	}
	env.printf("kind=%s rows=%d stored=%d skipped=%d\n", rep.Kind, rep.Rows, rep.Stored, len(rep.Warnings))

	return result{
		outcome: importOutcome(len(rep.Warnings)),
		details: fmt.Sprintf("file=%s rows=%d stored=%d skipped=%d", path, rep.Rows, rep.Stored, len(rep.Warnings)),
	}, nil
}
