package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rivalapex/vra/internal/export"
)

func (a *App) newExportCommand() *cobra.Command {
	var window windowFlags
	var out string

	cmd := &cobra.Command{
		Use:   "export-evidence",
		Short: "Write a window's delta evidence as CSV and Parquet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "export-evidence", func(ctx context.Context, env *runEnv) (result, error) {
				from, to, err := window.parse()
				if err != nil {
					return result{}, err
				}
				if !from.Before(to) {
					return result{}, fmt.Errorf("--from %s must be before --to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
				}

				st, err := env.openStore(ctx)
				if err != nil {
					return result{}, err
				}
				defer st.Close()

				deltas, err := st.Deltas(ctx, from, to)
				if err != nil {
					return result{}, err
				}
				files, err := export.Write(out, from, to, deltas)
				if err != nil {
					return result{}, err
				}
				env.printf("rows=%d\n%s\n%s\n", files.Rows, files.CSV, files.Parquet)
				return result{outcome: OK, details: fmt.Sprintf("rows=%d csv=%s", files.Rows, files.CSV)}, nil
			})
		},
	}

	window.register(cmd.Flags())
	cmd.Flags().StringVar(&out, "out", "exports", "output directory")

	return cmd
}
