package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rivalapex/vra/internal/config"
)

func (a *App) newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	configCmd.AddCommand(a.newConfigInitCommand())
	return configCmd
}

func (a *App) newConfigInitCommand() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default " + config.DefaultPath,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath
			if len(args) > 0 {
				path = args[0]
			}
			if err := runConfigInit(path, overwrite); err != nil {
				fmt.Fprintf(a.Stderr, "error: %v\n", err)
				a.outcome = Error
				return nil
			}
			fmt.Fprintf(a.Stdout, "Wrote %s\n", path)
			return nil
		},
	}
	boolVar(cmd.Flags(), &overwrite, "overwrite", "replace an existing file")

	return cmd
}

func runConfigInit(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("%s already exists (pass --overwrite true to replace it)", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	if err := config.Save(path, config.Default()); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
