package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/voxel-dev/voxnet/internal/config"
	"github.com/voxel-dev/voxnet/internal/errors"
)

func initCmd(g *globalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: `Write voxnet.json (or the path given by --config) with every setting
at its default value.

Examples:
  voxnet init
  voxnet init --config=/etc/voxnet.json --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(g.configPath, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	return cmd
}

func runInit(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.Newf(errors.CategoryCLI, "%s already exists", path).
			WithFile(path).
			WithSuggestion("Pass --force to overwrite it")
	}

	if err := config.New().SaveTo(path); err != nil {
		return err
	}
	success("Wrote %s", path)
	return nil
}
