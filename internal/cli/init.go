package cli

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/tradeledger/internal/setup"
)

func newInitCmd() *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a config file with an interactive wizard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(output); err == nil && !force {
				return errors.Errorf("%s already exists, pass --force to overwrite", output)
			}
			return setup.Run(cmd.OutOrStdout(), output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "config.yaml", "config file to write")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
