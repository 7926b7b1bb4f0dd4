package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/tcconsole/internal/version"
)

func newVersionCommand() *cobra.Command {
	var semver bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the tcconsole version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if semver {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Semver())
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.Module(), version.Current())
			return err
		},
	}
	cmd.Flags().BoolVar(&semver, "semver", false, "print only the semantic version")
	return cmd
}
