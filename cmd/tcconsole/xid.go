package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/tcconsole/internal/xid"
)

func newXIDCommand(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "xid <transaction-id>",
		Short: "Print the XID of a transaction id under the configured coordinator address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.config()
			if err := cfg.Validate(); err != nil {
				return err
			}
			id, err := xid.ParseTransactionID(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), xid.Generator{Address: cfg.XIDAddress}.Generate(id))
			return err
		},
	}
}
