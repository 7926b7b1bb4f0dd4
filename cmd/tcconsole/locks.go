package main

import (
	"github.com/spf13/cobra"

	"pkt.systems/tcconsole"
	"pkt.systems/tcconsole/api"
)

func newLocksCommand(app *cli) *cobra.Command {
	var param api.GlobalLockParam
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "List global row locks",
		Long: `List global row locks, one page at a time.

--xid or --transaction-id resolve a single lock directly. Without them the
lock keyspace is scanned; pass the printed next cursor back via --cursor to
continue where the previous page ended.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := app.printer(cmd)
			if err != nil {
				return err
			}
			return app.withConsole(cmd.Context(), func(console *tcconsole.Console) error {
				page, err := console.Locks(cmd.Context(), param)
				if err != nil {
					return err
				}
				return out.locks(page)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&param.XID, "xid", "", "global transaction id")
	flags.StringVar(&param.TransactionID, "transaction-id", "", "numeric transaction id")
	flags.StringVar(&param.TableName, "table-name", "", "table name filter (not supported by key-value stores)")
	flags.StringVar(&param.BranchID, "branch-id", "", "branch id filter (not supported by key-value stores)")
	flags.IntVar(&param.PageNum, "page-num", 1, "page number, starting at 1")
	flags.IntVar(&param.PageSize, "page-size", 10, "page size")
	flags.StringVar(&param.Cursor, "cursor", "", "resume from the next cursor of a previous page")
	return cmd
}
