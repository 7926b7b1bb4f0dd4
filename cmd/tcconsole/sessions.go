package main

import (
	"github.com/spf13/cobra"

	"pkt.systems/tcconsole"
	"pkt.systems/tcconsole/api"
)

func newSessionsCommand(app *cli) *cobra.Command {
	var (
		param  api.GlobalSessionParam
		status int
	)
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List global transaction sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("status") {
				param.Status = &status
			}
			out, err := app.printer(cmd)
			if err != nil {
				return err
			}
			return app.withConsole(cmd.Context(), func(console *tcconsole.Console) error {
				page, err := console.Sessions(cmd.Context(), param)
				if err != nil {
					return err
				}
				return out.sessions(page)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&param.XID, "xid", "", "global transaction id")
	flags.IntVar(&status, "status", 0, "global status code filter")
	flags.BoolVar(&param.WithBranch, "with-branch", false, "include branch sessions")
	flags.IntVar(&param.PageNum, "page-num", 1, "page number, starting at 1")
	flags.IntVar(&param.PageSize, "page-size", 10, "page size")
	flags.StringVar(&param.ApplicationID, "application-id", "", "application id filter (not supported by key-value stores)")
	flags.StringVar(&param.TransactionName, "transaction-name", "", "transaction name filter (not supported by key-value stores)")
	flags.Int64Var(&param.TimeStart, "time-start", 0, "begin time lower bound in epoch millis (not supported by key-value stores)")
	flags.Int64Var(&param.TimeEnd, "time-end", 0, "begin time upper bound in epoch millis (not supported by key-value stores)")
	flags.StringVar(&param.Cursor, "cursor", "", "resume from the next cursor of a previous page")
	return cmd
}
