package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raine/telegram-fastkale-bot/internal/harness"
)

func logCmd(a *app) *cobra.Command {
	var (
		limit    int
		verbose  bool
		clearLog bool
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "List recent calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearLog {
				if err := a.store.ClearCalls(); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Call log cleared.")
				return nil
			}

			calls, err := a.store.GetRecentCalls(limit)
			if err != nil {
				return err
			}
			if !verbose {
				harness.RenderLog(a.out, calls)
				return nil
			}
			for _, c := range calls {
				harness.Render(a.out, c)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of calls to show")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show headers, payloads and responses")
	cmd.Flags().BoolVar(&clearLog, "clear", false, "empty the call log")
	return cmd
}
