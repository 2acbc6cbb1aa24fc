package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/santelle/santelle/internal/cli/formatter"
)

const defaultHistoryLimit = 10

func newHistoryCmd(app *App) *cobra.Command {
	limit := positiveInt(defaultHistoryLimit)
	var details bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past tests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := app.Client.History(cmd.Context(), int(limit))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, formatter.RenderBox("History", formatter.FormatHistory(entries, app.now())))
			fmt.Fprintln(out)
			if !details {
				return nil
			}
			for _, e := range entries {
				if e.Log == nil {
					continue
				}
				fmt.Fprintf(out, "\n%s %s\n", formatter.Header("Results"), formatter.TruncID(e.Session.ID))
				fmt.Fprint(out, formatter.FormatResults(e.Log))
			}
			return nil
		},
	}

	cmd.Flags().Var(&limit, "limit", "Maximum number of tests to list")
	cmd.Flags().BoolVar(&details, "details", false, "Show the readings of each test")

	return cmd
}
