package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List alerts the next sweep would emit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, logger, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck
		defer a.Close()

		due, err := a.Alerts.ListDueAlerts(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list due alerts: %w", err)
		}
		if len(due) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No alerts due.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PRIORITY\tTYPE\tRULE\tDEDUP KEY")
		for _, d := range due {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Rule.Priority, d.Rule.AlertType, d.Rule.Name, d.DedupKey)
		}
		return w.Flush()
	},
}
