package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/spec-kit/locate-service/internal/app"
	"github.com/spec-kit/locate-service/internal/service"
)

var sweepCmd = &cobra.Command{
	Use:       "sweep [expiry|alerts|escalation]...",
	Short:     "Run sweeps now",
	Long:      `Run the named sweeps once under their leases. With no arguments the expiry, alert and escalation sweeps run in that order.`,
	ValidArgs: []string{app.SweepExpiry, app.SweepAlerts, app.SweepEscalation},
	Args:      cobra.OnlyValidArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := args
		if len(names) == 0 {
			names = []string{app.SweepExpiry, app.SweepAlerts, app.SweepEscalation}
		}

		a, logger, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck
		defer a.Close()

		out := cmd.OutOrStdout()
		for _, name := range names {
			report, ran, err := a.RunSweep(cmd.Context(), name)
			if err != nil {
				return fmt.Errorf("sweep %s: %w", name, err)
			}
			if !ran {
				fmt.Fprintf(out, "%s: skipped, another instance holds the lease\n", name)
				continue
			}
			printReport(out, report)
		}
		return nil
	},
}

func printReport(out io.Writer, r service.SweepReport) {
	fmt.Fprintf(out, "%s: scanned=%d changed=%d emitted=%d suppressed=%d deferred=%d redelivered=%d escalated=%d superseded=%d flagged=%d failed=%d\n",
		r.Sweep, r.Scanned, r.Changed, r.Emitted, r.Suppressed, r.Deferred,
		r.Redelivered, r.Escalated, r.Superseded, r.Flagged, r.Failed)
}
