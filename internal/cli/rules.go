package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/locate-service/internal/calendar"
	"github.com/spec-kit/locate-service/internal/config"
	"github.com/spec-kit/locate-service/internal/deadline"
	"github.com/spec-kit/locate-service/internal/domain"
)

var validateAt string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the engine file",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [engine-file]",
	Short: "Validate jurisdictions, holidays and alert rules",
	Long: `Parse the engine file, validate the alert rule table and compute sample
deadlines for every jurisdiction and ticket type.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Engine.File
		if len(args) == 1 {
			path = args[0]
		}
		at := time.Now()
		if validateAt != "" {
			parsed, err := time.Parse(time.RFC3339, validateAt)
			if err != nil {
				return fmt.Errorf("invalid --at: %w", err)
			}
			at = parsed
		}

		engine, err := config.LoadEngine(path)
		if err != nil {
			return err
		}
		return validateEngine(cmd.Context(), cmd.OutOrStdout(), engine, at)
	},
}

func init() {
	rulesValidateCmd.Flags().StringVar(&validateAt, "at", "", "RFC 3339 creation instant for sample deadlines (default now)")
	rulesCmd.AddCommand(rulesValidateCmd)
}

func validateEngine(ctx context.Context, out io.Writer, engine *config.Engine, at time.Time) error {
	ruleSet, err := engine.RuleSet()
	if err != nil {
		return fmt.Errorf("alert rules: %w", err)
	}
	jurisdictions, err := engine.CalendarJurisdictions()
	if err != nil {
		return err
	}
	holidays, err := engine.HolidaySource()
	if err != nil {
		return err
	}
	rules, err := engine.DeadlineRules()
	if err != nil {
		return err
	}
	registry, err := calendar.NewRegistry(jurisdictions, holidays, len(jurisdictions)*4)
	if err != nil {
		return err
	}
	calc := deadline.NewCalculator(registry, rules)

	fmt.Fprintf(out, "Engine version %d: %d jurisdiction(s), %d alert rule(s).\n",
		engine.Version, len(jurisdictions), len(ruleSet.Rules()))
	for _, j := range jurisdictions {
		cal, err := registry.Get(j.Code)
		if err != nil {
			return err
		}
		for _, t := range []domain.TicketType{domain.TicketTypeStandard, domain.TicketTypeEmergency, domain.TicketTypeLargeProject} {
			d, err := calc.Compute(ctx, j.Code, t, at)
			if err != nil {
				return fmt.Errorf("jurisdiction %s %s: %w", j.Code, t, err)
			}
			fmt.Fprintf(out, "  %-4s %-14s legal dig %s  expires %s\n", j.Code, t,
				d.LegalDigDate.In(cal.Location()).Format("2006-01-02 15:04 MST"),
				d.ExpiresAt.In(cal.Location()).Format("2006-01-02 15:04 MST"))
		}
	}
	fmt.Fprintln(out, "Engine file is valid.")
	return nil
}
