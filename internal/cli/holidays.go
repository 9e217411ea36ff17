package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/locate-service/internal/calendar"
	"github.com/spec-kit/locate-service/internal/config"
	"github.com/spec-kit/locate-service/internal/observability"
	"github.com/spec-kit/locate-service/internal/persistence"
	"github.com/spec-kit/locate-service/internal/repository"
)

var holidaysCmd = &cobra.Command{
	Use:   "holidays",
	Short: "Manage jurisdiction holidays",
}

var holidaysSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy the engine file holidays into the database",
	Long: `Upsert every holiday listed in the engine file into the holidays table.
Holidays already in the database keep priority over the file at runtime.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Postgres.DSN == "" {
			return errors.New("POSTGRES_DSN is required")
		}
		engine, err := config.LoadEngine(cfg.Engine.File)
		if err != nil {
			return err
		}

		logger, err := observability.NewLogger(cfg.Logger)
		if err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		defer logger.Sync() //nolint:errcheck

		pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
		if err != nil {
			return fmt.Errorf("failed to connect postgres: %w", err)
		}
		defer pg.Close()
		repo := repository.NewHolidayRepository(pg.PoolHandle())

		count := 0
		for _, j := range engine.Jurisdictions {
			for _, h := range j.Holidays {
				date, err := calendar.ParseDate(h.Date)
				if err != nil {
					return fmt.Errorf("jurisdiction %s holiday %q: %w", j.Code, h.Date, err)
				}
				if err := repo.Upsert(cmd.Context(), j.Code, date, h.Name); err != nil {
					return fmt.Errorf("upsert %s %s: %w", j.Code, h.Date, err)
				}
				count++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Synced %d holiday(s) for %d jurisdiction(s).\n", count, len(engine.Jurisdictions))
		return nil
	},
}

func init() {
	holidaysCmd.AddCommand(holidaysSyncCmd)
}
