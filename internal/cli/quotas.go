package cli

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ajiwo/admission/internal/config"
	pgquotas "github.com/ajiwo/admission/quotas/postgres"
)

func newQuotasCmd(load func() (config.Config, error)) *cobra.Command {
	var (
		dsn         string
		service     string
		createTable bool
	)

	cmd := &cobra.Command{
		Use:   "quotas",
		Short: "List per-client quota overrides stored in Postgres",
		Long: `Prints every row of the configuration table as
  client_id (service_name): rate_limit, window_size

window_size is in minutes.`,
		Example: `  admissiond quotas --dsn postgres://localhost/rate_limiter
  admissiond quotas --service api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("dsn") {
				dsn = cfg.Quotas.DSN
			}
			if !cmd.Flags().Changed("service") {
				service = cfg.Quotas.Service
			}
			if dsn == "" {
				return errors.New("no quota database: set --dsn or ADMISSION_QUOTA_DSN")
			}

			ctx := cmd.Context()
			pool, err := pgxpool.New(ctx, dsn)
			if err != nil {
				return fmt.Errorf("failed to connect to quota database: %w", err)
			}
			defer pool.Close()

			if createTable {
				if err := pgquotas.EnsureSchema(ctx, pool); err != nil {
					return err
				}
			}

			rows, err := pgquotas.List(ctx, pool, service)
			if err != nil {
				return err
			}
			for _, row := range rows {
				fmt.Fprintln(cmd.OutOrStdout(), row.String())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "postgres connection string (ADMISSION_QUOTA_DSN)")
	cmd.Flags().StringVar(&service, "service", "", "only list this service_name (ADMISSION_SERVICE)")
	cmd.Flags().BoolVar(&createTable, "init", false, "create the configuration table if it does not exist")

	return cmd
}
