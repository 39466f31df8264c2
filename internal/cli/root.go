// Package cli implements the admissiond command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/ajiwo/admission/internal/config"
)

// NewRootCmd creates the root admissiond command.
func NewRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:   "admissiond",
		Short: "Shared-counter HTTP admission gate",
		Long: `admissiond counts requests per client in a shared store and rejects them
with 429 Too Many Requests once the client's quota for the current window is
used up. Any number of instances sharing a store enforce one global quota.

Settings come from ADMISSION_* environment variables, optionally loaded from
a .env file, and can be overridden by flags.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "env files to load before reading the environment (default .env)")

	load := func() (config.Config, error) {
		return config.Load(envFiles...)
	}

	root.AddCommand(
		newServeCmd(load),
		newQuotasCmd(load),
	)

	return root
}
