package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tablemesh/tablemesh-engine/pkg/services"
)

func newValidateCmd() *cobra.Command {
	var intentPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a query intent without repairing it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, logger, snap, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			intent, err := readIntent(intentPath)
			if err != nil {
				return err
			}

			result := services.NewIntentValidator(snap, logger).Validate(intent)
			for _, e := range result.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "%s [%s]: %s\n", color.RedString("error"), e.Code, e.Message)
			}
			for _, w := range result.Warnings {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", color.YellowString("warning"), w)
			}
			if result.Valid() {
				fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("intent is structurally valid"))
				return nil
			}
			return fmt.Errorf("intent has %d validation error(s)", len(result.Errors))
		},
	}

	cmd.Flags().StringVarP(&intentPath, "intent", "i", "-", "path to the intent JSON file, or - for stdin")
	return cmd
}
