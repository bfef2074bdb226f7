package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tablemesh/tablemesh-engine/pkg/database"
	"github.com/tablemesh/tablemesh-engine/pkg/models"
	"github.com/tablemesh/tablemesh-engine/pkg/repositories"
	"github.com/tablemesh/tablemesh-engine/pkg/services"
)

func newResolveCmd() *cobra.Command {
	var (
		intentPath string
		explain    bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Repair a query intent and emit SQL",
		Long:  "Reads a JSON query intent, repairs it against the metadata snapshot, and prints the generated SQL with its confidence verdict.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, snap, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			intent, err := readIntent(intentPath)
			if err != nil {
				return err
			}

			ctx := context.Background()
			opts := services.ResolverOptions{
				AskTimeout: time.Duration(cfg.Learner.AskTimeoutSeconds) * time.Second,
			}

			if cfg.Learner.Persist {
				db, err := database.Connect(ctx, cfg.Database.ConnectionString(), cfg.Database.MaxConnections, logger)
				if err != nil {
					return fmt.Errorf("failed to connect learned-join store: %w", err)
				}
				defer db.Close()

				repo := repositories.NewLearnedJoinRepository(db)
				learned, err := repo.GetAll(ctx)
				if err != nil {
					return fmt.Errorf("failed to load learned joins: %w", err)
				}
				opts.LearnedJoins = learned
				opts.Learner = services.NewDBJoinLearner(repo, nil, logger)
			} else if cfg.Learner.Enabled {
				opts.Learner = services.NewMemoryJoinLearner(nil, logger)
			}

			resolver := services.NewQueryResolver(snap, opts, logger)

			result, err := resolver.Resolve(ctx, intent)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.SQL)
			if explain {
				fmt.Fprintln(cmd.OutOrStdout())
				services.RenderExplainPlan(cmd.OutOrStdout(), result.Plan, result.Fix.Confidence)
			}
			if !result.Validation.Valid() {
				fmt.Fprintln(cmd.OutOrStdout())
				for _, e := range result.Validation.Errors {
					fmt.Fprintf(cmd.OutOrStdout(), "validation error [%s]: %s\n", e.Code, e.Message)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&intentPath, "intent", "i", "-", "path to the intent JSON file, or - for stdin")
	cmd.Flags().BoolVar(&explain, "explain", false, "print the explain plan after the SQL")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func readIntent(path string) (*models.QueryIntent, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read intent: %w", err)
	}

	var intent models.QueryIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("failed to parse intent: %w", err)
	}
	return &intent, nil
}
