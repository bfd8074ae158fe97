package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"classquiz-service/internal/app"
	"classquiz-service/internal/config"
	pgstore "classquiz-service/internal/infra/postgres"
)

// NewRescoreCmd re-runs the score recalculation for a quiz, or for one
// submission left behind by a partial failure.
func NewRescoreCmd(configPath *string) *cobra.Command {
	var (
		classID      string
		submissionID string
		deletedIndex int
	)

	cmd := &cobra.Command{
		Use:   "rescore <quiz-id>",
		Short: "Re-score stored submissions against the current question bank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runRescore(cmd.Context(), cfg, args[0], classID, submissionID, deletedIndex)
		},
	}

	cmd.Flags().StringVar(&classID, "class", "", "limit the run to one class")
	cmd.Flags().StringVar(&submissionID, "submission", "", "re-drive a single submission")
	cmd.Flags().IntVar(&deletedIndex, "deleted-index", app.NoDeletion, "bank index removed by the triggering edit, if any")
	return cmd
}

func runRescore(ctx context.Context, cfg config.Config, quizID, classID, submissionID string, deletedIndex int) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	cascade := app.NewCascade(pgstore.NewStore(pool))

	if submissionID != "" {
		return cascade.RunForStudent(ctx, quizID, submissionID, deletedIndex)
	}

	report, err := cascade.Run(ctx, quizID, classID, deletedIndex)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
