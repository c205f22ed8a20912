package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"quiz-attempt-engine/internal/config"
	"quiz-attempt-engine/internal/infra/postgres"
	"quiz-attempt-engine/internal/logging"
	"quiz-attempt-engine/internal/report"
)

// NewExportCmd writes stored attempt results to an xlsx workbook.
func NewExportCmd(configPath *string) *cobra.Command {
	var (
		quizID string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export attempt results to a spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			logger := logging.New(cfg.Env, cfg.Log.Level)

			db := postgres.OpenBun(cfg.Postgres.URL)
			defer db.Close()

			results, err := postgres.NewResultStore(db).List(cmd.Context(), quizID)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := report.Export(f, results); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			logger.Info("results exported", "file", out, "attempts", len(results), "quiz_id", quizID)
			return nil
		},
	}
	cmd.Flags().StringVar(&quizID, "quiz", "", "only export attempts of this quiz")
	cmd.Flags().StringVarP(&out, "out", "o", "results.xlsx", "output file")
	return cmd
}
