package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"

	"quiz-attempt-engine/internal/config"
	"quiz-attempt-engine/internal/infra/memory"
	"quiz-attempt-engine/internal/infra/postgres"
	pgmigrations "quiz-attempt-engine/internal/infra/postgres/migrations"
	infraredis "quiz-attempt-engine/internal/infra/redis"
	"quiz-attempt-engine/internal/logging"
)

// NewMigrateCmd applies database migrations and optionally seeds quizzes.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var quizFile string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Env, cfg.Log.Level)
			if err := runMigrationsWithConfig(cmd.Context(), cfg, logger); err != nil {
				return err
			}
			if quizFile != "" {
				return seedQuizzes(cmd.Context(), cfg, quizFile, logger)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&quizFile, "quizzes", "", "YAML quiz file to upsert after migrating")
	return cmd
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := postgres.OpenBun(cfg.Postgres.URL)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		logger.Info("database is up to date")
		return nil
	}
	logger.Info("migrations applied", "group", group.String())
	return nil
}

func seedQuizzes(ctx context.Context, cfg config.Config, path string, logger *slog.Logger) error {
	loader, err := memory.LoadQuizFile(path)
	if err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	store := postgres.NewQuizLoader(pool)
	var cache *infraredis.QuizRepository
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		cache = infraredis.NewQuizRepository(client, store, config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute))
	}

	for _, quiz := range loader.All() {
		if err := store.SaveQuiz(ctx, quiz); err != nil {
			return err
		}
		// running instances would otherwise serve the old copy until it expires
		if cache != nil {
			if err := cache.Invalidate(ctx, quiz.ID); err != nil {
				logger.Warn("quiz cache invalidation failed", "quiz_id", quiz.ID, "error", err)
			}
		}
		logger.Info("quiz seeded", "quiz_id", quiz.ID, "questions", len(quiz.Questions))
	}
	return nil
}
