package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var (
	//go:embed 2024112201_create_quizzes.up.sql
	createQuizzesSQL string
	//go:embed 2024112202_create_attempt_results.up.sql
	createAttemptResultsSQL string
)

var Migrations = migrate.NewMigrations()

func init() {
	register("2024112201_create_quizzes", createQuizzesSQL, `DROP TABLE IF EXISTS quizzes`)
	register("2024112202_create_attempt_results", createAttemptResultsSQL, `DROP TABLE IF EXISTS attempt_results`)
}

func register(name, up, down string) {
	Migrations.Add(migrate.Migration{
		Name: name,
		Up: func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, up)
			return err
		},
		Down: func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, down)
			return err
		},
	})
}
