package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun/migrate"

	"quiz-attempt-engine/internal/app"
	"quiz-attempt-engine/internal/domain"
	"quiz-attempt-engine/internal/infra/postgres"
	pgmigrations "quiz-attempt-engine/internal/infra/postgres/migrations"
	infraredis "quiz-attempt-engine/internal/infra/redis"
)

func TestAttemptSuspendResumeSubmitEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := postgres.NewQuizLoader(pool)
	if err := loader.SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	db := postgres.OpenBun(pgURL)
	defer db.Close()
	results := postgres.NewResultStore(db)

	newService := func(owner string) *app.AttemptService {
		return app.NewAttemptService(app.Dependencies{
			Attempts:    infraredis.NewAttemptStore(redisClient, 5*time.Minute, owner),
			Quizzes:     infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute),
			Snapshots:   infraredis.NewSnapshotStore(redisClient, time.Hour),
			Submissions: results,
		}, app.Options{})
	}

	first := newService("node-a")
	view, err := first.Start(ctx, "quiz-1", "u1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := first.SetDraft(ctx, view.AttemptID, domain.AnswerRecord{QuestionID: "q1", SelectedOptions: []string{"o2"}}); err != nil {
		t.Fatalf("draft: %v", err)
	}
	if _, err := first.Next(ctx, view.AttemptID); err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := first.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// A second instance picks the attempt up from the Redis snapshot.
	second := newService("node-b")
	defer func() { _ = second.Shutdown(ctx) }()
	resumed, err := second.Resume(ctx, view.AttemptID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.CurrentIndex != 1 || !resumed.Questions[0].Locked {
		t.Fatalf("expected q1 locked and index 1, got %+v", resumed)
	}

	sub, err := second.Submit(ctx, view.AttemptID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Score.TotalScore != 1 || sub.Score.MaxScore != 3 {
		t.Fatalf("unexpected score %+v", sub.Score)
	}

	stored, err := results.List(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(stored) != 1 || stored[0].AttemptID != view.AttemptID || stored[0].Score.TotalScore != 1 {
		t.Fatalf("unexpected stored results %+v", stored)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	db := postgres.OpenBun(dsn)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:              "quiz-1",
		TimingMode:      domain.TimingTotal,
		DurationMinutes: 10,
		Questions: []domain.Question{
			{
				ID:     "q1",
				Type:   domain.SingleSelect,
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3", Correct: false},
					{ID: "o2", Text: "4", Correct: true},
					{ID: "o3", Text: "5", Correct: false},
				},
				Points: 1,
			},
			{
				ID:     "q2",
				Type:   domain.MultiSelect,
				Prompt: "Which are prime?",
				Options: []domain.Option{
					{ID: "o1", Text: "2", Correct: true},
					{ID: "o2", Text: "3", Correct: true},
					{ID: "o3", Text: "4", Correct: false},
				},
				Points: 2,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
