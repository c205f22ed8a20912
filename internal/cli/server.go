package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quiz-attempt-engine/internal/app"
	"quiz-attempt-engine/internal/config"
	"quiz-attempt-engine/internal/domain"
	"quiz-attempt-engine/internal/infra/events"
	"quiz-attempt-engine/internal/infra/memory"
	"quiz-attempt-engine/internal/infra/postgres"
	infraredis "quiz-attempt-engine/internal/infra/redis"
	"quiz-attempt-engine/internal/logging"
	"quiz-attempt-engine/internal/scoring"
	transport "quiz-attempt-engine/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the attempt server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
	cmd.Flags().StringVar(port, "port", "", "port to listen on (overrides config and PORT)")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Env, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	service, closers, err := buildService(ctx, cfg, logger)
	if err != nil {
		closeAll(closers, logger)
		return err
	}
	defer closeAll(closers, logger)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(service, logger),
		ReadHeaderTimeout: 15 * time.Second,
	}
	shutdownTimeout := config.TTLDuration(cfg.Server.ShutdownTimeout, 10*time.Second)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting attempt server", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Suspend live attempts first so every one of them has a fresh snapshot.
		serviceErr := service.Shutdown(shutdownCtx)
		return errors.Join(server.Shutdown(shutdownCtx), serviceErr)
	})
	return g.Wait()
}

// buildService picks an implementation for every port from the config. Closers are
// returned in the order they should be closed.
func buildService(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.AttemptService, []io.Closer, error) {
	var closers []io.Closer

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, redisClient)
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, closers, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, closerFunc(func() error { pool.Close(); return nil }))
	}

	var loader memory.QuizLoader
	switch {
	case pool != nil:
		loader = postgres.NewQuizLoader(pool)
	case cfg.Quiz.File != "":
		fileLoader, err := memory.LoadQuizFile(cfg.Quiz.File)
		if err != nil {
			return nil, closers, err
		}
		loader = fileLoader
	default:
		logger.Warn("no quiz source configured, serving the built-in sample quiz")
		loader = memory.NewStaticQuizLoader(sampleQuizzes())
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	var attempts app.AttemptRepository
	var snapshots app.SnapshotStore
	if redisClient != nil {
		hostname, _ := os.Hostname()
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
		attempts = infraredis.NewAttemptStore(redisClient, redisTTL, hostname)
		snapshots = infraredis.NewSnapshotStore(redisClient, config.TTLDuration(cfg.Attempt.SnapshotTTL, 24*time.Hour))
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		attempts = memory.NewAttemptStore()
		snapshots = memory.NewSnapshotStore()
	}

	var sink app.SubmissionSink = memory.NewSubmissionSink()
	if cfg.Postgres.URL != "" {
		db := postgres.OpenBun(cfg.Postgres.URL)
		closers = append(closers, db)
		sink = postgres.NewResultStore(db)
	}

	publisher, err := buildPublisher(cfg, logger)
	if err != nil {
		return nil, closers, err
	}
	var eventPort app.EventPublisher
	if publisher != nil {
		// Close the publisher before the stores it may still be flushing to.
		closers = append([]io.Closer{publisher}, closers...)
		eventPort = publisher
	}

	policy := scoring.DefaultPolicy()
	if cfg.Scoring.IncorrectSelectionPenalty != nil {
		policy.IncorrectSelectionPenalty = *cfg.Scoring.IncorrectSelectionPenalty
	}
	policy.NegativeMarking = cfg.Scoring.NegativeMarking
	policy.NegativePenalty = cfg.Scoring.NegativePenalty

	service := app.NewAttemptService(app.Dependencies{
		Attempts:    attempts,
		Quizzes:     quizRepo,
		Snapshots:   snapshots,
		Submissions: sink,
		Events:      eventPort,
		Grader:      scoring.NewGrader(policy),
		Logger:      logger,
	}, app.Options{
		WarningPercent:   cfg.Attempt.WarningPercent,
		CriticalPercent:  cfg.Attempt.CriticalPercent,
		AutosaveInterval: config.TTLDuration(cfg.Attempt.AutosaveInterval, 5*time.Second),
		SaveRetries:      cfg.Attempt.SaveRetries,
		SaveBackoff:      config.TTLDuration(cfg.Attempt.SaveBackoff, 200*time.Millisecond),
	})
	return service, closers, nil
}

func buildPublisher(cfg config.Config, logger *slog.Logger) (*events.Publisher, error) {
	if !cfg.Events.Enabled {
		return nil, nil
	}
	switch cfg.Events.Publisher {
	case "", "kafka":
		logger.Info("creating kafka event publisher", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
		return events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
			Logger:  logger,
		})
	case "gochannel":
		pub, _ := events.NewGoChannelPublisher(cfg.Events.Topic, logger)
		return pub, nil
	default:
		return nil, domain.NewConfigurationError("events.publisher", fmt.Sprintf("unknown publisher %q", cfg.Events.Publisher))
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func closeAll(closers []io.Closer, logger *slog.Logger) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}

// sampleQuizzes is served when neither Postgres nor a quiz file is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:              "quiz-1",
			Title:           "Warm-up",
			TimingMode:      domain.TimingTotal,
			DurationMinutes: 5,
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
				{
					ID:       "q3",
					Type:     domain.FreeText,
					Prompt:   "Why is the sky blue?",
					Points:   3,
					Keywords: []string{"scattering", "wavelength"},
				},
			},
		},
	}
}
