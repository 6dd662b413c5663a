package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"live-trivia-service/internal/app"
	"live-trivia-service/internal/config"
	"live-trivia-service/internal/domain"
	"live-trivia-service/internal/hub"
	"live-trivia-service/internal/infra/memory"
	pgstore "live-trivia-service/internal/infra/postgres"
	redisinfra "live-trivia-service/internal/infra/redis"
	transport "live-trivia-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	// Durable store and quiz loader: Postgres when configured, otherwise the
	// in-process store seeded with a demo quiz.
	var (
		store  app.Store
		loader memory.QuizLoader
	)
	if pool != nil {
		pg := pgstore.NewStore(pool)
		store = pg
		loader = pg
	} else {
		store = memory.NewStore()
		loader = memory.NewStaticQuizLoader(sampleQuizzes())
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizRepository
	if redisClient != nil {
		quizzes = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizzes = memory.NewQuizRepository(loader, quizTTL)
	}

	sessionTTL := config.TTLDuration(cfg.Session.TTL, 2*time.Hour)
	var snaps app.SnapshotStore
	if redisClient != nil {
		snaps = redisinfra.NewSnapshotStore(redisClient, sessionTTL)
	} else {
		snaps = memory.NewSnapshotStore(sessionTTL)
	}

	connHub := hub.New(log.With().Str("component", "hub").Logger())
	controller := app.NewController(store, quizzes, snaps, connHub, clockwork.NewRealClock(),
		log.With().Str("component", "controller").Logger())

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	transport.NewGameHandler(controller, log.With().Str("component", "api").Logger()).RegisterRoutes(router)
	transport.NewWSHandler(controller, connHub, log.With().Str("component", "ws").Logger()).RegisterRoutes(router)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting trivia session server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides a minimal demo quiz for Postgres-less runs.
func sampleQuizzes() map[int64]domain.Quiz {
	return map[int64]domain.Quiz{
		1: {
			ID:      1,
			OwnerID: 1,
			Title:   "Warm-up",
			Questions: []domain.Question{
				{
					ID:        1,
					Text:      "What is 2 + 2?",
					TimeLimit: 30,
					Options: []domain.Option{
						{ID: 1, Text: "3"},
						{ID: 2, Text: "4", Correct: true},
						{ID: 3, Text: "5"},
					},
				},
				{
					ID:        2,
					Text:      "Which planet is known as the Red Planet?",
					TimeLimit: 20,
					Options: []domain.Option{
						{ID: 4, Text: "Venus"},
						{ID: 5, Text: "Mars", Correct: true},
						{ID: 6, Text: "Jupiter"},
					},
				},
			},
		},
	}
}
