package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"classquiz-service/internal/app"
	"classquiz-service/internal/auth"
	"classquiz-service/internal/config"
	"classquiz-service/internal/infra/memory"
	pgstore "classquiz-service/internal/infra/postgres"
	rediscache "classquiz-service/internal/infra/redis"
	transport "classquiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.Secret == "" {
		return fmt.Errorf("auth secret not configured")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
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

	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	hub := app.NewHub()
	timers := app.NewTimerService()
	defer timers.Shutdown()

	grace := config.TTLDuration(cfg.Session.SubmitGrace, 10*time.Second)
	cascade := app.NewCascade(deps.store)
	quizzes := app.NewQuizService(deps.store, cascade, deps.invalidator)
	sessions := app.NewSessionController(deps.store, hub)
	assignments := app.NewAssignmentService(deps.store, deps.quizRepo, hub, timers, grace)

	authSvc := auth.NewService(cfg.Auth.Secret)
	quizWS := transport.NewQuizHandler(assignments, authSvc)
	controlWS := transport.NewControlHandler(sessions, authSvc)
	api := transport.NewAPIHandler(quizzes, assignments, authSvc)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws/quiz", quizWS.ServeWS)
	mux.HandleFunc("/ws/control", controlWS.ServeWS)
	api.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// serverDeps is the storage stack selected from config: in-memory for local
// runs, Postgres for real deployments, with an optional Redis quiz cache in
// front of either.
type serverDeps struct {
	store       app.Store
	quizRepo    app.QuizRepository
	invalidator app.QuizInvalidator
	pool        *pgxpool.Pool
	redisClient *redis.Client
}

func (d *serverDeps) close() {
	if d.pool != nil {
		d.pool.Close()
	}
	if d.redisClient != nil {
		d.redisClient.Close()
	}
}

func buildDeps(ctx context.Context, cfg config.Config) (*serverDeps, error) {
	deps := &serverDeps{}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		deps.pool = pool
		deps.store = pgstore.NewStore(pool)
	} else {
		deps.store = memory.NewStore()
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if cfg.Redis.Addr != "" {
		deps.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache := rediscache.NewQuizCache(deps.redisClient, deps.store, quizTTL)
		deps.quizRepo = cache
		deps.invalidator = cache
	} else {
		cache := memory.NewQuizCache(deps.store, quizTTL)
		deps.quizRepo = cache
		deps.invalidator = cache
	}
	return deps, nil
}
