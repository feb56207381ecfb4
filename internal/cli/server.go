package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/config"
	"classroom-quiz-service/internal/infra/memory"
	pgstore "classroom-quiz-service/internal/infra/postgres"
	redisstore "classroom-quiz-service/internal/infra/redis"
	transport "classroom-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			portFlag := ""
			if cmd.Flags().Changed("port") {
				portFlag = *port
			}
			return runServer(cmd.Context(), *configPath, portFlag, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag, portDefault string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	setupLogger(cfg.LogLevel())

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = portDefault
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	store := app.NewStore(repo, cfg.Storage.Key)
	if err := store.Load(ctx); err != nil {
		return err
	}
	workflow := app.NewWorkflow(store)

	limiter := transport.NewIPRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst, 5*time.Minute)
	countdown := config.TTLDuration(cfg.Quiz.Countdown, app.DefaultCountdown)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	transport.NewAPI(workflow).Register(mux)
	mux.HandleFunc("/ws", transport.NewWSHandler(workflow, countdown).ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.RateLimit(limiter, mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting quiz service", "port", finalPort, "storage", cfg.StorageBackend())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		limiter.Cleanup(gctx, time.Minute)
		return nil
	})
	if every := cfg.CacheTTL(); every > 0 {
		g.Go(func() error {
			store.Sync(gctx, every)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openRepository wires the configured storage backend.
func openRepository(ctx context.Context, cfg config.Config) (app.SnapshotRepository, func(), error) {
	switch backend := cfg.StorageBackend(); backend {
	case "memory":
		slog.Warn("using in-memory storage; state is lost on restart")
		return memory.NewSnapshotStore(), func() {}, nil
	case "redis":
		if cfg.Redis.Addr == "" {
			return nil, nil, fmt.Errorf("redis addr not configured")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		ttl := config.TTLDuration(cfg.Redis.TTL, 0)
		repo := memory.NewCachedRepository(redisstore.NewSnapshotStore(client, ttl), cfg.CacheTTL())
		return repo, func() { _ = client.Close() }, nil
	case "postgres":
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		repo := memory.NewCachedRepository(pgstore.NewSnapshotStore(pool), cfg.CacheTTL())
		return repo, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
