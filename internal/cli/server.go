package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"zetaduel-service/internal/app"
	"zetaduel-service/internal/config"
	"zetaduel-service/internal/infra/memory"
	natsfeed "zetaduel-service/internal/infra/nats"
	redissession "zetaduel-service/internal/infra/redis"
	transport "zetaduel-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the duel server",
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
	setupLogging(cfg.Log.Level, cfg.Log.Pretty)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "3001"
	}

	var store app.SessionStore = memory.NewSessionStore()
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, session markers are best-effort")
		}
		redisStore := redissession.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
		defer redisStore.Close()
		store = redisStore
	}

	var (
		publisher  app.OutcomePublisher
		feedStatus transport.FeedStatus
	)
	if cfg.NATS.URL != "" {
		natsCfg := natsfeed.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		if cfg.NATS.SubjectPrefix != "" {
			natsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		}
		feed, err := natsfeed.Connect(natsCfg)
		if err != nil {
			return err
		}
		defer feed.Close()
		publisher = feed
		feedStatus = feed
		log.Info().Str("subject", feed.Subject()).Msg("publishing duel outcomes")
	}

	registry := app.NewSessionRegistry(store, memory.NewRooms(), app.RegistryOptions{
		Publisher:  publisher,
		TimeLimit:  cfg.TimeLimitSeconds(app.DefaultTimeLimit),
		Challenges: cfg.Duel.Challenges,
	})

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowCredentials: true,
	})
	connConfig := transport.DefaultConnectionConfig()
	connConfig.CheckOrigin = func(r *http.Request) bool {
		// non-browser clients send no Origin
		if r.Header.Get("Origin") == "" {
			return true
		}
		return corsMiddleware.OriginAllowed(r)
	}

	mux := http.NewServeMux()
	health := transport.NewHealthHandler(feedStatus)
	mux.Handle("/health", health)
	mux.Handle("/healthz", health)
	mux.Handle("/stats", transport.NewStatsHandler(registry))
	mux.HandleFunc("/ws", transport.NewWSHandler(registry, connConfig).ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      corsMiddleware.Handler(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", finalPort).Msg("starting duel service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
