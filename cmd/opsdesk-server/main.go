package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carewise/opsdesk/internal/config"
	"github.com/carewise/opsdesk/internal/domain/complaint"
	"github.com/carewise/opsdesk/internal/platform/auth"
	"github.com/carewise/opsdesk/internal/platform/db"
	"github.com/carewise/opsdesk/internal/platform/identity"
	"github.com/carewise/opsdesk/internal/platform/middleware"
	"github.com/carewise/opsdesk/internal/platform/mongodb"
	"github.com/carewise/opsdesk/internal/platform/notification"
	"github.com/carewise/opsdesk/internal/platform/websocket"
	"github.com/carewise/opsdesk/migrations"
)

func main() {
	// A missing .env is fine; viper also reads it.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "opsdesk-server",
		Short: "Hospital complaint workflow API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(routesCmd())
	rootCmd.AddCommand(mongoCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "production" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run Postgres migrations for the complaint store",
	}

	withMigrator := func(fn func(ctx context.Context, m *db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.StoreDriver != config.StorePostgres {
			return fmt.Errorf("migrations only apply to STORE_DRIVER=%s, have %s", config.StorePostgres, cfg.StoreDriver)
		}

		ctx := context.Background()
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, migrations.FS))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})

	return cmd
}

func routesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Inspect the escalation routing table",
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Load the routing table and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				file = os.Getenv("ESCALATION_ROUTES_FILE")
			}
			router, err := loadRouter(file)
			if err != nil {
				return err
			}
			printRoutes(cmd.OutOrStdout(), file, router)
			return nil
		},
	}
	checkCmd.Flags().String("file", "", "Routing table YAML (defaults to ESCALATION_ROUTES_FILE)")
	cmd.AddCommand(checkCmd)
	return cmd
}

func mongoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mongo",
		Short: "MongoDB store maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "indexes",
		Short: "Create the complaint collection indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.MongoURI == "" {
				return fmt.Errorf("MONGO_URI is required")
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			client, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
			if err != nil {
				return err
			}
			defer mongodb.Disconnect(client)

			names, err := complaint.EnsureComplaintIndexes(ctx, client.Database(cfg.MongoDatabase))
			if err != nil {
				return fmt.Errorf("create indexes: %w", err)
			}
			for _, n := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "index %s ready\n", n)
			}
			return nil
		},
	})
	return cmd
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.IsDev() {
		logger.Warn().Msg("running in development mode: requests without a token act as an admin")
	}

	ctx := context.Background()
	checks := map[string]db.PingFunc{}

	st, err := openStore(ctx, cfg, logger, checks)
	if err != nil {
		return fmt.Errorf("open %s complaint store: %w", cfg.StoreDriver, err)
	}
	defer st.close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info().Msg("connected to redis")
	}

	router, err := loadRouter(cfg.EscalationRoutesFile)
	if err != nil {
		return fmt.Errorf("load escalation routes: %w", err)
	}
	for _, r := range router.Routes() {
		logger.Info().Str("level", string(r.Level)).Str("recipient", r.Recipient).Msg("escalation route")
	}

	// Token directory: Redis sets when available, otherwise in-process.
	var (
		directory identity.TokenDirectory
		registrar identity.Registrar
	)
	if rdb != nil {
		d := identity.NewRedisDirectory(rdb)
		directory, registrar = d, d
	} else {
		d := identity.NewStaticDirectory()
		directory, registrar = d, d
		logger.Warn().Msg("REDIS_URL not set, push tokens are kept in memory")
	}

	gateway, err := buildGateway(cfg, rdb, checks)
	if err != nil {
		return fmt.Errorf("configure push gateway: %w", err)
	}
	notifier := notification.NewManager(gateway, nil, logger)

	hub := websocket.NewHub(logger)

	engine := complaint.NewEngine(st.repo, router, logger)
	engine.SetNotifier(notifier, directory)
	engine.SetPublisher(hub)
	engine.SetNotifyTimeout(cfg.NotifyTimeout)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	if cfg.AuthSigningKey == "" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:          cfg.AuthIssuer,
			Audience:        cfg.AuthAudience,
			SigningKey:      []byte(cfg.AuthSigningKey),
			Skipper:         auth.AuthSkipper,
			QueryTokenPaths: []string{websocket.Path},
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/ready", db.ReadinessHandler(checks))
	if st.pool != nil {
		e.GET("/health/db", db.HealthHandler(st.pool))
	}
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(e, auth.RequireRole(auth.RoleStaff))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RequestTimeout(middleware.TimeoutConfig{Timeout: cfg.RequestTimeout}))
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}))

	complaint.NewHandler(engine).RegisterRoutes(apiV1)
	identity.NewHandler(registrar, complaint.KnownDepartment).RegisterRoutes(apiV1)
	notification.NewHandler(notifier).RegisterRoutes(apiV1.Group("/admin", auth.RequireRole(auth.RoleAdmin)))

	// Graceful shutdown
	serverErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.StoreDriver).Str("push_gateway", cfg.PushGateway).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		engine.Drain()
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	engine.Drain()
	logger.Info().Msg("server stopped")
	return nil
}
