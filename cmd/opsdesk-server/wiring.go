package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carewise/opsdesk/internal/config"
	"github.com/carewise/opsdesk/internal/domain/complaint"
	"github.com/carewise/opsdesk/internal/platform/db"
	"github.com/carewise/opsdesk/internal/platform/mongodb"
	"github.com/carewise/opsdesk/internal/platform/notification"
)

// store is an opened complaint backend. pool is set only for Postgres.
type store struct {
	repo  complaint.ComplaintRepository
	pool  *pgxpool.Pool
	close func()
}

// openStore connects the configured complaint backend and registers its
// readiness check.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger, checks map[string]db.PingFunc) (*store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		checks["postgres"] = pool.Ping
		logger.Info().Msg("connected to postgres")
		return &store{repo: complaint.NewComplaintRepoPG(pool), pool: pool, close: pool.Close}, nil

	case config.StoreMongo:
		client, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
		if err != nil {
			return nil, err
		}
		database := client.Database(cfg.MongoDatabase)
		if _, err := complaint.EnsureComplaintIndexes(ctx, database); err != nil {
			logger.Warn().Err(err).Msg("failed to ensure mongo indexes")
		}
		checks["mongo"] = mongodb.Ping(client)
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongo")
		closeFn := func() {
			if err := mongodb.Disconnect(client); err != nil {
				logger.Error().Err(err).Msg("mongo disconnect failed")
			}
		}
		return &store{repo: complaint.NewComplaintRepoMongo(database), close: closeFn}, nil

	case config.StoreMemory:
		logger.Warn().Msg("using in-memory complaint store, data is lost on restart")
		return &store{repo: complaint.NewMemoryRepository(), close: func() {}}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// buildGateway picks the push transport. Redis publishing needs the shared
// client; the HTTP gateway gets its own readiness check.
func buildGateway(cfg *config.Config, rdb *redis.Client, checks map[string]db.PingFunc) (notification.Gateway, error) {
	switch cfg.PushGateway {
	case config.GatewayHTTP:
		gw := notification.NewHTTPGateway(cfg.PushGatewayURL, cfg.PushGatewayKey, cfg.NotifyTimeout)
		checks["push_gateway"] = gw.Ping
		return gw, nil
	case config.GatewayRedis:
		if rdb == nil {
			return nil, fmt.Errorf("PUSH_GATEWAY=%s needs REDIS_URL", config.GatewayRedis)
		}
		return notification.NewRedisGateway(rdb, cfg.PushChannel), nil
	case config.GatewayNone, "":
		return notification.NopGateway{}, nil
	}
	return nil, fmt.Errorf("unknown push gateway %q", cfg.PushGateway)
}

// loadRouter reads the routing table from path, or falls back to the
// built-in routes when path is empty.
func loadRouter(path string) (*complaint.EscalationRouter, error) {
	if path == "" {
		return complaint.NewEscalationRouter(complaint.DefaultRoutes)
	}
	return complaint.LoadEscalationRouter(path)
}

func printRoutes(w io.Writer, source string, router *complaint.EscalationRouter) {
	if source == "" {
		source = "built-in defaults"
	}
	fmt.Fprintf(w, "Escalation routes (%s), checked %s\n", source, time.Now().Format(time.RFC3339))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tRECIPIENT")
	for _, r := range router.Routes() {
		recipient := r.Recipient
		if recipient == "" {
			recipient = "(log only)"
		}
		fmt.Fprintf(tw, "%s\t%s\n", r.Level, recipient)
	}
	tw.Flush()
}
