// Package setup builds the process-wide dependencies shared by the lambda and
// api entry points
package setup

import (
	"context"
	"database/sql"
	"fmt"

	"claude-invocation/internal/config"
	"claude-invocation/internal/database"
	"claude-invocation/internal/handlers/invocation"
	"claude-invocation/internal/shared"
	"claude-invocation/internal/usage"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func NewLogger(debug bool) (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed init logger: %w", err)
	}
	return logger.Sugar(), nil
}

// NewModelClient loads the default AWS credential chain for the configured
// region. SDK retries are disabled so every invocation makes a single call.
func NewModelClient(ctx context.Context, cfg *config.Config) (*bedrockruntime.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed loading aws config: %w", err)
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}

// NewInvocationHandler wires the handler with the optional result cache and
// usage recorder. syncUsage flushes usage after every invocation instead of
// on a timer. The returned func releases everything that was opened.
func NewInvocationHandler(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger, syncUsage bool) (*invocation.InvocationHandler, func(), error) {
	var cleanups []func()
	shutdown := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	client, err := NewModelClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	var mc invocation.ModelClient = client

	if cfg.RedisAddr != "" && cfg.CacheTTL > 0 {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: "",
			DB:       0,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, nil, fmt.Errorf("failed ping to redis db: %w", err)
		}
		cleanups = append(cleanups, func() { _ = redisClient.Close() })
		mc = invocation.NewCachingClient(mc, invocation.NewRedisCache(redisClient, cfg.CacheTTL), log)
		log.Infow("Model result cache enabled", "redis_addr", cfg.RedisAddr, "ttl", cfg.CacheTTL.String())
	}

	ih := invocation.NewInvocationHandler(mc, cfg, log)

	if cfg.DSN != "" {
		db, err := sql.Open("mysql", cfg.DSN)
		if err != nil {
			shutdown()
			return nil, nil, fmt.Errorf("failed initializing sqlClient: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			shutdown()
			return nil, nil, fmt.Errorf("failed ping to sql db: %w", err)
		}
		interval := shared.UsageFlushInterval
		if syncUsage {
			interval = 0
		}
		recorder := usage.NewRecorder(database.NewUsageStore(db), log, interval)
		cleanups = append(cleanups, func() {
			recorder.Shutdown()
			_ = db.Close()
		})
		ih.Usage = recorder
		log.Infow("Usage recording enabled", "sync", syncUsage)
	}

	return ih, shutdown, nil
}
