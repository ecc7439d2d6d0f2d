package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gmfloripa/patrol-relay/internal/config"
	"github.com/gmfloripa/patrol-relay/internal/metrics"
	"github.com/gmfloripa/patrol-relay/internal/relay"
	"github.com/gmfloripa/patrol-relay/internal/tracer"
	"github.com/gmfloripa/patrol-relay/internal/una"
)

// newUNAClient builds the platform client with an instrumented transport.
func newUNAClient(cfg *config.Config, logger *slog.Logger) *una.Client {
	httpClient := &http.Client{
		Timeout:   cfg.UNA.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	opts := []tracer.Option{
		tracer.WithHTTPClient(httpClient),
		tracer.WithObserver(metrics.UpstreamObserver{}),
	}
	if len(cfg.Tracing.RedactHeaders) > 0 {
		opts = append(opts, tracer.WithRedactor(tracer.HeaderRedactor(cfg.Tracing.RedactHeaders...)))
	}

	return una.NewClient(
		una.Credentials{Login: cfg.UNA.Login, Password: cfg.UNA.Password},
		una.WithBaseURL(cfg.UNA.BaseURL),
		una.WithTracer(tracer.New(opts...)),
		una.WithLogger(logger),
	)
}

// newTokenSource picks the session token strategy. The returned close func
// releases the Redis connection when one was opened.
func newTokenSource(ctx context.Context, cfg config.TokenCacheConfig, client *una.Client, logger *slog.Logger) (una.TokenSource, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Mode {
	case "", "none":
		return una.Reauthenticate{Auth: client}, noop, nil

	case "memory":
		logger.Info("caching UNA session tokens in memory", slog.Duration("ttl", cfg.TTL))
		return una.NewCachedTokens(client, una.NewMemoryTokenStore(), client.Login(), cfg.TTL, logger), noop, nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, token cache will fall back to fresh logins",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()))
		}
		logger.Info("caching UNA session tokens in redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Duration("ttl", cfg.TTL))
		store := una.NewRedisTokenStore(rdb)
		return una.NewCachedTokens(client, store, client.Login(), cfg.TTL, logger), rdb.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown token cache mode %q", cfg.Mode)
	}
}

// newRelayService wires the UNA client and token source into a relay.
func newRelayService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*relay.Service, func() error, error) {
	client := newUNAClient(cfg, logger)
	tokens, closeTokens, err := newTokenSource(ctx, cfg.UNA.TokenCache, client, logger)
	if err != nil {
		return nil, nil, err
	}
	return relay.NewService(tokens, client, relay.WithLogger(logger)), closeTokens, nil
}
