package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/tournevent/huolala/internal/config"
	"github.com/tournevent/huolala/internal/telemetry"
	"github.com/tournevent/huolala/pkg/huolala"
	"github.com/tournevent/huolala/pkg/huolala/tokenstore/memory"
	"github.com/tournevent/huolala/pkg/huolala/tokenstore/redis"
	"github.com/tournevent/huolala/pkg/huolala/tokenstore/sqlite"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// app bundles everything a command needs.
type app struct {
	cfg      *config.Config
	logger   *otelzap.Logger
	registry *prometheus.Registry
	client   *huolala.Client
	provider *huolala.CachingTokenProvider
	closers  []func(context.Context) error
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func(context.Context) error { return logger.Sync() })

	tracer, tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		a.closers = append(a.closers, tracerShutdown)
	}

	store, storeClose, err := initTokenStore(cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.closers = append(a.closers, storeClose)

	a.registry = prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(a.registry)

	a.client = initClient(cfg, logger, tracer, metrics)
	a.provider = huolala.NewCachingTokenProvider(a.client, store,
		huolala.WithProviderLogger(logger),
		huolala.WithProviderMetrics(metrics),
		huolala.WithExpiryLeeway(cfg.ExpiryLeeway),
	)
	a.client.SetAccessTokenProvider(a.provider)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(cfg *config.Config) (*otelzap.Logger, error) {
	return telemetry.NewLogger(cfg.LogLevel, cfg.LogFormat)
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return nil, func(context.Context) error { return nil }, nil
	}
	return telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Attributes()...)
}

func initTokenStore(cfg *config.Config) (huolala.TokenStore, func(context.Context) error, error) {
	switch cfg.TokenStore {
	case config.StoreMemory:
		return memory.New(), func(context.Context) error { return nil }, nil

	case config.StoreRedis:
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store := redis.New(rdb, redis.Config{KeyPrefix: cfg.RedisKeyPrefix})
		return store, func(context.Context) error { return rdb.Close() }, nil

	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("%w (the sqlite store needs a cgo build; set TOKEN_STORE=memory or redis otherwise)", err)
		}
		return store, func(context.Context) error { return store.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
}

func initClient(cfg *config.Config, logger *otelzap.Logger, tracer trace.Tracer, metrics *telemetry.Metrics) *huolala.Client {
	var transport huolala.Transport
	if cfg.UseMock {
		transport = huolala.NewMockTransport()
	} else {
		transport = huolala.NewHTTPTransport(huolala.HTTPTransportConfig{
			Timeout:   cfg.Timeout,
			UserAgent: cfg.ServiceName + "/" + cfg.Version,
		})
	}
	return huolala.NewWithTransport(cfg.ClientConfig(), transport, logger, tracer,
		huolala.WithMetrics(metrics),
	)
}
