package di

import (
	"context"
	"fmt"

	"CovDash/internal/domain/repository"
	"CovDash/internal/handler/api"
	mid "CovDash/internal/middleware"
	internalrepo "CovDash/internal/repository"
	"CovDash/internal/service/ratelimit"
	"CovDash/internal/usecase"
	"CovDash/pkg/cache"
	pkgch "CovDash/pkg/clickhouse"
	"CovDash/pkg/config"
	xhttp "CovDash/pkg/http"
	pkgkafka "CovDash/pkg/kafka"
	applogger "CovDash/pkg/logger"
	"CovDash/pkg/metrics"
	pkgpg "CovDash/pkg/postgres"
	"CovDash/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry creates the Prometheus registry served on the metrics path.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

// ProvideCache creates the cache backend selected by cache.type.
func ProvideCache(cfg *config.Config) (cache.Service, func(), error) {
	switch cfg.Cache.Type {
	case "redis", "layered":
		rc, err := cache.NewRedisCache(
			cache.WithRedisHost(cfg.Cache.Redis.Host),
			cache.WithRedisPort(cfg.Cache.Redis.Port),
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
			cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		var svc cache.Service = rc
		if cfg.Cache.Type == "layered" {
			svc = cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(cfg.Cache.MaxSize))
		}
		return svc, func() { _ = svc.Close() }, nil
	default:
		mc := cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MaxSize))
		return mc, func() { _ = mc.Close() }, nil
	}
}

// ProvideSnapshotSource creates the covariance source selected by source.type.
func ProvideSnapshotSource(cfg *config.Config, l *applogger.Logger) (repository.SnapshotSource, func(), error) {
	switch cfg.Source.Type {
	case "clickhouse":
		ch, err := pkgch.NewClient(
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		src, err := internalrepo.NewCHSnapshotSource(ch, cfg.Source.MatrixTable, cfg.Source.IndustryTable, l)
		if err != nil {
			_ = ch.Close()
			return nil, nil, err
		}
		return src, func() { _ = ch.Close() }, nil
	case "postgres":
		pg, err := pkgpg.NewClient(
			pkgpg.WithDSN(cfg.Postgres.DSN),
			pkgpg.WithPool(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns, cfg.Postgres.ConnMaxLifetime),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres client: %w", err)
		}
		src, err := internalrepo.NewPGSnapshotSource(pg, cfg.Source.MatrixTable, cfg.Source.IndustryTable, l)
		if err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
		return src, func() { _ = pg.Close() }, nil
	default:
		return internalrepo.NewFileSource(cfg.Source.MatrixPath, cfg.Source.IndustriesPath, l), func() {}, nil
	}
}

// ProvideArtifactCache memoises exports in the shared cache.
func ProvideArtifactCache(c cache.Service, cfg *config.Config) repository.ArtifactCache {
	return internalrepo.NewCacheArtifactStore(c, cfg.Cache.ArtifactTTL)
}

// ProvideSessionStore keeps per-session colour scales in the shared cache.
func ProvideSessionStore(c cache.Service, cfg *config.Config) repository.SessionStore {
	return internalrepo.NewCacheSessionStore(c, cfg.Cache.SessionTTL)
}

// ProvideExportPublisher publishes export audit events to Kafka when enabled,
// and to the log otherwise. Kafka delivery goes through a buffering pipeline.
func ProvideExportPublisher(cfg *config.Config, reg *prometheus.Registry, m repository.Metrics, l *applogger.Logger) (repository.ExportPublisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NewLogExportPublisher(l), func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pipe := mid.NewEventPipeline(internalrepo.NewKafkaExportPublisher(producer, cfg.Kafka.Topic, l), m)
	pipe.Start(context.Background())
	return pipe, func() {
		if err := pipe.Close(); err != nil {
			l.Warn("kafka producer close", applogger.Error(err))
		}
	}, nil
}

// ProvideDashboard creates the dashboard use case.
func ProvideDashboard(
	cfg *config.Config,
	source repository.SnapshotSource,
	artifacts repository.ArtifactCache,
	sessions repository.SessionStore,
	events repository.ExportPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Dashboard {
	return usecase.NewDashboard(source, artifacts, sessions, events, m, l, usecase.DashboardConfig{
		DefaultScale: cfg.Dashboard.DefaultScale,
		Decimals:     cfg.Dashboard.AnnotationDecimals,
		Columns:      cfg.Dashboard.Columns,
		LoadTimeout:  cfg.Source.Timeout,
		Retry: usecase.RetryConfig{
			InitialInterval: cfg.Source.Retry.InitialInterval,
			MaxInterval:     cfg.Source.Retry.MaxInterval,
			MaxElapsed:      cfg.Source.Retry.MaxElapsed,
		},
	})
}

// ProvideLimiter creates the per-client export rate limiter.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Dashboard.ExportRatePerSecond, cfg.Dashboard.ExportBurst)
}

// ProvideHTTPHandler creates the dashboard routes.
func ProvideHTTPHandler(cfg *config.Config, l *applogger.Logger, d *usecase.Dashboard, lim *ratelimit.Limiter) xhttp.Handler {
	return api.NewDashboardHandler(l, d, lim, api.Config{
		SessionCookie: cfg.Dashboard.SessionCookie,
		SessionTTL:    cfg.Cache.SessionTTL,
		AdminToken:    cfg.Dashboard.AdminToken,
		AllowOrigins:  cfg.Server.AllowOrigins,
	})
}

// ProvideKafkaConsumer creates the snapshot notice consumer. It is nil when
// Kafka or the snapshot topic is not configured.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.SnapshotTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.GroupID),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideSnapshotListener reloads the dashboard on snapshot notices.
func ProvideSnapshotListener(cfg *config.Config, d *usecase.Dashboard, l *applogger.Logger) *usecase.SnapshotListener {
	return usecase.NewSnapshotListener(cfg.Kafka.SnapshotTopic, d, l)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	reg *prometheus.Registry,
	d *usecase.Dashboard,
	h xhttp.Handler,
	lim *ratelimit.Limiter,
	consumer *pkgkafka.Consumer,
	listener *usecase.SnapshotListener,
) *server.App {
	return server.New(cfg, l, reg, d, h, lim, consumer, listener)
}
