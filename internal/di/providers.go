package di

import (
	"context"
	"fmt"

	domrepo "Indicium/internal/domain/repository"
	handlerapi "Indicium/internal/handler/api"
	internalrepo "Indicium/internal/repository"
	"Indicium/internal/service/auth"
	svccache "Indicium/internal/service/cache"
	"Indicium/internal/service/ratelimit"
	"Indicium/internal/service/warehouse"
	"Indicium/internal/usecase"
	kv "Indicium/pkg/cache"
	pkgch "Indicium/pkg/clickhouse"
	"Indicium/pkg/config"
	xhttp "Indicium/pkg/http"
	pkgkafka "Indicium/pkg/kafka"
	applogger "Indicium/pkg/logger"
	"Indicium/pkg/metrics"
	"Indicium/pkg/queue"
	"Indicium/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithRegisterer(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the application logger. Error logs are aggregated and
// shipped to Kafka when a collector topic is configured.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Output:  cfg.Logging.Output,
		Service: cfg.API.ServiceName,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if producer == nil || cfg.Logging.CollectorTopic == "" {
		return l, func() {}, nil
	}
	l.AddCollector(&applogger.CollectionConfig{
		FlushInterval: cfg.Logging.CollectorFlush,
		Topic:         cfg.Logging.CollectorTopic,
		Publisher:     producer,
	})
	return l, l.RemoveCollector, nil
}

// ProvideMetrics registers the domain recorder on the default registry.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideKV creates the shared key-value backend.
func ProvideKV(cfg *config.Config, l *applogger.Logger) (kv.Service, func(), error) {
	if cfg.Cache.Backend == "memory" {
		l.Warn("using in-process cache; tokens and counters are not shared across instances")
		mc := kv.NewMemoryCache(kv.WithMemoryMaxSize(10000))
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := kv.NewRedisCache(
		kv.WithRedisAddr(cfg.Cache.Redis.Addr),
		kv.WithRedisHost(cfg.Cache.Redis.Host),
		kv.WithRedisPort(cfg.Cache.Redis.Port),
		kv.WithRedisPassword(cfg.Cache.Redis.Password),
		kv.WithRedisDB(cfg.Cache.Redis.DB),
		kv.WithRedisPrefix(cfg.Cache.Redis.Prefix),
		kv.WithRedisPool(cfg.Cache.Redis.PoolSize, cfg.Cache.Redis.PoolSize/2, cfg.Server.ReadTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideSignalSource picks the warehouse backend. Missing BigQuery credentials
// are not fatal: the refresher serves fallback data until they are fixed.
func ProvideSignalSource(cfg *config.Config, l *applogger.Logger, m domrepo.Metrics) (domrepo.SignalSource, func(), error) {
	if cfg.Warehouse.Type == "clickhouse" {
		client, err := pkgch.NewClient(
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(4, 2),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		src := internalrepo.NewCHSignalSource(client, cfg.ClickHouse.Database+"."+cfg.Warehouse.View, cfg.Warehouse.MaxRows)
		src.SetLogger(l)
		return src, func() { _ = client.Close() }, nil
	}

	sa, err := warehouse.LoadServiceAccount(cfg.Warehouse.CredentialsJSON, cfg.Warehouse.CredentialsFile)
	if err != nil {
		l.Error("bigquery credentials unavailable, serving fallback data", applogger.Error(err))
		return nil, func() {}, nil
	}
	projectID := cfg.Warehouse.ProjectID
	if projectID == "" {
		projectID = sa.ProjectID
	}
	client := xhttp.NewClient(xhttp.WithTimeout(cfg.Warehouse.HTTPTimeout))
	tokens := warehouse.NewTokenSource(sa, client, cfg.Warehouse.TokenURL)
	src := warehouse.NewBigQuerySource(warehouse.Config{
		ProjectID:    projectID,
		Dataset:      cfg.Warehouse.Dataset,
		View:         cfg.Warehouse.View,
		MaxRows:      cfg.Warehouse.MaxRows,
		QueryTimeout: cfg.Warehouse.QueryTimeout,
		BaseURL:      cfg.Warehouse.BaseURL,
		Retry: xhttp.RetryConfig{
			MaxAttempts: cfg.Warehouse.MaxAttempts,
			BaseDelay:   xhttp.DefaultRetry.BaseDelay,
			MaxDelay:    xhttp.DefaultRetry.MaxDelay,
		},
	}, tokens, client, l, m)
	return src, func() {}, nil
}

// ProvidePublisher emits refresh events to Kafka, or nowhere when disabled.
func ProvidePublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.Publisher {
	if producer == nil {
		return internalrepo.NoopPublisher{}
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

func ProvideSnapshotStore(store kv.Service) *svccache.SnapshotStore {
	return svccache.NewSnapshotStore(store)
}

func ProvideValidator(store kv.Service, l *applogger.Logger, m domrepo.Metrics) *auth.Validator {
	return auth.NewValidator(auth.NewKVTokenStore(store), l, m)
}

func ProvideLimiter(cfg *config.Config, store kv.Service, l *applogger.Logger, m domrepo.Metrics) *ratelimit.Limiter {
	return ratelimit.New(store, cfg.RateLimit.PerMinute,
		ratelimit.WithDailyLimit(cfg.RateLimit.PerDay),
		ratelimit.WithMetrics(m),
		ratelimit.WithLogger(l),
	)
}

func ProvideRefresher(
	cfg *config.Config,
	source domrepo.SignalSource,
	store *svccache.SnapshotStore,
	pub domrepo.Publisher,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.Refresher {
	return usecase.NewRefresher(source, store, pub, m, l, usecase.RefresherConfig{
		Interval:     cfg.Refresh.Interval,
		Timeout:      cfg.Refresh.Timeout,
		WriteTimeout: cfg.Refresh.WriteTimeout,
		Builder: usecase.SnapshotBuilder{
			TTLSeconds:             cfg.Cache.TTLSeconds,
			APIVersion:             cfg.API.Version,
			RefreshIntervalMinutes: cfg.RefreshIntervalMinutes(),
		},
	})
}

func ProvideSignalsHandler(
	cfg *config.Config,
	v *auth.Validator,
	lim *ratelimit.Limiter,
	store *svccache.SnapshotStore,
	l *applogger.Logger,
) *handlerapi.SignalsHandler {
	return handlerapi.NewSignalsHandler(v, lim, store, l, handlerapi.HandlerConfig{
		ServiceName: cfg.API.ServiceName,
		APIVersion:  cfg.API.Version,
		TTLSeconds:  cfg.Cache.TTLSeconds,
	})
}

func ProvideHTTPServer(cfg *config.Config, h *handlerapi.SignalsHandler, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, prometheus.DefaultRegisterer, prometheus.DefaultGatherer))
	}
	return xhttp.NewServer(h, l, opts...)
}

// ProvideRefreshQueue consumes on-demand refresh requests. It is nil unless
// refresh.queue.enabled is set.
func ProvideRefreshQueue(cfg *config.Config, store kv.Service, r *usecase.Refresher, l *applogger.Logger) (*queue.RedisQueue, error) {
	if !cfg.Refresh.Queue.Enabled {
		return nil, nil
	}
	q, err := newRedisQueue(cfg, store, l, queue.ModeProducerConsumer)
	if err != nil {
		return nil, err
	}
	q.RegisterJob(usecase.NewRefreshJob(r, l))
	return q, nil
}

// ProvideRefreshRequester is the producer side used by the -refresh-now flag.
func ProvideRefreshRequester(cfg *config.Config, store kv.Service, l *applogger.Logger) (queue.Publisher, func(), error) {
	q, err := newRedisQueue(cfg, store, l, queue.ModeProducerOnly)
	if err != nil {
		return nil, nil, err
	}
	if err := q.Start(); err != nil {
		return nil, nil, fmt.Errorf("refresh queue: %w", err)
	}
	return q, func() { _ = q.Stop(context.Background()) }, nil
}

func newRedisQueue(cfg *config.Config, store kv.Service, l *applogger.Logger, mode queue.Mode) (*queue.RedisQueue, error) {
	rc, ok := store.(*kv.RedisCache)
	if !ok {
		return nil, fmt.Errorf("refresh queue requires the redis cache backend")
	}
	return queue.NewRedisQueue(l, queue.Config{
		Workers:    cfg.Refresh.Queue.Workers,
		RetryLimit: cfg.Refresh.Queue.RetryLimit,
		RetryDelay: cfg.Refresh.Queue.RetryDelay,
	}, rc.Client(),
		queue.WithKeyPrefix(cfg.Cache.Redis.Prefix+":queue"),
		queue.WithMode(mode),
	), nil
}

// ProvideApp assembles the application lifecycle.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	r *usecase.Refresher,
	srv *xhttp.Server,
	q *queue.RedisQueue,
) *server.App {
	return server.New(cfg, l, r, srv, q)
}
