package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/handler/api"
	internalrepo "FinCast/internal/repository"
	"FinCast/internal/service/ratelimit"
	"FinCast/internal/usecase"
	"FinCast/pkg/cache"
	pkgch "FinCast/pkg/clickhouse"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/metrics"
	"FinCast/pkg/server"
	"FinCast/pkg/util"
)

// ProvideLogger builds the application logger from the logger section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics registers the Prometheus recorder, or a no-op one when
// metrics are disabled.
func ProvideMetrics(cfg *config.Config) domrepo.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Noop{}
	}
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideCache creates the estimate cache. Type "none" yields a nil
// service and disables caching.
func ProvideCache(cfg *config.Config) (cache.Service, func(), error) {
	redisOpts := func() []cache.RedisOption {
		return []cache.RedisOption{
			cache.WithRedisHost(cfg.Redis.Host),
			cache.WithRedisPort(cfg.Redis.Port),
			cache.WithRedisPassword(cfg.Redis.Password),
			cache.WithRedisDB(cfg.Redis.DB),
			cache.WithRedisPrefix(cfg.Redis.Prefix),
		}
	}

	var svc cache.Service
	switch cfg.Cache.Type {
	case "none":
		return nil, func() {}, nil
	case "memory":
		svc = cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize),
			cache.WithMemoryCleanup(time.Minute),
		)
	case "redis":
		rc, err := cache.NewRedisCache(redisOpts()...)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		svc = rc
	case "layered":
		rc, err := cache.NewRedisCache(redisOpts()...)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		svc = cache.NewLayeredCache(rc,
			cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize),
			cache.WithLayeredMemoryTTL(cfg.Cache.MemoryTTL),
		)
	default:
		return nil, nil, fmt.Errorf("unknown cache type %q", cfg.Cache.Type)
	}
	return svc, func() { _ = svc.Close() }, nil
}

// ProvideClickHouseClient connects to ClickHouse when enabled and
// optionally creates the candle tables. Returns nil when disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if cfg.ClickHouse.InitSchema {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.InitSchema(ctx, internalrepo.Schema); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	l.Info("clickhouse connected", applogger.String("database", cfg.ClickHouse.Database))

	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideChartStore exposes stored candles to the estimator. Nil without
// a ClickHouse client.
func ProvideChartStore(ch *pkgch.Client, l *applogger.Logger) domrepo.ChartStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHChartStore(ch, l)
}

// ProvideKafkaProducer creates a Kafka producer when Kafka is enabled. If a
// collect topic is configured, error logs are aggregated through it.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	if cfg.Logger.CollectTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logger.CollectInterval,
			CountThreshold: cfg.Logger.CollectCount,
			Topic:          cfg.Logger.CollectTopic,
			Publisher:      producer,
		})
	}

	cleanup := func() {
		l.RemoveCollector()
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvideEventPublisher forwards training events to Kafka. Nil without a
// producer. The producer's lifetime is owned by ProvideKafkaProducer.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.EventPublisher {
	if producer == nil || cfg.Kafka.EventTopic == "" {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventTopic)
}

// ProvideEstimator creates the estimator from the training section.
func ProvideEstimator(
	cfg *config.Config,
	l *applogger.Logger,
	m domrepo.Metrics,
	c cache.Service,
	pub domrepo.EventPublisher,
	store domrepo.ChartStore,
) *usecase.Estimator {
	return usecase.NewEstimator(usecase.Settings{
		IncreaseFactor: cfg.Training.IncreaseFactor,
		DecreaseFactor: cfg.Training.DecreaseFactor,
		Seed:           cfg.Training.Seed,
		EventEvery:     cfg.Training.EventEvery,
		EstimateTTL:    cfg.Training.EstimateTTL,
	},
		usecase.WithEstimatorLogger(l.With(applogger.String("component", "estimator"))),
		usecase.WithEstimatorMetrics(m),
		usecase.WithEstimateCache(c),
		usecase.WithEventPublisher(pub),
		usecase.WithChartStore(store),
	)
}

// ProvideKafkaConsumer creates the chart consumer when a chart topic is
// configured. Returns nil otherwise.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.ChartTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithHook(pkgkafka.TraceHook)
	return consumer, nil
}

// ProvideKafkaChartHandler builds the handler for the chart topic. Returns
// a nil interface when no consumer runs.
func ProvideKafkaChartHandler(
	cfg *config.Config,
	consumer *pkgkafka.Consumer,
	est *usecase.Estimator,
	m domrepo.Metrics,
	l *applogger.Logger,
) pkgkafka.MessageHandler {
	if consumer == nil {
		return nil
	}
	return usecase.NewKafkaChartHandler(cfg.Kafka.ChartTopic, est, m, l)
}

// ProvideEstimatorHandler creates the HTTP handler with configured training
// defaults and the estimate rate limit.
func ProvideEstimatorHandler(cfg *config.Config, l *applogger.Logger, est *usecase.Estimator) (*api.EstimatorEchoHandler, error) {
	hidden, err := util.ParseIntList(cfg.Training.Hidden)
	if err != nil {
		return nil, fmt.Errorf("training.hidden: %w", err)
	}
	return api.NewEstimatorEchoHandler(l, est,
		api.TrainingDefaults{
			EstimateLength: cfg.Training.EstimateLength,
			Hidden:         hidden,
			Epochs:         cfg.Training.Epochs,
		},
		api.RateLimit{
			Limiter:      ratelimit.New(),
			Capacity:     float64(cfg.Server.RateLimit.Capacity),
			RefillPerSec: cfg.Server.RateLimit.RefillPerSec,
		},
	), nil
}

// ProvideHTTPServer wires the handler into the Echo server.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.EstimatorEchoHandler) *xhttp.Server {
	path := ""
	if cfg.Metrics.Enabled {
		path = cfg.Metrics.Path
	}
	return xhttp.NewServer(h, l,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(path, prometheus.DefaultRegisterer, prometheus.DefaultGatherer),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	est *usecase.Estimator,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
) *server.App {
	return server.New(cfg, l, est, srv, consumer, kh)
}
