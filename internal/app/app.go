package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fos/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/fos/internal/health"
	"github.com/vladislavdragonenkov/fos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fos/internal/metrics"
	"github.com/vladislavdragonenkov/fos/internal/service/feed"
	"github.com/vladislavdragonenkov/fos/internal/service/notify"
	"github.com/vladislavdragonenkov/fos/internal/service/readiness"
	"github.com/vladislavdragonenkov/fos/internal/service/send"
	"github.com/vladislavdragonenkov/fos/internal/version"
)

// Run собирает оркестратор и держит его до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	sweepMetrics := metrics.NewSweepMetrics()

	// Канал уведомлений: Kafka при настроенных брокерах, иначе лог.
	var kafkaProducer *kafka.Producer
	var sink domain.NotificationPublisher = notify.NewLogSink(logger.WithField("component", "notification-log"))
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, logger.WithField("component", "kafka-producer"))
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, notifications fall back to log")
		} else {
			kafkaProducer = producer
			sink = kafka.NewNotifier(producer)
			logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
		}
	}

	dispatcher := notify.NewDispatcher(sink,
		notify.WithLogger(logger.WithField("component", "notify-dispatcher")),
		notify.WithMetrics(sweepMetrics),
		notify.WithQueueSize(cfg.NotifyQueueSize),
	)
	dispatcher.Start(ctx)

	evaluator := readiness.NewEvaluator(deps.Tables, logger.WithField("component", "readiness-evaluator")).
		WithMetrics(sweepMetrics)

	sweeper := readiness.NewSweeper(deps.Entities, evaluator,
		readiness.WithLogger(logger.WithField("component", "readiness-sweeper")),
		readiness.WithAudit(deps.Audit),
		readiness.WithNotifications(dispatcher),
		readiness.WithMetrics(sweepMetrics),
		readiness.WithSweepInterval(cfg.SweepInterval),
		readiness.WithMaxParallel(cfg.SweepParallel),
		readiness.WithStartDelay(cfg.SweepStartDelay),
		readiness.WithTypeFilter(cfg.EntityTypes...),
	)

	// Отправка в TMS: retry для транзиентных сбоев, circuit breaker поверх.
	breaker := send.NewCircuitBreaker(5, 30*time.Second, logger.WithField("component", "carrier-breaker"))
	sender := send.NewCircuitBreakerSender(
		send.NewRetryableSender(deps.Sender, send.DefaultRetryConfig(), logger.WithField("component", "carrier-retry")),
		breaker,
	)

	worker := send.NewWorker(deps.Entities, sender,
		send.WithLogger(logger.WithField("component", "send-worker")),
		send.WithAudit(deps.Audit),
		send.WithNotifications(dispatcher),
		send.WithMetrics(sweepMetrics),
		send.WithDispatchInterval(cfg.DispatchInterval),
	)

	feedHandler := buildFeedHandler(deps, sender, dispatcher, logger)

	consumer, err := startChangeFeedConsumer(ctx, cfg, feedHandler, kafkaProducer, logger)
	if err != nil {
		logger.WithError(err).Warn("change feed consumer unavailable, continuing without intake")
	}

	healthHandler := buildHealthHandler(ctx, cfg, deps)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	<-ctx.Done()
	logger.Info("получен сигнал остановки, останавливаем оркестратор")

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop change feed consumer")
		}
	}

	wg.Wait()
	dispatcher.Stop()

	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			logger.WithError(err).Warn("failed to close kafka producer")
		} else {
			logger.Info("kafka producer closed")
		}
	}

	shutdownHTTP(metricsSrv, logger)
	return ctx.Err()
}

func buildDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if cfg.PostgresDSN != "" {
		deps, err := NewPostgresDependencies(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("postgres storage initialized")
		return deps, nil
	}

	logger.Info("postgres dsn is not set, using in-memory storage")
	return NewDependencies(logger), nil
}

func buildFeedHandler(deps *Dependencies, sender domain.SendService, notifications domain.NotificationPublisher, logger *log.Entry) *feed.Handler {
	intake := feed.NewIntake(deps.Entities, deps.Tables, deps.Audit, logger.WithField("component", "feed-intake"))
	retrigger := feed.NewRetrigger(deps.Entities, deps.Audit, logger.WithField("component", "feed-retrigger"))
	void := feed.NewVoid(deps.Entities, deps.Tables, sender, deps.Audit, notifications, logger.WithField("component", "feed-void"))
	return feed.NewHandler(intake, retrigger, void, logger.WithField("component", "feed-handler"))
}

// startChangeFeedConsumer подключает consumer change-feed'а; без брокеров intake не работает.
func startChangeFeedConsumer(ctx context.Context, cfg Config, handler *feed.Handler, dlqProducer *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("kafka brokers are not set, change feed consumer disabled")
		return nil, nil
	}

	messageHandler := func(_ context.Context, message *sarama.ConsumerMessage) error {
		event, err := kafka.ParseChangeEvent(message)
		if err != nil {
			return err
		}
		return handler.Handle(*event)
	}

	consumer, err := kafka.NewConsumerWithDLQ(
		cfg.KafkaBrokers,
		cfg.KafkaGroupID,
		[]string{kafka.TopicChangeFeed},
		messageHandler,
		dlqProducer,
		3,
	)
	if err != nil {
		return nil, err
	}

	if err := consumer.Start(ctx); err != nil {
		return nil, err
	}
	return consumer, nil
}

func buildHealthHandler(ctx context.Context, cfg Config, deps *Dependencies) *healthcheck.Handler {
	handler := healthcheck.NewHandler(version.String())
	handler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", func() error {
		return deps.Ping(ctx)
	}))
	handler.RegisterChecker("pending-backlog", healthcheck.NewBacklogChecker("pending-backlog", cfg.PendingBacklogThreshold, func() (int, error) {
		pending, err := deps.Entities.ListByStatus(domain.StatusPending)
		if err != nil {
			return 0, err
		}
		return len(pending), nil
	}))
	return handler
}

// startMetricsServer запускает HTTP-обработчики /metrics и health-проб.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
