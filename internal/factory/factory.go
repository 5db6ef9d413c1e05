package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"secops-service/internal/client"
	"secops-service/internal/config"
	"secops-service/internal/hunt"
	"secops-service/internal/incident"
	"secops-service/internal/metrics"
	"secops-service/internal/pipeline"
	"secops-service/internal/provider"
	"secops-service/internal/rules"
	"secops-service/internal/sched"
	"secops-service/internal/soc"
	"secops-service/internal/store"
	"secops-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config
	logger *zap.Logger

	// Clients
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	store     store.Store
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	scheduler *sched.Scheduler

	// Services
	pipeline        *pipeline.Pipeline
	socEngine       *soc.Engine
	incidentManager *incident.Manager
	huntWorkflow    *hunt.Workflow

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.Load()

	logger := util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		logger: logger,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeServices()

	logger.Info("Factory initialized successfully",
		zap.String("environment", cfg.Environment),
		zap.Int("analysts", len(cfg.SOC.Analysts)))

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if c, err := client.NewRedisClient(f.config, f.logger); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = c
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
			f.redisClient = nil
		} else {
			f.logger.Info("Redis client initialized and healthy")
		}
	}

	// Kafka
	if producer, err := client.NewKafkaProducer(f.config, f.logger); err != nil {
		f.logger.Warn("Kafka producer initialization failed - proceeding without Kafka", zap.Error(err))
	} else {
		f.kafkaProducer = producer
		f.logger.Info("Kafka producer initialized")
	}

	// Elasticsearch
	if c, err := client.NewElasticsearchClient(f.config, f.logger); err != nil {
		initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
	} else {
		f.esClient = c
		f.logger.Info("Elasticsearch client initialized and healthy")
	}

	// ClickHouse
	if c, err := client.NewClickHouseClient(f.config, f.logger); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = c
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			f.logger.Info("ClickHouse client initialized and healthy")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			f.logger.Warn("Service initialization warning", zap.Error(err))
		}
	}

	return nil
}

// initializeServices wires the domain services in dependency order: store and
// metrics first, then incidents, alerts, the log pipeline and hunts.
func (f *Factory) initializeServices() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if f.redisClient != nil {
		f.store = store.NewRedisStore(f.redisClient, f.logger)
		f.logger.Info("Using Redis-backed state store")
	} else {
		f.store = store.NewMemoryStore()
		f.logger.Warn("Redis unavailable, falling back to in-memory state store")
	}

	f.registry = prometheus.NewRegistry()
	f.metrics = metrics.New(f.registry)

	clock := sched.RealClock{}
	f.scheduler = sched.NewScheduler(clock, f.logger)

	f.incidentManager = incident.NewManager(incident.Options{
		Logger:  f.logger,
		Clock:   clock,
		Store:   f.store,
		Metrics: f.metrics,
	})

	f.socEngine = soc.NewEngine(soc.Options{
		Logger:    f.logger,
		Clock:     clock,
		Store:     f.store,
		Metrics:   f.metrics,
		Incidents: f.incidentManager,
		Analysts:  f.config.SOC.Analysts,
		Window:    f.config.SOC.CorrelationWindow,
	})

	f.pipeline = pipeline.New(pipeline.Options{
		Store:     f.store,
		Clock:     clock,
		Metrics:   f.metrics,
		Logger:    f.logger,
		Incidents: f.incidentManager,
		Providers: f.providerDeps(),
	})
	for _, rule := range rules.DefaultAlertRules() {
		if err := f.pipeline.RegisterRule(rule); err != nil {
			f.logger.Warn("Failed to register default alert rule",
				zap.String("rule", rule.Name), zap.Error(err))
		}
	}

	var source hunt.DataSource = hunt.NopDataSource{}
	if f.esClient != nil {
		source = hunt.NewElasticDataSource(f.esClient, f.logger)
	}
	f.huntWorkflow = hunt.NewWorkflow(hunt.Options{
		Logger:  f.logger,
		Clock:   clock,
		Store:   f.store,
		Metrics: f.metrics,
		Alerts:  f.socEngine,
		Source:  source,
	})

	f.pipeline.Restore(ctx)
	f.socEngine.Restore(ctx)
	f.incidentManager.Restore(ctx)
	f.huntWorkflow.Restore(ctx)

	f.pipeline.Start(f.scheduler, f.config.Pipeline.FlushInterval)
	f.socEngine.Start(f.scheduler, f.config.SOC.EscalationInterval)
	f.incidentManager.Start(f.scheduler,
		f.config.Incident.EscalationInterval, f.config.Incident.SLAInterval)
	f.huntWorkflow.Start(f.scheduler, f.config.Hunt.DurationCheckInterval)
}

func (f *Factory) providerDeps() provider.Deps {
	return provider.Deps{
		ES:         f.esClient,
		ClickHouse: f.clickhouseClient,
		Kafka:      f.kafkaProducer,
		Logger:     f.logger,
	}
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		f.logger.Info("Shutting down factory...")

		f.scheduler.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		f.pipeline.Shutdown(ctx)

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				f.logger.Error("Failed to close ClickHouse client", zap.Error(err))
			} else {
				f.logger.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			f.logger.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				f.logger.Error("Failed to close Kafka producer", zap.Error(err))
			} else {
				f.logger.Info("Kafka producer closed")
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				f.logger.Error("Failed to close Redis client", zap.Error(err))
			} else {
				f.logger.Info("Redis client closed")
			}
		}

		util.Sync()
		f.logger.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

// ==============================
// Getters
// ==============================

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) Logger() *zap.Logger {
	return f.logger
}

func (f *Factory) Registry() *prometheus.Registry {
	return f.registry
}

func (f *Factory) Pipeline() *pipeline.Pipeline {
	return f.pipeline
}

func (f *Factory) SOCEngine() *soc.Engine {
	return f.socEngine
}

func (f *Factory) IncidentManager() *incident.Manager {
	return f.incidentManager
}

func (f *Factory) HuntWorkflow() *hunt.Workflow {
	return f.huntWorkflow
}
