package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"access-gate/internal/audit"
	"access-gate/internal/bucketing"
	"access-gate/internal/client"
	"access-gate/internal/config"
	"access-gate/internal/delivery"
	"access-gate/internal/encryption"
	"access-gate/internal/hashing"
	"access-gate/internal/model"
	"access-gate/internal/repository/memory"
	"access-gate/internal/repository/redis"
	"access-gate/internal/repository/scylla"
	"access-gate/internal/service"
	"access-gate/internal/tls"
	"access-gate/internal/util"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager

	// Stores and collaborators
	codeStore    model.CodeStore
	sessionStore model.SessionStore
	attempts     model.AttemptPolicy
	recorder     *audit.Recorder
	dispatcher   *delivery.Dispatcher

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	return New(cfg)
}

// New wires every dependency for cfg. Optional backends that fail outside
// production are logged and skipped.
func New(cfg *config.Config) (*Factory, error) {
	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		f.tlsManager = tls.NewTLSManager(cfg)
	}

	if err := f.initializeClients(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := f.initializeManagers(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}
	if err := f.initializeStores(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize stores: %w", err)
	}
	f.initializeAudit()
	if err := f.initializeDelivery(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize delivery: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("store_backend", cfg.Store.Backend),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Strings("audit_sinks", f.recorder.Sinks()),
	)

	return f, nil
}

// initializeClients opens every enabled backend with a health check. Scylla
// is required when it is the store backend; the rest are optional.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if f.config.Store.Backend == "scylla" {
		scyllaClient, err := scylla.NewScyllaClient(f.config)
		if err != nil {
			return fmt.Errorf("scylla: %w", err)
		}
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("scylla health check: %w", err)
		}
		util.Info("ScyllaDB client initialized and healthy")
	}

	if f.config.Redis.Enabled {
		if redisClient, err := client.NewRedisClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = redisClient
			util.Info("Redis client initialized and healthy")
		}
	}

	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	if f.config.Elasticsearch.Enabled {
		if esClient, err := client.NewElasticsearchClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = esClient
			if err := f.esClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
			} else {
				util.Info("Elasticsearch client initialized and healthy")
			}
		}
	}

	if f.config.Clickhouse.Enabled {
		if chClient, err := client.NewClickHouseClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = chClient
			if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
			} else {
				util.Info("ClickHouse client initialized and healthy")
			}
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes hashing, encryption, and bucketing managers
func (f *Factory) initializeManagers() error {
	hasher, err := hashing.NewHasher(f.config)
	if err != nil {
		return fmt.Errorf("hasher: %w", err)
	}
	f.hasher = hasher

	var kmsClient encryption.KMSAPI
	if f.config.KMS.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("aws config: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	}

	em, err := encryption.NewEncryptionManager(f.config, kmsClient)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}
	f.encryptionManager = em
	f.bucketingManager = bucketing.NewBucketingManager(f.config)

	util.Info("Managers initialized successfully",
		util.Bool("kms_enabled", f.config.KMS.Enabled),
		util.Int("log_buckets", f.bucketingManager.LogBuckets()),
		util.Duration("hash_cost", f.hasher.Benchmark(1)),
	)
	return nil
}

func (f *Factory) initializeStores() error {
	switch f.config.Store.Backend {
	case "scylla":
		f.codeStore = scylla.NewCodeRepository(f.scyllaClient, f.encryptionManager, f.bucketingManager)
		f.sessionStore = scylla.NewSessionRepository(f.scyllaClient, f.encryptionManager)
	case "memory", "":
		if f.config.IsProduction() {
			util.Warn("In-memory store in production: codes and sessions are lost on restart")
		}
		f.codeStore = memory.NewCodeStore(f.encryptionManager)
		f.sessionStore = memory.NewSessionStore(f.encryptionManager)
	default:
		return fmt.Errorf("unknown store backend %q", f.config.Store.Backend)
	}

	if f.config.Gate.MaxVerifyAttempts > 0 {
		if f.redisClient == nil {
			util.Warn("GATE_MAX_VERIFY_ATTEMPTS set but Redis is unavailable - attempt cap disabled")
		} else {
			f.attempts = redis.NewAttemptCache(f.redisClient, f.config.Gate.MaxVerifyAttempts, f.config.Gate.AttemptWindow)
		}
	}
	return nil
}

func (f *Factory) initializeAudit() {
	sinks := []audit.Sink{audit.LogSink{}}

	if f.kafkaProducer != nil {
		sinks = append(sinks, audit.NewKafkaSink(f.kafkaProducer, f.config.Kafka.Topic))
	}
	if f.esClient != nil {
		sinks = append(sinks, audit.NewElasticsearchSink(f.esClient, f.config.Elasticsearch.Index))
	}
	if f.clickhouseClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if sink, err := audit.NewClickHouseSink(ctx, f.clickhouseClient); err != nil {
			util.Warn("ClickHouse audit sink disabled", util.ErrorField(err))
		} else {
			sinks = append(sinks, sink)
		}
	}

	f.recorder = audit.NewRecorder(3*time.Second, sinks...)
}

// initializeDelivery registers a sender per configured channel. Outside
// production an unconfigured channel logs codes instead of sending them.
func (f *Factory) initializeDelivery() error {
	f.dispatcher = delivery.NewDispatcher(delivery.DefaultRetryConfig())

	if f.config.SMTP.Host != "" {
		sender, err := delivery.NewEmailSender(f.config)
		if err != nil {
			return err
		}
		f.dispatcher.Register(model.ContactTypeEmail, sender)
	}
	if f.config.Twilio.AccountSID != "" {
		sender, err := delivery.NewSMSSender(f.config)
		if err != nil {
			return err
		}
		f.dispatcher.Register(model.ContactTypeSMS, sender)
	}

	for _, t := range []model.ContactType{model.ContactTypeEmail, model.ContactTypeSMS} {
		if f.dispatcher.Has(t) {
			continue
		}
		if f.config.IsProduction() {
			util.Warn("No sender configured for channel", util.String("channel", string(t)))
			continue
		}
		f.dispatcher.Register(t, &delivery.LogSender{Channel: string(t)})
	}
	return nil
}

// ==============================
// Service Factory
// ==============================
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		opts := []service.Option{service.WithRecorder(f.recorder)}
		if f.attempts != nil {
			opts = append(opts, service.WithAttemptPolicy(f.attempts))
		}
		f.serviceFactory = service.NewServiceFactory(
			f.config,
			f.codeStore,
			f.sessionStore,
			f.hasher,
			f.dispatcher,
			opts...,
		)
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

// HealthCheck reports per-component failures. Only the stores are critical.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.codeStore != nil {
		if err := f.codeStore.HealthCheck(ctx); err != nil {
			healthErrors["code_store"] = err
		}
	} else {
		healthErrors["code_store"] = fmt.Errorf("code store not initialized")
	}
	if f.sessionStore != nil {
		if err := f.sessionStore.HealthCheck(ctx); err != nil {
			healthErrors["session_store"] = err
		}
	} else {
		healthErrors["session_store"] = fmt.Errorf("session store not initialized")
	}

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}
	if f.esClient != nil {
		if err := f.esClient.HealthCheck(ctx); err != nil {
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

// Ready returns the first critical failure, for the /health endpoint.
func (f *Factory) Ready(ctx context.Context) error {
	healthErrors := f.HealthCheck(ctx)
	for _, name := range []string{"code_store", "session_store"} {
		if err, ok := healthErrors[name]; ok {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for name, err := range healthErrors {
		util.Warn("Optional dependency unhealthy", util.String("component", name), util.ErrorField(err))
	}
	return nil
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) Recorder() *audit.Recorder {
	return f.recorder
}

func (f *Factory) Dispatcher() *delivery.Dispatcher {
	return f.dispatcher
}
