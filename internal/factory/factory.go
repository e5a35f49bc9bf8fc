package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"club-ledger/internal/analytics"
	"club-ledger/internal/bucketing"
	"club-ledger/internal/client"
	"club-ledger/internal/config"
	"club-ledger/internal/encryption"
	"club-ledger/internal/hashing"
	redisrepo "club-ledger/internal/repository/redis"
	"club-ledger/internal/repository/scylla"
	"club-ledger/internal/search"
	"club-ledger/internal/service"
	"club-ledger/internal/tls"
	"club-ledger/internal/util"
	"club-ledger/internal/verify"
)

// Factory owns the lifecycle of every application dependency: external
// clients, managers, repositories, and the domain services built on top.
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager

	memberRepository     scylla.MemberRepository
	managementRepository scylla.ManagementRepository
	duesRepository       scylla.DuesRepository
	verificationCache    *redisrepo.VerificationCache
	rosterIndex          *search.RosterIndex
	duesSink             *analytics.DuesSink

	credentialService   *service.CredentialService
	verificationService *service.VerificationService
	directoryService    *service.DirectoryService
	duesService         *service.DuesService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration, initializes logging, and brings up all
// external clients with health checks.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(&tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()

	util.Info("Factory initialized",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return factory, nil
}

func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if rc, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = rc
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	if sc, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = sc
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka and the analytics sinks are best-effort: the club keeps running
	// without its audit trail.
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without events", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
	}

	if es, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		util.Warn("Elasticsearch initialization failed - roster search falls back to scans", util.ErrorField(err))
	} else {
		f.esClient = es
		if err := f.esClient.HealthCheck(); err != nil {
			util.Warn("Elasticsearch health check failed", util.ErrorField(err))
		} else {
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	if ch, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		util.Warn("ClickHouse initialization failed - proceeding without dues snapshots", util.ErrorField(err))
	} else {
		f.clickhouseClient = ch
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			util.Warn("ClickHouse health check failed", util.ErrorField(err))
		} else {
			util.Info("ClickHouse client initialized and healthy")
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

func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config)

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			util.Warn("Failed to load AWS config - falling back to local encryption keys", util.ErrorField(err))
		} else {
			kmsClient = kms.NewFromConfig(awsCfg)
		}
	}

	f.encryptionManager = encryption.NewEncryptionManager(f.config, kmsClient)
	f.bucketingManager = bucketing.NewBucketingManager(f.config)
}

func (f *Factory) MemberRepository() scylla.MemberRepository {
	if f.memberRepository == nil {
		f.memberRepository = scylla.NewMemberRepository(f.scyllaClient, f.bucketingManager)
	}
	return f.memberRepository
}

func (f *Factory) ManagementRepository() scylla.ManagementRepository {
	if f.managementRepository == nil {
		f.managementRepository = scylla.NewManagementRepository(f.scyllaClient)
	}
	return f.managementRepository
}

func (f *Factory) DuesRepository() scylla.DuesRepository {
	if f.duesRepository == nil {
		f.duesRepository = scylla.NewDuesRepository(f.scyllaClient)
	}
	return f.duesRepository
}

func (f *Factory) VerificationCache() *redisrepo.VerificationCache {
	if f.verificationCache == nil {
		f.verificationCache = redisrepo.NewVerificationCache(f.redisClient)
	}
	return f.verificationCache
}

// RosterIndex returns nil when Elasticsearch is unavailable; callers treat a
// nil index as "scan the primary store".
func (f *Factory) RosterIndex() service.RosterIndexer {
	if f.esClient == nil {
		return nil
	}
	if f.rosterIndex == nil {
		f.rosterIndex = search.NewRosterIndex(f.esClient)
	}
	return f.rosterIndex
}

func (f *Factory) DuesSink() service.DuesSink {
	if f.clickhouseClient == nil {
		return nil
	}
	if f.duesSink == nil {
		f.duesSink = analytics.NewDuesSink(f.clickhouseClient)
	}
	return f.duesSink
}

func (f *Factory) eventPublisher() service.EventPublisher {
	if f.kafkaProducer == nil {
		return nil
	}
	return f.kafkaProducer
}

func (f *Factory) CredentialService() *service.CredentialService {
	if f.credentialService == nil {
		f.credentialService = service.NewCredentialService(
			f.MemberRepository(),
			f.ManagementRepository(),
			f.DuesRepository(),
			f.hasher,
			f.encryptionManager,
			f.eventPublisher(),
			f.RosterIndex(),
		)
	}
	return f.credentialService
}

func (f *Factory) VerificationService() *service.VerificationService {
	if f.verificationService == nil {
		var provider verify.CodeProvider = verify.NewDevProvider()
		f.verificationService = service.NewVerificationService(
			f.VerificationCache(),
			provider,
			f.config.Club,
		)
	}
	return f.verificationService
}

func (f *Factory) DirectoryService() *service.DirectoryService {
	if f.directoryService == nil {
		f.directoryService = service.NewDirectoryService(
			f.MemberRepository(),
			f.eventPublisher(),
			f.RosterIndex(),
		)
	}
	return f.directoryService
}

func (f *Factory) DuesService() *service.DuesService {
	if f.duesService == nil {
		f.duesService = service.NewDuesService(
			f.MemberRepository(),
			f.ManagementRepository(),
			f.DuesRepository(),
			f.eventPublisher(),
			f.DuesSink(),
		)
	}
	return f.duesService
}

// SeedManagement makes sure the singleton management row exists before the
// server starts taking admissions.
func (f *Factory) SeedManagement(ctx context.Context) error {
	return f.ManagementRepository().SeedDefault(ctx)
}

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
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

// IsHealthy reports whether the hard dependencies are reachable. Kafka,
// Elasticsearch, and ClickHouse are advisory.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	delete(healthErrors, "elasticsearch")
	delete(healthErrors, "clickhouse")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Sync()
		util.Info("Factory shutdown completed")
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
