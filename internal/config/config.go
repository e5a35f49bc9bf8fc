package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the club-ledger service.
type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	KMS           KMSConfig
	Hashing       HashingConfig
	Bucketing     BucketingConfig
	Club          ClubConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers    []string
	EventTopic string
}

type ElasticsearchConfig struct {
	URL         string
	Username    string
	Password    string
	RosterIndex string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type HashingConfig struct {
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
}

type BucketingConfig struct {
	MemberBuckets int
}

// ClubConfig carries club-level protocol settings: how long a verification
// session lives, how many confirm attempts it survives, and the code length
// the SMS provider is asked to deliver.
type ClubConfig struct {
	VerificationTTL      time.Duration
	VerificationAttempts int
	CodeLength           int
}

var (
	global *Config
	once   sync.Once
)

// LoadConfig reads configuration from the environment, loading a .env file
// first when present.
func LoadConfig() *Config {
	once.Do(func() {
		_ = godotenv.Load()

		global = &Config{
			Environment: getEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Host:         getEnv("SERVER_HOST", "0.0.0.0"),
				Port:         getEnvInt("SERVER_PORT", 8080),
				TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
				Domain:       getEnv("SERVER_DOMAIN", "localhost"),
				CertFile:     getEnv("SERVER_CERT_FILE", ""),
				KeyFile:      getEnv("SERVER_KEY_FILE", ""),
				AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "./certs"),
				Email:        getEnv("SERVER_ACME_EMAIL", ""),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "console"),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
			},
			Scylla: ScyllaConfig{
				Nodes:    getEnvList("SCYLLA_NODES", "localhost:9042"),
				Keyspace: getEnv("SCYLLA_KEYSPACE", "club_ledger"),
				Username: getEnv("SCYLLA_USERNAME", ""),
				Password: getEnv("SCYLLA_PASSWORD", ""),
			},
			Kafka: KafkaConfig{
				Brokers:    getEnvList("KAFKA_BROKERS", "localhost:9092"),
				EventTopic: getEnv("KAFKA_EVENT_TOPIC", "club-events"),
			},
			Elasticsearch: ElasticsearchConfig{
				URL:         getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
				Username:    getEnv("ELASTICSEARCH_USERNAME", ""),
				Password:    getEnv("ELASTICSEARCH_PASSWORD", ""),
				RosterIndex: getEnv("ELASTICSEARCH_ROSTER_INDEX", "club-roster"),
			},
			Clickhouse: ClickhouseConfig{
				URL:      getEnv("CLICKHOUSE_URL", "http://localhost:8123"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
				Database: getEnv("CLICKHOUSE_DATABASE", "club_analytics"),
			},
			KMS: KMSConfig{
				Enabled: getEnvBool("KMS_ENABLED", false),
				KeyID:   getEnv("KMS_KEY_ID", ""),
				Region:  getEnv("KMS_REGION", "us-east-1"),
			},
			Hashing: HashingConfig{
				Argon2MemoryCost:  getEnvInt("ARGON2_MEMORY_COST", 65536),
				Argon2TimeCost:    getEnvInt("ARGON2_TIME_COST", 3),
				Argon2Parallelism: getEnvInt("ARGON2_PARALLELISM", 2),
			},
			Bucketing: BucketingConfig{
				MemberBuckets: getEnvInt("MEMBER_BUCKETS", 64),
			},
			Club: ClubConfig{
				VerificationTTL:      getEnvDuration("VERIFICATION_TTL", 5*time.Minute),
				VerificationAttempts: getEnvInt("VERIFICATION_MAX_ATTEMPTS", 5),
				CodeLength:           getEnvInt("VERIFICATION_CODE_LENGTH", 6),
			},
		}
	})

	return global
}

// Get returns the loaded configuration, loading it on first use.
func Get() *Config {
	if global == nil {
		return LoadConfig()
	}
	return global
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
