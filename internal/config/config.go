package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once at startup and handed to every component; nothing
// reads the environment after LoadConfig returns.
type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Gate          GateConfig
	Store         StoreConfig
	Scylla        ScyllaConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	KMS           KMSConfig
	Encryption    EncryptionConfig
	Hashing       HashingConfig
	Bucketing     BucketingConfig
	SMTP          SMTPConfig
	Twilio        TwilioConfig
}

type ServerConfig struct {
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
	// RequireHTTPS rejects plaintext requests with 426.
	RequireHTTPS   bool
	AllowedOrigins []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// GateConfig holds the access-gate policy: which sites exist, who is an
// admin, and how long codes and sessions live.
type GateConfig struct {
	Sites             []string
	SiteRedirects     map[string]string
	AdminEmails       []string
	AdminPhones       []string
	CodeTTL           time.Duration
	SessionTTL        time.Duration
	AdminLogLimit     int
	MaxVerifyAttempts int
	AttemptWindow     time.Duration
}

type StoreConfig struct {
	// Backend is "scylla" or "memory".
	Backend string
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
	// CreateSchema runs the CREATE TABLE IF NOT EXISTS statements on startup.
	CreateSchema bool
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type ElasticsearchConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Index    string
}

type ClickhouseConfig struct {
	Enabled  bool
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

type EncryptionConfig struct {
	// Key is a hex-encoded 32-byte AES key used when KMS is disabled.
	Key string
}

type HashingConfig struct {
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
	Pepper            string
	PepperVersion     int
}

type BucketingConfig struct {
	LogBuckets int
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// LoadConfig reads configuration from environment variables, loading a .env
// file first outside production.
func LoadConfig() *Config {
	env := getEnv("ENVIRONMENT", "development")
	if strings.ToLower(env) != "production" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found; continuing with environment variables")
		}
	}

	cfg := &Config{
		Environment: env,
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			TLSPort:        getEnvAsInt("SERVER_TLS_PORT", 8443),
			EnableTLS:      getEnvAsBool("SERVER_ENABLE_TLS", false),
			AutoCert:       getEnvAsBool("SERVER_AUTOCERT", false),
			Domain:         getEnv("SERVER_DOMAIN", "localhost"),
			CertFile:       getEnv("SERVER_CERT_FILE", ""),
			KeyFile:        getEnv("SERVER_KEY_FILE", ""),
			AutoCertDir:    getEnv("SERVER_AUTOCERT_DIR", "./certs"),
			Email:          getEnv("SERVER_ACME_EMAIL", ""),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequireHTTPS:   getEnvAsBool("SERVER_REQUIRE_HTTPS", false),
			AllowedOrigins: getEnvAsSlice("SERVER_ALLOWED_ORIGINS", []string{"https://*"}),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Gate: GateConfig{
			Sites:             getEnvAsSlice("GATE_SITES", DefaultSites()),
			SiteRedirects:     getEnvAsMap("GATE_SITE_REDIRECTS", DefaultSiteRedirects()),
			AdminEmails:       getEnvAsSlice("GATE_ADMIN_EMAILS", nil),
			AdminPhones:       getEnvAsSlice("GATE_ADMIN_PHONES", nil),
			CodeTTL:           getEnvAsDuration("GATE_CODE_TTL", 20*time.Minute),
			SessionTTL:        getEnvAsDuration("GATE_SESSION_TTL", 20*time.Minute),
			AdminLogLimit:     getEnvAsInt("GATE_ADMIN_LOG_LIMIT", 500),
			MaxVerifyAttempts: getEnvAsInt("GATE_MAX_VERIFY_ATTEMPTS", 0),
			AttemptWindow:     getEnvAsDuration("GATE_ATTEMPT_WINDOW", 20*time.Minute),
		},
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", "memory"),
		},
		Scylla: ScyllaConfig{
			Nodes:        getEnvAsSlice("SCYLLA_NODES", []string{"127.0.0.1:9042"}),
			Keyspace:     getEnv("SCYLLA_KEYSPACE", "access_gate"),
			Username:     getEnv("SCYLLA_USERNAME", ""),
			Password:     getEnv("SCYLLA_PASSWORD", ""),
			CreateSchema: getEnvAsBool("SCYLLA_CREATE_SCHEMA", true),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 20),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvAsBool("KAFKA_ENABLED", false),
			Brokers: getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_AUDIT_TOPIC", "access-gate.audit"),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:  getEnvAsBool("ELASTICSEARCH_ENABLED", false),
			URL:      getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username: getEnv("ELASTICSEARCH_USERNAME", ""),
			Password: getEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:    getEnv("ELASTICSEARCH_AUDIT_INDEX", "access-gate-audit"),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "access_gate"),
		},
		KMS: KMSConfig{
			Enabled: getEnvAsBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("KMS_REGION", "us-east-1"),
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		Hashing: HashingConfig{
			Argon2MemoryCost:  getEnvAsInt("ARGON2_MEMORY_COST", 64*1024),
			Argon2TimeCost:    getEnvAsInt("ARGON2_TIME_COST", 1),
			Argon2Parallelism: getEnvAsInt("ARGON2_PARALLELISM", 2),
			Pepper:            getEnv("CODE_PEPPER", ""),
			PepperVersion:     getEnvAsInt("CODE_PEPPER_VERSION", 1),
		},
		Bucketing: BucketingConfig{
			LogBuckets: getEnvAsInt("LOG_BUCKETS", 8),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
		},
		Twilio: TwilioConfig{
			AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			FromNumber: getEnv("TWILIO_PHONE_NUMBER", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg
}

// DefaultSites is the allow-list of protected sites.
func DefaultSites() []string {
	return []string{"plasmic", "cubix", "fallen-futuristics", "atlas", "la-vie"}
}

func DefaultSiteRedirects() map[string]string {
	return map[string]string{
		"plasmic":            "https://plasmic-security.netlify.app/",
		"cubix":              "https://cubix-finance.netlify.app/",
		"fallen-futuristics": "https://fallen-futuristics.netlify.app/",
		"atlas":              "https://atlas-pharmaceuticals.netlify.app/",
		"la-vie":             "https://lavie-health.netlify.app/",
	}
}

// Validate checks cross-field constraints and production-only requirements.
func (c *Config) Validate() error {
	if len(c.Gate.Sites) == 0 {
		return fmt.Errorf("GATE_SITES must list at least one site")
	}
	if c.Gate.CodeTTL <= 0 || c.Gate.SessionTTL <= 0 {
		return fmt.Errorf("GATE_CODE_TTL and GATE_SESSION_TTL must be positive")
	}
	if c.Gate.AdminLogLimit <= 0 {
		return fmt.Errorf("GATE_ADMIN_LOG_LIMIT must be positive")
	}
	if c.Gate.MaxVerifyAttempts < 0 {
		return fmt.Errorf("GATE_MAX_VERIFY_ATTEMPTS must not be negative")
	}
	if c.Gate.MaxVerifyAttempts > 0 && !c.Redis.Enabled {
		return fmt.Errorf("GATE_MAX_VERIFY_ATTEMPTS requires REDIS_ENABLED")
	}
	switch c.Store.Backend {
	case "scylla", "memory":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	if c.Bucketing.LogBuckets <= 0 {
		return fmt.Errorf("LOG_BUCKETS must be positive")
	}

	if c.IsProduction() {
		var missing []string
		if c.Store.Backend != "scylla" {
			missing = append(missing, "STORE_BACKEND=scylla")
		}
		if !c.KMS.Enabled && c.Encryption.Key == "" {
			missing = append(missing, "ENCRYPTION_KEY or KMS_ENABLED")
		}
		if c.KMS.Enabled && c.KMS.KeyID == "" {
			missing = append(missing, "KMS_KEY_ID")
		}
		if c.Hashing.Pepper == "" {
			missing = append(missing, "CODE_PEPPER")
		}
		if len(c.Gate.AdminEmails) == 0 && len(c.Gate.AdminPhones) == 0 {
			missing = append(missing, "GATE_ADMIN_EMAILS or GATE_ADMIN_PHONES")
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing required production settings: %v", missing)
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.ToLower(c.Environment) == "production"
}

func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.Environment) == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(strValue)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as integer. Using default value.", key)
		return defaultValue
	}
	return intValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(strValue)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as bool. Using default value.", key)
		return defaultValue
	}
	return boolValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(strValue)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as duration. Using default value.", key)
		return defaultValue
	}
	return d
}

// getEnvAsSlice splits a comma-separated value, dropping empty items.
func getEnvAsSlice(key string, defaultValue []string) []string {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(strValue, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvAsMap parses "a=x,b=y".
func getEnvAsMap(key string, defaultValue map[string]string) map[string]string {
	items := getEnvAsSlice(key, nil)
	if len(items) == 0 {
		return defaultValue
	}
	out := make(map[string]string, len(items))
	for _, item := range items {
		k, v, ok := strings.Cut(item, "=")
		if !ok {
			log.Printf("Warning: ignoring malformed entry %q in %s", item, key)
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
