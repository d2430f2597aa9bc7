// Package config provides configuration structures and validation for the
// gift certificate ledger binaries. Values come from an optional <name>.env
// file and the process environment.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration. Both binaries load the
// same structure; sections a binary does not use keep their defaults.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Redis       RedisConfig
	Ledger      LedgerConfig
	Reconciler  ReconcilerConfig
	Gateway     GatewayConfig
	SMS         SMSConfig
	Telegram    TelegramConfig
	WorkerPool  WorkerPoolConfig
	Metrics     MetricsConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

// KafkaConfig contains broker, topic and consumer group settings.
type KafkaConfig struct {
	Brokers               string
	SMSTopic              string
	TelegramTopic         string
	SMSConsumerGroup      string
	TelegramConsumerGroup string
	NumPartitions         int
	ReplicationFactor     int
	MinBytes              int
	MaxBytes              int
	MaxWait               time.Duration
	ProducerMaxAttempts   int
	// ProducerWriteTimeout bounds one synchronous write including the wait
	// for all in-sync replicas.
	ProducerWriteTimeout time.Duration
	DLQTopic             string // empty disables dead-lettering
}

// BrokerList splits the comma separated Brokers setting.
func (k *KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

// MongoDBConfig contains MongoDB configuration for the delivery journal.
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// RedisConfig contains the ancillary cache settings.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
	ViewTTL   time.Duration // lifetime of cached certificate views
}

// LedgerConfig holds the charge protocol parameters.
type LedgerConfig struct {
	ConfirmCodeLength   int
	TransactionValidity time.Duration
}

// ReconcilerConfig holds the background sweep schedule.
type ReconcilerConfig struct {
	ExpiryInterval time.Duration
	SweepTimeout   time.Duration
}

// GatewayConfig holds the outbound HTTP retry policy.
type GatewayConfig struct {
	RequestTimeout time.Duration
	AllowedRetries int
	Backoff        time.Duration
	KeepAlive      bool
}

// SMSConfig holds the SMS provider account and polling schedule.
type SMSConfig struct {
	Enabled         bool
	BaseURL         string
	SendPath        string
	CheckPath       string
	BalancePath     string
	Login           string
	Password        string
	SenderName      string
	TextTemplate    string
	CheckAttempts   int
	CheckBaseDelay  time.Duration
	CheckMaxDelay   time.Duration
	BalanceCacheTTL time.Duration
}

// TelegramConfig holds the bot API settings.
type TelegramConfig struct {
	BaseURL string
	Token   string
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int
}

// MetricsConfig controls the side port the worker exposes /metrics on.
type MetricsConfig struct {
	Port int
}

// validate collects every violation so a misconfigured deployment reports
// all of them at once.
func (c *Config) validate() error {
	var validationErrors []string
	check := func(ok bool, msg string) {
		if !ok {
			validationErrors = append(validationErrors, msg)
		}
	}

	check(c.Server.Port > 0, "SERVER_PORT must be greater than 0")
	check(c.Server.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	check(c.Server.ReadTimeout > 0, "SERVER_READ_TIMEOUT must be greater than 0")
	check(c.Server.WriteTimeout > 0, "SERVER_WRITE_TIMEOUT must be greater than 0")
	check(c.Server.IdleTimeout > 0, "SERVER_IDLE_TIMEOUT must be greater than 0")

	check(c.Kafka.Brokers != "", "KAFKA_BROKERS is required")
	check(c.Kafka.SMSTopic != "", "KAFKA_SMS_TOPIC is required")
	check(c.Kafka.TelegramTopic != "", "KAFKA_TELEGRAM_TOPIC is required")
	check(c.Kafka.SMSConsumerGroup != "", "KAFKA_SMS_CONSUMER_GROUP is required")
	check(c.Kafka.TelegramConsumerGroup != "", "KAFKA_TELEGRAM_CONSUMER_GROUP is required")
	check(c.Kafka.MinBytes > 0, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	check(c.Kafka.MaxBytes > 0, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	check(c.Kafka.MaxWait > 0, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	check(c.Kafka.ProducerMaxAttempts > 0, "KAFKA_PRODUCER_MAX_ATTEMPTS must be greater than 0")
	check(c.Kafka.ProducerWriteTimeout > 0, "KAFKA_PRODUCER_WRITE_TIMEOUT must be greater than 0")

	check(c.Postgres.URL != "", "POSTGRES_URL is required")
	check(c.Postgres.MaxConns > 0, "POSTGRES_MAX_CONNS must be greater than 0")
	check(c.Postgres.MinConns > 0, "POSTGRES_MIN_CONNS must be greater than 0")
	check(c.Postgres.ConnMaxLifetime > 0, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	check(c.Postgres.ConnMaxIdleTime > 0, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")

	check(c.MongoDB.URI != "", "MONGO_URI is required")
	check(c.MongoDB.Database != "", "MONGO_DATABASE is required")
	check(c.MongoDB.Timeout > 0, "MONGO_TIMEOUT must be greater than 0")
	check(c.MongoDB.MaxPoolSize > 0, "MONGO_MAX_POOL_SIZE must be greater than 0")

	check(c.Redis.Addr != "", "REDIS_ADDR is required")
	check(c.Redis.Namespace != "", "REDIS_NAMESPACE is required")

	check(c.Ledger.ConfirmCodeLength >= 4 && c.Ledger.ConfirmCodeLength <= 12, "LEDGER_CONFIRM_CODE_LENGTH must be between 4 and 12")
	check(c.Ledger.TransactionValidity > 0, "LEDGER_TRANSACTION_VALIDITY must be greater than 0")

	check(c.Reconciler.ExpiryInterval > 0, "RECONCILER_EXPIRY_INTERVAL must be greater than 0")
	check(c.Reconciler.SweepTimeout > 0, "RECONCILER_SWEEP_TIMEOUT must be greater than 0")

	check(c.Gateway.RequestTimeout > 0, "GATEWAY_REQUEST_TIMEOUT must be greater than 0")
	check(c.Gateway.AllowedRetries >= 0, "GATEWAY_ALLOWED_RETRIES must not be negative")
	check(c.Gateway.Backoff >= 0, "GATEWAY_BACKOFF must not be negative")

	if c.SMS.Enabled {
		check(c.SMS.BaseURL != "", "SMS_BASE_URL is required when SMS_ENABLED is set")
		check(c.SMS.Login != "", "SMS_LOGIN is required when SMS_ENABLED is set")
		check(c.SMS.Password != "", "SMS_PASSWORD is required when SMS_ENABLED is set")
	}
	check(c.SMS.TextTemplate != "", "SMS_TEXT_TEMPLATE is required")
	check(c.SMS.CheckAttempts > 0, "SMS_CHECK_ATTEMPTS must be greater than 0")
	check(c.SMS.CheckBaseDelay > 0, "SMS_CHECK_BASE_DELAY must be greater than 0")
	check(c.SMS.CheckMaxDelay >= c.SMS.CheckBaseDelay, "SMS_CHECK_MAX_DELAY must not be lower than SMS_CHECK_BASE_DELAY")

	check(c.Telegram.BaseURL != "", "TELEGRAM_BASE_URL is required")

	check(c.WorkerPool.Size > 0, "WORKER_POOL_SIZE must be greater than 0")
	check(c.Metrics.Port > 0, "METRICS_PORT must be greater than 0")

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}
	return nil
}
