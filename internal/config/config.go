// Package config carrega a configuração do serviço a partir do ambiente.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	SQLitePath      string        `env:"SQLITE_PATH"         envDefault:"./billing.db"`
	PostgresDSN     string        `env:"POSTGRES_DSN"        envDefault:""`
	RedisAddr       string        `env:"REDIS_ADDR"          envDefault:"localhost:6379"`
	MongoURI        string        `env:"MONGO_URI"           envDefault:""`
	MongoDatabase   string        `env:"MONGO_DATABASE"      envDefault:"billing"`
	ClickHouseAddr  string        `env:"CLICKHOUSE_ADDR"     envDefault:""`
	KafkaBrokers    []string      `env:"KAFKA_BROKERS"       envDefault:"localhost:9092" envSeparator:","`
	UseKafka        bool          `env:"USE_KAFKA"           envDefault:"false"`
	ConsumerGroup   string        `env:"KAFKA_CONSUMER_GROUP" envDefault:"oficina-billing"`
	OutboxPeriod    time.Duration `env:"OUTBOX_PERIOD"       envDefault:"5s"`
	OutboxBackoff   time.Duration `env:"OUTBOX_BACKOFF"      envDefault:"30s"`
	OutboxLimit     int           `env:"OUTBOX_LIMIT"        envDefault:"50"`
	ConsumerPeriod  time.Duration `env:"CONSUMER_PERIOD"     envDefault:"1s"`
	ConsumerBatch   int           `env:"CONSUMER_BATCH"      envDefault:"10"`
	CacheTTL        time.Duration `env:"CACHE_TTL"           envDefault:"5m"`
	HTTPPort        string        `env:"HTTP_PORT"           envDefault:"8080"`
	EmailPadrao     string        `env:"BILLING_DEFAULT_EMAIL" envDefault:"client@example.com"`
	MetodoPagamento string        `env:"BILLING_PAYMENT_METHOD" envDefault:"CREDIT_CARD"`
	MPAccessToken   string        `env:"MERCADOPAGO_ACCESS_TOKEN" envDefault:""`
	MPSandbox       bool          `env:"MERCADOPAGO_IS_SANDBOX"   envDefault:"true"`
	MPTestEmail     string        `env:"MERCADOPAGO_TEST_EMAIL"   envDefault:"test@example.com"`
	MPUseMock       bool          `env:"MERCADOPAGO_USE_MOCK"     envDefault:"true"`
}

// LoadConfig faz o parse das variáveis de ambiente.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
