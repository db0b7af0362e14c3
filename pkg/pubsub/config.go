package pubsub

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// KafkaConfig holds Kafka-specific configuration.
type KafkaConfig struct {
	Brokers    string `mapstructure:"brokers"`
	GroupID    string `mapstructure:"group_id"`
	Topic      string `mapstructure:"topic"`
	Partitions int    `mapstructure:"partitions"`
	// InstanceID is appended to GroupID so every process sees every event.
	InstanceID string `mapstructure:"instance_id"`
}

// Config holds the configuration for the pub/sub system.
type Config struct {
	Driver string      `mapstructure:"driver"` // "redis", "kafka"
	Redis  RedisConfig `mapstructure:"redis"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
}

// RedisConfig holds Redis-specific configuration.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Driver: "redis",
		Redis: RedisConfig{
			Address:      "localhost:6379",
			PoolSize:     10,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			GroupID:    "picpipe-broadcast",
			Topic:      "project-events",
			Partitions: 4,
		},
	}
}

// NewPubSub creates a PubSub for cfg.Driver. With the redis driver a non-nil
// client is reused instead of dialing a new one.
func NewPubSub(cfg Config, client *redis.Client) (PubSub, error) {
	switch cfg.Driver {
	case "kafka":
		return NewKafkaPubSub(cfg.Kafka)
	default:
		if client != nil {
			return NewRedisPubSubFromClient(client), nil
		}
		return NewRedisPubSub(cfg.Redis)
	}
}
