package config

import (
	pkgconfig "github.com/weiawesome/picpipe/pkg/config"
	"github.com/weiawesome/picpipe/pkg/log"
	"github.com/weiawesome/picpipe/pkg/storage"
	"github.com/weiawesome/picpipe/pkg/task"
)

type Config struct {
	Health    HealthConfig    `mapstructure:"health"`
	Log       log.Config      `mapstructure:"log"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Storage   storage.Config  `mapstructure:"storage"`
	Processor ProcessorConfig `mapstructure:"processor"`
}

// HealthConfig is the listener for /health and /metrics.
type HealthConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type KafkaConfig struct {
	Brokers            string `mapstructure:"brokers"`
	Partitions         int    `mapstructure:"partitions"`
	TasksTopic         string `mapstructure:"tasks_topic"`
	GroupID            string `mapstructure:"group_id"`
	NotificationsTopic string `mapstructure:"notifications_topic"`
}

type ProcessorConfig struct {
	Sizes       []SizeConfig    `mapstructure:"sizes"`
	JpegQuality int             `mapstructure:"jpeg_quality"`
	Lifecycle   LifecycleConfig `mapstructure:"lifecycle"`
}

// SizeConfig is one derived version: the image is fitted inside Width x Height.
type SizeConfig struct {
	Name   string `mapstructure:"name"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
}

// LifecycleConfig tags originals once every version exists. An empty
// TagKey disables tagging.
type LifecycleConfig struct {
	TagKey   string `mapstructure:"tag_key"`
	TagValue string `mapstructure:"tag_value"`
}

// DefaultSizes are produced, in this order, when none are configured.
func DefaultSizes() []SizeConfig {
	return []SizeConfig{
		{Name: "thumb", Width: 150, Height: 120},
		{Name: "big_thumb", Width: 700, Height: 700},
		{Name: "big_1920", Width: 1920, Height: 1080},
		{Name: "d2500", Width: 2500, Height: 2500},
	}
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load(pkgconfig.GetEnv("CONFIG_PATH", "./config"), "resize")
	if err != nil {
		return nil, err
	}

	v.SetDefault("health.host", "0.0.0.0")
	v.SetDefault("health.port", 8081)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "resize-service")
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.partitions", 4)
	v.SetDefault("kafka.tasks_topic", task.TopicTasks)
	v.SetDefault("kafka.group_id", "resize-service")
	v.SetDefault("kafka.notifications_topic", task.TopicNotifications)
	v.SetDefault("storage.type", "s3")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.bucket", "images")
	v.SetDefault("storage.s3.use_path_style", true)
	v.SetDefault("storage.local.base_path", "./data/storage")
	v.SetDefault("processor.jpeg_quality", 85)

	if err := pkgconfig.BindEnvs(v,
		"health.port", "HEALTH_PORT",
		"kafka.brokers", "KAFKA_BROKERS",
		"kafka.tasks_topic", "KAFKA_TASKS_TOPIC",
		"kafka.group_id", "KAFKA_GROUP_ID",
		"kafka.notifications_topic", "KAFKA_NOTIFICATIONS_TOPIC",
		"storage.type", "STORAGE_TYPE",
		"storage.s3.endpoint", "S3_ENDPOINT",
		"storage.s3.region", "S3_REGION",
		"storage.s3.bucket", "S3_BUCKET",
		"storage.s3.access_key_id", "S3_ACCESS_KEY_ID",
		"storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY",
		"processor.lifecycle.tag_key", "LIFECYCLE_TAG_KEY",
		"processor.lifecycle.tag_value", "LIFECYCLE_TAG_VALUE",
		"log.level", "LOG_LEVEL",
	); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if len(cfg.Processor.Sizes) == 0 {
		cfg.Processor.Sizes = DefaultSizes()
	}

	return &cfg, nil
}
