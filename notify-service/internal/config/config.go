package config

import (
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"

	pkgconfig "github.com/weiawesome/picpipe/pkg/config"
	"github.com/weiawesome/picpipe/pkg/database"
	"github.com/weiawesome/picpipe/pkg/log"
	"github.com/weiawesome/picpipe/pkg/pubsub"
	"github.com/weiawesome/picpipe/pkg/storage"
	"github.com/weiawesome/picpipe/pkg/task"
)

type Config struct {
	InstanceID string          `mapstructure:"instance_id"`
	Server     ServerConfig    `mapstructure:"server"`
	WebSocket  WebSocketConfig `mapstructure:"websocket"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Broadcast  pubsub.Config   `mapstructure:"broadcast"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	Storage    storage.Config  `mapstructure:"storage"`
	Store      StoreConfig     `mapstructure:"store"`
	URLs       URLConfig       `mapstructure:"urls"`
	Log        log.Config      `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

// RedisConfig is the subscription store. KeyPrefix starts every
// "{prefix}:{conn}:subscription:{project}" key.
type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type KafkaConfig struct {
	Brokers            string `mapstructure:"brokers"`
	Partitions         int    `mapstructure:"partitions"`
	GroupID            string `mapstructure:"group_id"`
	ObjectEventsTopic  string `mapstructure:"object_events_topic"`
	NotificationsTopic string `mapstructure:"notifications_topic"`
	TasksTopic         string `mapstructure:"tasks_topic"`
}

// StoreConfig selects the project store: "mongo" or "sql".
type StoreConfig struct {
	Type  string          `mapstructure:"type"`
	Mongo MongoConfig     `mapstructure:"mongo"`
	SQL   database.Config `mapstructure:"sql"`
}

type MongoConfig struct {
	URI        string        `mapstructure:"uri"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type URLConfig struct {
	DownloadTTL time.Duration `mapstructure:"download_ttl"`
	UploadTTL   time.Duration `mapstructure:"upload_ttl"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load(pkgconfig.GetEnv("CONFIG_PATH", "./config"), "notify")
	if err != nil {
		return nil, err
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "websocket")
	v.SetDefault("broadcast.driver", "redis")
	v.SetDefault("broadcast.kafka.group_id", "picpipe-broadcast")
	v.SetDefault("broadcast.kafka.topic", "project-events")
	v.SetDefault("broadcast.kafka.partitions", 4)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.partitions", 4)
	v.SetDefault("kafka.group_id", "notify-service")
	v.SetDefault("kafka.object_events_topic", task.TopicObjectEvents)
	v.SetDefault("kafka.notifications_topic", task.TopicNotifications)
	v.SetDefault("kafka.tasks_topic", task.TopicTasks)
	v.SetDefault("storage.type", "s3")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.bucket", "images")
	v.SetDefault("storage.s3.use_path_style", true)
	v.SetDefault("storage.local.base_path", "./data/storage")
	v.SetDefault("store.type", "mongo")
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "picpipe")
	v.SetDefault("store.mongo.collection", "projects")
	v.SetDefault("store.mongo.timeout", "10s")
	v.SetDefault("store.sql.driver", "sqlite")
	v.SetDefault("store.sql.file_path", "./data/picpipe.db")
	v.SetDefault("urls.download_ttl", "168h")
	v.SetDefault("urls.upload_ttl", "24h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "notify-service")

	if err := pkgconfig.BindEnvs(v,
		"instance_id", "INSTANCE_ID",
		"server.port", "PORT",
		"redis.address", "REDIS_ADDRESS",
		"redis.password", "REDIS_PASSWORD",
		"broadcast.driver", "BROADCAST_DRIVER",
		"broadcast.kafka.brokers", "KAFKA_BROKERS",
		"kafka.brokers", "KAFKA_BROKERS",
		"storage.type", "STORAGE_TYPE",
		"storage.s3.endpoint", "S3_ENDPOINT",
		"storage.s3.bucket", "S3_BUCKET",
		"storage.s3.access_key_id", "S3_ACCESS_KEY_ID",
		"storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY",
		"storage.s3.public_url", "S3_PUBLIC_URL",
		"store.type", "STORE_TYPE",
		"store.mongo.uri", "MONGO_URI",
		"store.sql.driver", "DB_DRIVER",
		"store.sql.host", "DB_HOST",
		"store.sql.port", "DB_PORT",
		"store.sql.user", "DB_USER",
		"store.sql.password", "DB_PASSWORD",
		"store.sql.dbname", "DB_NAME",
		"log.level", "LOG_LEVEL",
	); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Store.Mongo.Timeout = pkgconfig.Duration(v, "store.mongo.timeout", 10*time.Second)
	cfg.URLs.DownloadTTL = pkgconfig.Duration(v, "urls.download_ttl", 7*24*time.Hour)
	cfg.URLs.UploadTTL = pkgconfig.Duration(v, "urls.upload_ttl", 24*time.Hour)

	cfg.InstanceID = instanceID(cfg.InstanceID)
	cfg.Broadcast.Redis.Address = cfg.Redis.Address
	cfg.Broadcast.Redis.Password = cfg.Redis.Password
	cfg.Broadcast.Redis.DB = cfg.Redis.DB
	cfg.Broadcast.Kafka.InstanceID = cfg.InstanceID
	if cfg.Broadcast.Kafka.Brokers == "" {
		cfg.Broadcast.Kafka.Brokers = cfg.Kafka.Brokers
	}

	return &cfg, nil
}

var unsafeID = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// instanceID keeps connection ids free of key and glob separators.
func instanceID(configured string) string {
	id := configured
	if id == "" {
		id, _ = os.Hostname()
	}
	if id == "" {
		id = uuid.NewString()[:8]
	}
	return unsafeID.ReplaceAllString(id, "-")
}
