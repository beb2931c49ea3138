package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用程序配置结构
type Config struct {
	PodID     string          `mapstructure:"pod_id"`
	Server    ServerConfig    `mapstructure:"server"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	OCPP      OCPPConfig      `mapstructure:"ocpp"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	WebSocketPath  string        `mapstructure:"websocket_path"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxConnections int           `mapstructure:"max_connections"`
}

// WebSocketConfig WebSocket连接配置
type WebSocketConfig struct {
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	EnableCompression bool          `mapstructure:"enable_compression"`
	CheckOrigin       bool          `mapstructure:"check_origin"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	SendBufferSize    int           `mapstructure:"send_buffer_size"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	Brokers       []string       `mapstructure:"brokers"`
	EventTopic    string         `mapstructure:"event_topic"`
	CommandTopic  string         `mapstructure:"command_topic"`
	ConsumerGroup string         `mapstructure:"consumer_group"`
	Producer      ProducerConfig `mapstructure:"producer"`
	Consumer      ConsumerConfig `mapstructure:"consumer"`
}

// ProducerConfig Kafka生产者配置
type ProducerConfig struct {
	RetryMax       int           `mapstructure:"retry_max"`
	ReturnSuccess  bool          `mapstructure:"return_successes"`
	FlushFrequency time.Duration `mapstructure:"flush_frequency"`
}

// ConsumerConfig Kafka消费者配置
type ConsumerConfig struct {
	ReturnErrors   bool   `mapstructure:"return_errors"`
	OffsetsInitial string `mapstructure:"offsets_initial"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

// MetricsConfig 监控指标配置
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// OCPPConfig OCPP协议配置
type OCPPConfig struct {
	HeartbeatInterval   time.Duration `mapstructure:"heartbeat_interval"`
	CallTimeout         time.Duration `mapstructure:"call_timeout"`
	MaxInflightCalls    int           `mapstructure:"max_inflight_calls"`
	MessagesPerSecond   float64       `mapstructure:"messages_per_second"`
	MessageBurst        int           `mapstructure:"message_burst"`
	ConnectionTTL       time.Duration `mapstructure:"connection_ttl"`
	RegistrationStatus  string        `mapstructure:"registration_status"`
	AcceptUnknownIdTags bool          `mapstructure:"accept_unknown_id_tags"`
	VendorIDs           []string      `mapstructure:"vendor_ids"`
}

// CacheConfig 授权数据本地缓存配置
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxSize         int           `mapstructure:"max_size"`
	ShardCount      int           `mapstructure:"shard_count"`
	IdTagTTL        time.Duration `mapstructure:"id_tag_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// StorageConfig 存储后端选择
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

const (
	StorageBackendRedis  = "redis"
	StorageBackendMemory = "memory"
)

// Load 加载配置：默认值 < 配置文件 < CSMS_ 前缀环境变量
func Load() (*Config, error) {
	SetDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("CSMS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults 注册全部默认值
func SetDefaults() {
	viper.SetDefault("pod_id", "csms-local")

	// 服务器配置
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.websocket_path", "/ocpp")
	viper.SetDefault("server.read_timeout", "60s")
	viper.SetDefault("server.write_timeout", "60s")
	viper.SetDefault("server.max_connections", 10000)

	// WebSocket配置
	viper.SetDefault("websocket.read_buffer_size", 4096)
	viper.SetDefault("websocket.write_buffer_size", 4096)
	viper.SetDefault("websocket.handshake_timeout", "10s")
	viper.SetDefault("websocket.ping_interval", "60s")
	viper.SetDefault("websocket.pong_timeout", "10s")
	viper.SetDefault("websocket.max_message_size", 65536)
	viper.SetDefault("websocket.enable_compression", false)
	viper.SetDefault("websocket.check_origin", false)
	viper.SetDefault("websocket.send_buffer_size", 64)

	// Redis配置
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.key_prefix", "csms:")
	viper.SetDefault("redis.pool_size", 100)
	viper.SetDefault("redis.min_idle_conns", 10)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")

	// Kafka配置
	viper.SetDefault("kafka.enabled", true)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.event_topic", "csms-events")
	viper.SetDefault("kafka.command_topic", "csms-commands")
	viper.SetDefault("kafka.consumer_group", "csms-commands")
	viper.SetDefault("kafka.producer.retry_max", 5)
	viper.SetDefault("kafka.producer.return_successes", false)
	viper.SetDefault("kafka.producer.flush_frequency", "500ms")
	viper.SetDefault("kafka.consumer.return_errors", true)
	viper.SetDefault("kafka.consumer.offsets_initial", "newest")

	// 日志配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.async", false)

	// 监控配置
	viper.SetDefault("metrics.addr", ":9090")

	// OCPP配置
	viper.SetDefault("ocpp.heartbeat_interval", "300s")
	viper.SetDefault("ocpp.call_timeout", "30s")
	viper.SetDefault("ocpp.max_inflight_calls", 16)
	viper.SetDefault("ocpp.messages_per_second", 20)
	viper.SetDefault("ocpp.message_burst", 40)
	viper.SetDefault("ocpp.connection_ttl", "10m")
	viper.SetDefault("ocpp.registration_status", "Accepted")
	viper.SetDefault("ocpp.accept_unknown_id_tags", false)
	viper.SetDefault("ocpp.vendor_ids", []string{})

	// 存储配置
	viper.SetDefault("storage.backend", StorageBackendRedis)

	// 缓存配置
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.max_size", 10000)
	viper.SetDefault("cache.shard_count", 16)
	viper.SetDefault("cache.id_tag_ttl", "5m")
	viper.SetDefault("cache.cleanup_interval", "1m")
}

// Validate 检查配置取值
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.WebSocketPath, "/") {
		return fmt.Errorf("websocket path must start with '/': %q", c.Server.WebSocketPath)
	}
	switch c.Storage.Backend {
	case StorageBackendRedis, StorageBackendMemory:
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}
	switch c.OCPP.RegistrationStatus {
	case "Accepted", "Pending", "Rejected":
	default:
		return fmt.Errorf("invalid registration status: %q", c.OCPP.RegistrationStatus)
	}
	if c.OCPP.HeartbeatInterval < time.Second {
		return fmt.Errorf("heartbeat interval too short: %s", c.OCPP.HeartbeatInterval)
	}
	if c.OCPP.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive: %s", c.OCPP.CallTimeout)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka enabled but no brokers configured")
	}
	return nil
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetMetricsAddr 获取监控地址
func (c *Config) GetMetricsAddr() string {
	return c.Metrics.Addr
}
