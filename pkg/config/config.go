package config

import "time"

// StoreDriver selects the backing stores of the coordinator
type StoreDriver string

const (
	// StorePostgres postgres + mongo + redis + brokers
	StorePostgres StoreDriver = "postgres"
	// StoreMemory everything in process, for local runs
	StoreMemory StoreDriver = "memory"
)

// Coordinator definition coordinator_service YAML structure
type Coordinator struct {
	Port  string      `mapstructure:"port"`
	IP    string      `mapstructure:"ip"`
	Store StoreConfig `mapstructure:"store"`
	// PprofAddr empty disables the pprof server
	PprofAddr string `mapstructure:"pprof_addr"`

	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	MongoSQL   DatabaseConfig `mapstructure:"mongo"`
	Redis      RedisConfig    `mapstructure:"redis"`
	RabbitMQ   RabbitMQConfig `mapstructure:"rabbitmq"`
	Kafka      KafkaConfig    `mapstructure:"kafka"`
	MinIO      MinIOConfig    `mapstructure:"minio"`
	JWT        JWTConfig      `mapstructure:"jwt"`

	Auction   AuctionConfig   `mapstructure:"auction"`
	Poll      PollConfig      `mapstructure:"poll"`
	Goal      GoalConfig      `mapstructure:"goal"`
	Refund    RefundConfig    `mapstructure:"refund"`
	EventBus  EventBusConfig  `mapstructure:"event_bus"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Gifts     []GiftConfig    `mapstructure:"gifts"`
}

// StoreConfig store selection
type StoreConfig struct {
	Driver StoreDriver `mapstructure:"driver"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	// Addr single node address, used when no REDIS_SENTINEL* env is present
	Addr    string `mapstructure:"addr"`
	RedisDB int    `mapstructure:"redis_db"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// RabbitMQConfig definition rabbitmq setting
type RabbitMQConfig struct {
	IP            string        `mapstructure:"ip"`
	Port          string        `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	Queue         string        `mapstructure:"queue"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// KafkaConfig definition kafka setting
type KafkaConfig struct {
	Brokers       []string      `mapstructure:"brokers"`
	Topic         string        `mapstructure:"topic"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// MinIOConfig definition minio setting
type MinIOConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	BucketName    string        `mapstructure:"bucket_name"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	IconURLTTL    time.Duration `mapstructure:"icon_url_ttl"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// JWTConfig identity provider setting
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// AuctionConfig bid acceptance policy
type AuctionConfig struct {
	// MinIncrement a bid must beat the current bid by at least this many coins
	MinIncrement int64 `mapstructure:"min_increment"`
	// FirstBidAtStartingPrice accept a first bid equal to the starting price
	FirstBidAtStartingPrice bool          `mapstructure:"first_bid_at_starting_price"`
	MaxDuration             time.Duration `mapstructure:"max_duration"`
}

// PollConfig poll limits
type PollConfig struct {
	MaxDuration time.Duration `mapstructure:"max_duration"`
}

// GoalConfig donation goal setting
type GoalConfig struct {
	DecisionWindow time.Duration `mapstructure:"decision_window"`
}

// RefundConfig retry policy used when money has to go back to a wallet
type RefundConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxElapsed      time.Duration `mapstructure:"max_elapsed"`
}

// EventBusConfig publish retry and subscriber buffering
type EventBusConfig struct {
	PublishMaxElapsed time.Duration `mapstructure:"publish_max_elapsed"`
	SubscriberBuffer  int           `mapstructure:"subscriber_buffer"`
	DedupSize         int           `mapstructure:"dedup_size"`
}

// SweeperConfig cron spec of the deadline sweeper
type SweeperConfig struct {
	Spec string `mapstructure:"spec"`
}

// RateLimitConfig per connection intent limiter
type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

// GiftConfig gift catalog entry
type GiftConfig struct {
	ID      string `mapstructure:"id"`
	Name    string `mapstructure:"name"`
	IconKey string `mapstructure:"icon_key"`
	Price   int64  `mapstructure:"price"`
}

// ApplyDefaults fill zero values with the service defaults
func (c *Coordinator) ApplyDefaults() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = StoreMemory
	}
	if c.Auction.MinIncrement <= 0 {
		c.Auction.MinIncrement = 1
	}
	if c.Auction.MaxDuration <= 0 {
		c.Auction.MaxDuration = 2 * time.Hour
	}
	if c.Poll.MaxDuration <= 0 {
		c.Poll.MaxDuration = time.Hour
	}
	if c.Goal.DecisionWindow <= 0 {
		c.Goal.DecisionWindow = 60 * time.Second
	}
	if c.Refund.InitialInterval <= 0 {
		c.Refund.InitialInterval = 100 * time.Millisecond
	}
	if c.Refund.MaxElapsed <= 0 {
		c.Refund.MaxElapsed = 5 * time.Second
	}
	if c.EventBus.PublishMaxElapsed <= 0 {
		c.EventBus.PublishMaxElapsed = 2 * time.Second
	}
	if c.EventBus.SubscriberBuffer <= 0 {
		c.EventBus.SubscriberBuffer = 256
	}
	if c.EventBus.DedupSize <= 0 {
		c.EventBus.DedupSize = 1024
	}
	if c.Sweeper.Spec == "" {
		c.Sweeper.Spec = "@every 5s"
	}
	if c.RateLimit.PerSecond <= 0 {
		c.RateLimit.PerSecond = 10
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 20
	}
	if c.MinIO.IconURLTTL <= 0 {
		c.MinIO.IconURLTTL = time.Hour
	}
	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "push_notifications"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "ops-alerts"
	}
}
