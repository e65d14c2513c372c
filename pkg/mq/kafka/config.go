package kafka

import "time"

// Config Kafka 配置
type Config struct {
	Brokers  []string       `mapstructure:"brokers"`
	Producer ProducerConfig `mapstructure:"producer"`
	Consumer ConsumerConfig `mapstructure:"consumer"`

	// SASL、TLS 可选
	SASL *SASLConfig `mapstructure:"sasl"`
	TLS  *TLSConfig  `mapstructure:"tls"`
}

// ProducerConfig 生产者配置
type ProducerConfig struct {
	Topic        string        `mapstructure:"topic"`
	Async        bool          `mapstructure:"async"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	// RequiredAcks 0 不等待，1 Leader，-1 所有副本
	RequiredAcks int `mapstructure:"required_acks"`
	// Compression none, gzip, snappy, lz4, zstd
	Compression  string        `mapstructure:"compression"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Topic    string        `mapstructure:"topic"`
	GroupID  string        `mapstructure:"group_id"`
	MinBytes int           `mapstructure:"min_bytes"`
	MaxBytes int           `mapstructure:"max_bytes"`
	MaxWait  time.Duration `mapstructure:"max_wait"`
	// StartOffset -1 最新，-2 最早
	StartOffset       int64         `mapstructure:"start_offset"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	SessionTimeout    time.Duration `mapstructure:"session_timeout"`
	Concurrency       int           `mapstructure:"concurrency"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
}

// SASLConfig SASL 认证配置
type SASLConfig struct {
	// Mechanism PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Mechanism string `mapstructure:"mechanism"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// TLSConfig TLS 配置
type TLSConfig struct {
	Enable             bool   `mapstructure:"enable"`
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	CAFile             string `mapstructure:"ca_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Producer: ProducerConfig{
			BatchSize:    100,
			BatchTimeout: 50 * time.Millisecond,
			MaxRetries:   3,
			RequiredAcks: -1,
			Compression:  "snappy",
			WriteTimeout: 10 * time.Second,
			ReadTimeout:  10 * time.Second,
		},
		Consumer: ConsumerConfig{
			MinBytes:          1,
			MaxBytes:          10 << 20,
			MaxWait:           500 * time.Millisecond,
			StartOffset:       -2,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
			Concurrency:       1,
			MaxRetries:        2,
			RetryBackoff:      200 * time.Millisecond,
		},
	}
}

// Enabled 是否配置了 broker
func (c *Config) Enabled() bool {
	return c != nil && len(c.Brokers) > 0
}

// ValidateProducer 生产者所需配置
func (c *Config) ValidateProducer() error {
	if !c.Enabled() {
		return ErrNoBrokers
	}
	if c.Producer.Topic == "" {
		return ErrEmptyTopic
	}
	return nil
}

// ValidateConsumer 消费者所需配置
func (c *Config) ValidateConsumer() error {
	if !c.Enabled() {
		return ErrNoBrokers
	}
	if c.Consumer.Topic == "" {
		return ErrEmptyTopic
	}
	if c.Consumer.GroupID == "" {
		return ErrEmptyGroupID
	}
	return nil
}
