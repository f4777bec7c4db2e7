package queue

import (
	"errors"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Config holds the configuration for publishing reward events to Kafka.
type Config struct {
	Enabled           bool   `env:"KAFKA_ENABLED"            envDefault:"false"`          // Publish reward events
	BootstrapServers  string `env:"KAFKA_BOOTSTRAP_SERVERS"  envDefault:"localhost:9092"` // Kafka broker addresses
	Topic             string `env:"KAFKA_TOPIC"              envDefault:"rewards"`        // Topic reward events are written to
	ClientID          string `env:"KAFKA_CLIENT_ID"          envDefault:"rewards-follower"`
	NumPartitions     int    `env:"KAFKA_TOPIC_PARTITIONS"   envDefault:"1"` // Partitions for the topic when it has to be created
	ReplicationFactor int    `env:"KAFKA_TOPIC_REPLICATION"  envDefault:"1"` // Replication factor for the topic when it has to be created
	EnableLogs        bool   `env:"KAFKA_ENABLE_LOGS"        envDefault:"false"` // Enable librdkafka client logs

	PublishTimeout time.Duration `env:"KAFKA_PUBLISH_TIMEOUT" envDefault:"5s"` // Bound on each reward event publish
}

// Validate checks the fields needed to publish.
func (c Config) Validate() error {
	if c.BootstrapServers == "" {
		return errors.New("invalid bootstrap servers: must not be empty")
	}
	return c.TopicConfig().Validate()
}

// TopicConfig returns the topic settings EnsureTopic should apply.
func (c Config) TopicConfig() TopicConfig {
	return TopicConfig{
		Name:              c.Topic,
		NumPartitions:     c.NumPartitions,
		ReplicationFactor: c.ReplicationFactor,
	}
}

// ProducerConfigMap builds the librdkafka configuration for an idempotent
// producer.
func (c Config) ProducerConfigMap() *kafka.ConfigMap {
	return &kafka.ConfigMap{
		"bootstrap.servers":      c.BootstrapServers,
		"client.id":              c.ClientID,
		"enable.idempotence":     true,
		"acks":                   "all",
		"go.logs.channel.enable": c.EnableLogs,
	}
}

// AdminConfigMap builds the librdkafka configuration for the admin client.
func (c Config) AdminConfigMap() *kafka.ConfigMap {
	return &kafka.ConfigMap{
		"bootstrap.servers": c.BootstrapServers,
		"client.id":         c.ClientID,
	}
}
