package queue

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_EnvDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, env.Parse(&cfg))

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:9092", cfg.BootstrapServers)
	assert.Equal(t, "rewards", cfg.Topic)
	assert.Equal(t, 1, cfg.NumPartitions)
	assert.Equal(t, 5*time.Second, cfg.PublishTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_TOPIC", "reward-events")
	t.Setenv("KAFKA_TOPIC_PARTITIONS", "6")

	var cfg Config
	require.NoError(t, env.Parse(&cfg))
	assert.True(t, cfg.Enabled)
	assert.Equal(t, TopicConfig{Name: "reward-events", NumPartitions: 6, ReplicationFactor: 1}, cfg.TopicConfig())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := Config{BootstrapServers: "b:9092", Topic: "t", NumPartitions: 1, ReplicationFactor: 1}
	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no brokers", mutate: func(c *Config) { c.BootstrapServers = "" }, errContains: "invalid bootstrap servers"},
		{name: "no topic", mutate: func(c *Config) { c.Topic = "" }, errContains: "invalid topic name"},
		{name: "zero partitions", mutate: func(c *Config) { c.NumPartitions = 0 }, errContains: "invalid number of partitions"},
		{name: "zero replication", mutate: func(c *Config) { c.ReplicationFactor = 0 }, errContains: "invalid replication factor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errContains != "" {
				require.ErrorContains(t, err, tt.errContains)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_ProducerConfigMap(t *testing.T) {
	t.Parallel()

	cfg := Config{BootstrapServers: "b:9092", ClientID: "c", EnableLogs: true}
	m := cfg.ProducerConfigMap()

	v, err := m.Get("bootstrap.servers", "")
	require.NoError(t, err)
	assert.Equal(t, "b:9092", v)
	v, err = m.Get("enable.idempotence", false)
	require.NoError(t, err)
	assert.Equal(t, true, v)
	v, err = m.Get("go.logs.channel.enable", false)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}
